//
// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/wellnessdata/privrelease/checks"
	"github.com/wellnessdata/privrelease/generalize"
	"gopkg.in/yaml.v3"
)

// Bounds are the clamping bounds of a differentially private aggregate.
type Bounds struct {
	Lower float64 `yaml:"lower"`
	Upper float64 `yaml:"upper"`
}

// Policy is the per-call release configuration. Stages whose field lists are
// empty are skipped.
type Policy struct {
	IdentifiersToRemove []string `yaml:"identifiers_to_remove"`
	// PseudonymizeFields are replaced by keyed tokens instead of being removed.
	PseudonymizeFields []string `yaml:"pseudonymize_fields"`
	QuasiIdentifiers   []string `yaml:"quasi_identifiers"`
	K                  int      `yaml:"k"`
	// Epsilon is spent once per noised value and once per private aggregate.
	// Budgets compose across releases; reusing it for another release of the
	// same data weakens the guarantee.
	Epsilon                 float64                        `yaml:"epsilon"`
	GeneralizationOverrides map[string]generalize.Strategy `yaml:"generalization_overrides"`
	SensitiveNumericFields  []string                       `yaml:"sensitive_numeric_fields"`
	// AggregateField, if set, replaces record-level output with a summary of this field.
	AggregateField string `yaml:"aggregate_field"`
	// AggregateBounds, if set together with AggregateField, adds a
	// differentially private summary computed with Epsilon.
	AggregateBounds *Bounds `yaml:"aggregate_bounds"`
	// SuppressResidual drops records left in groups smaller than K.
	SuppressResidual bool `yaml:"suppress_residual"`
}

// ParsePolicy decodes a YAML policy and validates it. Unknown keys are
// rejected. An empty document is the empty policy, which runs no stages.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("pipeline.ParsePolicy: %w: %v", checks.ErrInvalidParameter, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline.ParsePolicy: %w", err)
	}
	return &p, nil
}

// Validate returns an error wrapping checks.ErrInvalidParameter if p cannot
// be run. K is only checked when QuasiIdentifiers is set, and Epsilon only
// when a stage spends it.
func (p *Policy) Validate() error {
	for _, list := range []struct {
		name   string
		fields []string
	}{
		{"IdentifiersToRemove", p.IdentifiersToRemove},
		{"PseudonymizeFields", p.PseudonymizeFields},
		{"QuasiIdentifiers", p.QuasiIdentifiers},
		{"SensitiveNumericFields", p.SensitiveNumericFields},
	} {
		if err := checks.CheckFieldNames(list.name, list.fields); err != nil {
			return err
		}
	}
	if len(p.QuasiIdentifiers) > 0 {
		if err := checks.CheckK(p.K); err != nil {
			return err
		}
	}
	// Noise runs after grouping, so a noised quasi-identifier would split the
	// groups that ResidualSmallGroups was computed over.
	for _, f := range p.SensitiveNumericFields {
		if slices.Contains(p.QuasiIdentifiers, f) {
			return fmt.Errorf("%w: %q is both a quasi-identifier and a sensitive numeric field", checks.ErrInvalidParameter, f)
		}
	}
	if err := generalize.ValidateOverrides(p.GeneralizationOverrides); err != nil {
		return err
	}
	if p.spendsEpsilon() {
		if err := checks.CheckEpsilonStrict(p.Epsilon, "Policy.Epsilon"); err != nil {
			return err
		}
	}
	if p.AggregateBounds != nil {
		if p.AggregateField == "" {
			return fmt.Errorf("%w: AggregateBounds is set but AggregateField is empty", checks.ErrInvalidParameter)
		}
		if err := checks.CheckBoundsFloat64(p.AggregateBounds.Lower, p.AggregateBounds.Upper); err != nil {
			return err
		}
	}
	return nil
}

func (p *Policy) spendsEpsilon() bool {
	return len(p.SensitiveNumericFields) > 0 || (p.AggregateField != "" && p.AggregateBounds != nil)
}
