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

// Package generalize reduces the precision of quasi-identifying values.
//
// Generalize is total: a value that does not fit the strategy is returned
// unchanged rather than rejected. Strategies can be inferred from a field's
// name or supplied explicitly; an explicit strategy always wins.
package generalize

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	log "github.com/golang/glog"
	"github.com/wellnessdata/privrelease/checks"
	"github.com/wellnessdata/privrelease/record"
)

// Kind selects a generalization.
type Kind int

// Supported generalizations.
const (
	Categorical Kind = iota
	Temporal
	NumericRange
	Geographic
)

var kindNames = map[Kind]string{
	Categorical:  "categorical",
	Temporal:     "temporal",
	NumericRange: "numeric-range",
	Geographic:   "geographic",
}

// DefaultBucketWidth is the numeric-range width used when none is given.
const DefaultBucketWidth = 10

// geographicPrefix is the number of leading characters kept by Geographic.
const geographicPrefix = 3

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind returns the Kind named s.
func ParseKind(s string) (Kind, error) {
	for k, n := range kindNames {
		if n == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown generalization kind %q", checks.ErrInvalidParameter, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	n, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("%w: unknown generalization kind %d", checks.ErrInvalidParameter, int(k))
	}
	return []byte(n), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Strategy is a Kind plus its parameters.
type Strategy struct {
	Kind Kind `yaml:"kind"`
	// BucketWidth is the NumericRange bucket width. Defaults to DefaultBucketWidth.
	BucketWidth float64 `yaml:"bucket_width,omitempty"`
	// Hierarchy maps a Categorical value to its parent category. Values not
	// in the map pass through.
	Hierarchy map[string]string `yaml:"hierarchy,omitempty"`
}

// Validate returns an error wrapping checks.ErrInvalidParameter if s is malformed.
func (s Strategy) Validate() error {
	if _, ok := kindNames[s.Kind]; !ok {
		return fmt.Errorf("%w: unknown generalization kind %d", checks.ErrInvalidParameter, int(s.Kind))
	}
	return checks.CheckBucketWidth(s.BucketWidth)
}

func (s Strategy) bucketWidth() float64 {
	if s.BucketWidth == 0 {
		return DefaultBucketWidth
	}
	return s.BucketWidth
}

// Generalize returns v with its precision reduced according to s. Values that
// are incompatible with s are returned unchanged.
func Generalize(v record.Value, s Strategy) record.Value {
	var out record.Value
	switch s.Kind {
	case Temporal:
		out = temporal(v)
	case NumericRange:
		out = numericRange(v, s.bucketWidth())
	case Geographic:
		out = geographic(v)
	case Categorical:
		out = categorical(v, s.Hierarchy)
	}
	if out == nil {
		log.V(2).Infof("Generalize: %T value passes through %v strategy unchanged", v, s.Kind)
		return v
	}
	return out
}

var dateLayouts = []string{time.RFC3339, "2006-01-02", "2006-01"}

func temporal(v record.Value) record.Value {
	var t time.Time
	switch x := v.(type) {
	case record.Date:
		if x.IsZero() {
			return nil
		}
		t = x.Time()
	case record.String:
		parsed, ok := parseDate(string(x))
		if !ok {
			return nil
		}
		t = parsed
	default:
		return nil
	}
	return record.String(fmt.Sprintf("%d-%02d", t.Year(), int(t.Month())))
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func numericRange(v record.Value, width float64) record.Value {
	f, ok := record.Float64(v)
	if !ok {
		return nil
	}
	lower := math.Floor(f/width) * width
	upper := lower + width - 1
	return record.String(record.Number(lower).String() + "-" + record.Number(upper).String())
}

func geographic(v record.Value) record.Value {
	var s string
	switch x := v.(type) {
	case record.String:
		s = string(x)
	case record.Category:
		s = string(x)
	default:
		return nil
	}
	if utf8.RuneCountInString(s) < geographicPrefix {
		return nil
	}
	prefix := []rune(s)[:geographicPrefix]
	masked := string(prefix) + "**"
	if _, ok := v.(record.Category); ok {
		return record.Category(masked)
	}
	return record.String(masked)
}

func categorical(v record.Value, hierarchy map[string]string) record.Value {
	if len(hierarchy) == 0 || v == nil {
		return nil
	}
	parent, ok := hierarchy[v.String()]
	if !ok {
		return nil
	}
	if _, isString := v.(record.String); isString {
		return record.String(parent)
	}
	return record.Category(parent)
}

// Infer returns the Strategy suggested by a field's name.
func Infer(field string) Strategy {
	name := strings.ToLower(field)
	switch {
	case strings.Contains(name, "date"):
		return Strategy{Kind: Temporal}
	case strings.Contains(name, "age"):
		return Strategy{Kind: NumericRange, BucketWidth: DefaultBucketWidth}
	case strings.Contains(name, "zip"), strings.Contains(name, "postal"):
		return Strategy{Kind: Geographic}
	}
	return Strategy{Kind: Categorical}
}

// Resolve returns the override for field if there is one, and the inferred
// Strategy otherwise.
func Resolve(field string, overrides map[string]Strategy) Strategy {
	if s, ok := overrides[field]; ok {
		return s
	}
	return Infer(field)
}

// ValidateOverrides returns an error if any strategy in overrides is malformed.
func ValidateOverrides(overrides map[string]Strategy) error {
	for field, s := range overrides {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("override for %q: %w", field, err)
		}
	}
	return nil
}
