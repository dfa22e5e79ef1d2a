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

// Package pipeline turns raw per-individual records into a release according
// to a Policy.
//
// The stages run in a fixed order: identifiers are dropped, pseudonymized
// fields are tokenized, quasi-identifiers are k-anonymized, sensitive numeric
// fields are noised, and finally the records are optionally summarized. Every
// stage is also available on its own. A Pipeline holds only its injected
// collaborators, so one Pipeline may serve concurrent calls on disjoint inputs.
package pipeline

import (
	"fmt"

	log "github.com/golang/glog"
	"github.com/wellnessdata/privrelease/aggregate"
	"github.com/wellnessdata/privrelease/audit"
	"github.com/wellnessdata/privrelease/checks"
	"github.com/wellnessdata/privrelease/kanon"
	"github.com/wellnessdata/privrelease/noise"
	"github.com/wellnessdata/privrelease/pseudonym"
	"github.com/wellnessdata/privrelease/record"
)

// Options contains the collaborators of a Pipeline.
type Options struct {
	Noise  noise.Noise      // Defaults to Laplace noise from rand.Default().
	Hasher pseudonym.Hasher // Defaults to pseudonym.HMAC().
	// Salt keys the pseudonymization tokens. Keep it secret and stable across
	// releases that must be joinable.
	Salt  string
	Audit audit.Sink // Receives an event per stage that touches fields. Defaults to audit.Discard.
}

// Pipeline runs release stages with injected noise, hashing and audit collaborators.
type Pipeline struct {
	noise  noise.Noise
	hasher pseudonym.Hasher
	salt   string
	audit  audit.Sink
}

// Release is the output of Run.
type Release struct {
	// Records is the record-level output. It is nil when the policy asks for an aggregate.
	Records []record.Record
	// Aggregate is the exact summary of Policy.AggregateField, if requested.
	Aggregate *aggregate.Result
	// Private is the differentially private summary, if Policy.AggregateBounds is set.
	Private *aggregate.PrivateResult
	// Partitions is the number of quasi-identifier partitions in the input.
	Partitions int
	// ResidualSmallGroups counts groups still smaller than K. A non-zero value
	// means the release is not k-anonymous.
	ResidualSmallGroups int
	// Suppressed is the number of records dropped by Policy.SuppressResidual.
	Suppressed int
	// Events are the audit events emitted by this call, in order.
	Events []audit.Event
}

// New returns a Pipeline. A nil opt uses the defaults.
func New(opt *Options) *Pipeline {
	if opt == nil {
		opt = &Options{}
	}
	n := opt.Noise
	if n == nil {
		n = noise.Laplace(nil)
	}
	h := opt.Hasher
	if h == nil {
		h = pseudonym.HMAC()
	}
	sink := opt.Audit
	if sink == nil {
		sink = audit.Discard
	}
	return &Pipeline{noise: n, hasher: h, salt: opt.Salt, audit: sink}
}

// emitter forwards events to the pipeline's sink and keeps them for the Release.
type emitter struct {
	sink   audit.Sink
	events []audit.Event
}

func (e *emitter) emit(action audit.Action, fields []string, count int) {
	if len(fields) == 0 {
		return
	}
	ev := audit.NewEvent(action, fields, count)
	e.sink.Emit(ev)
	e.events = append(e.events, ev)
}

func (p *Pipeline) newEmitter() *emitter {
	return &emitter{sink: p.audit}
}

// RemoveIdentifiers returns copies of records without the named fields.
func (p *Pipeline) RemoveIdentifiers(records []record.Record, fields []string) []record.Record {
	return p.removeIdentifiers(p.newEmitter(), records, fields)
}

func (p *Pipeline) removeIdentifiers(em *emitter, records []record.Record, fields []string) []record.Record {
	out := make([]record.Record, len(records))
	for i, r := range records {
		out[i] = r.Without(fields...)
	}
	em.emit(audit.RemoveIdentifiers, fields, len(records))
	return out
}

// Pseudonymize returns copies of records with the named fields replaced by tokens.
func (p *Pipeline) Pseudonymize(records []record.Record, fields []string) []record.Record {
	return p.pseudonymize(p.newEmitter(), records, fields)
}

func (p *Pipeline) pseudonymize(em *emitter, records []record.Record, fields []string) []record.Record {
	out := pseudonym.PseudonymizeAll(records, fields, p.salt, p.hasher)
	em.emit(audit.Pseudonymize, fields, len(records))
	return out
}

// KAnonymize runs kanon.Anonymize with the policy's quasi-identifiers, K,
// overrides and suppression setting.
func (p *Pipeline) KAnonymize(records []record.Record, policy *Policy) (*kanon.Result, error) {
	return p.kAnonymize(p.newEmitter(), records, policy)
}

func (p *Pipeline) kAnonymize(em *emitter, records []record.Record, policy *Policy) (*kanon.Result, error) {
	res, err := kanon.Anonymize(records, &kanon.Options{
		QuasiIdentifiers: policy.QuasiIdentifiers,
		K:                policy.K,
		Overrides:        policy.GeneralizationOverrides,
		Suppress:         policy.SuppressResidual,
	})
	if err != nil {
		return nil, err
	}
	em.emit(audit.KAnonymize, policy.QuasiIdentifiers, len(records))
	return res, nil
}

// AddNoise returns copies of records with Laplace noise of scale 1/ε added to
// every Number in the named fields. Other values pass through. Each noised
// value spends ε.
func (p *Pipeline) AddNoise(records []record.Record, fields []string, epsilon float64) ([]record.Record, error) {
	return p.addNoise(p.newEmitter(), records, fields, epsilon)
}

func (p *Pipeline) addNoise(em *emitter, records []record.Record, fields []string, epsilon float64) ([]record.Record, error) {
	if err := checks.CheckEpsilonStrict(epsilon); err != nil {
		return nil, fmt.Errorf("pipeline.AddNoise: %w", err)
	}
	out := make([]record.Record, len(records))
	for i, r := range records {
		noised := r
		for _, f := range fields {
			v, ok := noised.Get(f)
			if !ok {
				continue
			}
			x, ok := record.Float64(v)
			if !ok {
				log.V(2).Infof("pipeline.AddNoise: field %q holds %T, passing through", f, v)
				continue
			}
			y, err := p.noise.AddNoise(x, epsilon)
			if err != nil {
				return nil, fmt.Errorf("pipeline.AddNoise: %w", err)
			}
			noised = noised.With(f, record.Number(y))
		}
		out[i] = noised
	}
	em.emit(audit.AddNoise, fields, len(records))
	return out, nil
}

// Aggregate summarizes field over records.
func (p *Pipeline) Aggregate(records []record.Record, field string) aggregate.Result {
	em := p.newEmitter()
	res := aggregate.Aggregate(records, field)
	em.emit(audit.Aggregate, []string{field}, len(records))
	return res
}

// Run applies policy to records. The input is not modified.
func (p *Pipeline) Run(records []record.Record, policy *Policy) (*Release, error) {
	if policy == nil {
		policy = &Policy{}
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline.Run: %w", err)
	}
	em := p.newEmitter()
	rel := &Release{}

	out := records
	if len(policy.IdentifiersToRemove) > 0 {
		out = p.removeIdentifiers(em, out, policy.IdentifiersToRemove)
	}
	if len(policy.PseudonymizeFields) > 0 {
		out = p.pseudonymize(em, out, policy.PseudonymizeFields)
	}
	if len(policy.QuasiIdentifiers) > 0 {
		res, err := p.kAnonymize(em, out, policy)
		if err != nil {
			return nil, fmt.Errorf("pipeline.Run: %w", err)
		}
		out = res.Records
		rel.Partitions = res.Partitions
		rel.ResidualSmallGroups = res.ResidualSmallGroups
		rel.Suppressed = res.Suppressed
	}
	if len(policy.SensitiveNumericFields) > 0 {
		var err error
		out, err = p.addNoise(em, out, policy.SensitiveNumericFields, policy.Epsilon)
		if err != nil {
			return nil, fmt.Errorf("pipeline.Run: %w", err)
		}
	}

	if policy.AggregateField != "" {
		res := aggregate.Aggregate(out, policy.AggregateField)
		rel.Aggregate = &res
		if b := policy.AggregateBounds; b != nil {
			priv, err := aggregate.PrivateAggregate(out, policy.AggregateField, &aggregate.PrivateOptions{
				Epsilon: policy.Epsilon,
				Lower:   b.Lower,
				Upper:   b.Upper,
				Noise:   p.noise,
			})
			if err != nil {
				return nil, fmt.Errorf("pipeline.Run: %w", err)
			}
			rel.Private = &priv
		}
		em.emit(audit.Aggregate, []string{policy.AggregateField}, len(out))
	} else {
		rel.Records = record.CloneAll(out)
	}

	rel.Events = em.events
	log.V(1).Infof("pipeline.Run: %d records in, %d events, %d residual small groups", len(records), len(rel.Events), rel.ResidualSmallGroups)
	return rel, nil
}
