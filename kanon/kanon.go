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

// Package kanon partitions records by their quasi-identifiers and generalizes
// partitions that are smaller than k.
//
// Anonymize performs a single generalization pass. It does not regroup or
// retry, so the output can still contain groups smaller than k. Those groups
// are counted in Result.ResidualSmallGroups and never silently accepted.
package kanon

import (
	"fmt"
	"strconv"
	"strings"

	log "github.com/golang/glog"
	"github.com/wellnessdata/privrelease/checks"
	"github.com/wellnessdata/privrelease/generalize"
	"github.com/wellnessdata/privrelease/record"
)

// missingMarker stands in for an absent quasi-identifier. Present values are
// length-prefixed and so always start with a digit, which keeps a missing field
// apart from any value.
const missingMarker = "-"

// Options contains the options necessary to run Anonymize.
type Options struct {
	QuasiIdentifiers []string // Fields that identify in combination. Required for any grouping.
	K                int      // Minimum group size. Required, must be at least 1.
	// Overrides assigns explicit strategies per field. Fields without an
	// override use generalize.Infer.
	Overrides map[string]generalize.Strategy
	// Suppress drops records that are still in a group smaller than K after
	// generalization. They are counted in Result.Suppressed.
	Suppress bool
}

// Result is the output of Anonymize.
type Result struct {
	Records []record.Record
	// Partitions is the number of partitions found in the input.
	Partitions int
	// Generalized is the number of input partitions that were smaller than K
	// and had their quasi-identifiers generalized.
	Generalized int
	// ResidualSmallGroups is the number of groups in the output, regrouped by
	// their final signature, that still have fewer than K members. With
	// Suppress set, these groups were dropped but are still counted.
	ResidualSmallGroups int
	// Suppressed is the number of records dropped because of Suppress.
	Suppressed int
}

// partition is a set of records sharing a signature, in first-seen order.
type partition struct {
	signature string
	members   []record.Record
}

// Signature returns the grouping key of r over qis. Each value is written as
// its byte length, a colon and its string form, so no choice of values can
// make two different tuples share a key.
func Signature(r record.Record, qis []string) string {
	var b strings.Builder
	for _, qi := range qis {
		v, ok := r.Get(qi)
		if !ok || v == nil {
			b.WriteString(missingMarker)
			continue
		}
		s := v.String()
		b.WriteString(strconv.Itoa(len(s)))
		b.WriteByte(':')
		b.WriteString(s)
	}
	return b.String()
}

// groupBySignature partitions records by Signature over qis. Partitions keep
// the order in which their first member appeared.
func groupBySignature(records []record.Record, qis []string) []*partition {
	var order []*partition
	bySig := make(map[string]*partition)
	for _, r := range records {
		sig := Signature(r, qis)
		p, ok := bySig[sig]
		if !ok {
			p = &partition{signature: sig}
			bySig[sig] = p
			order = append(order, p)
		}
		p.members = append(p.members, r)
	}
	return order
}

func checkOptions(opt *Options) error {
	if err := checks.CheckK(opt.K); err != nil {
		return err
	}
	if err := checks.CheckFieldNames("QuasiIdentifiers", opt.QuasiIdentifiers); err != nil {
		return err
	}
	return generalize.ValidateOverrides(opt.Overrides)
}

// Anonymize partitions records by exact-match signature over the quasi-identifiers,
// emits partitions of at least K members unchanged and generalizes every
// quasi-identifier of the members of smaller partitions.
//
// Output order is partition order, then member order. The input is not modified.
func Anonymize(records []record.Record, opt *Options) (*Result, error) {
	if opt == nil {
		opt = &Options{} // Prevents panicking due to a nil pointer dereference.
	}
	if err := checkOptions(opt); err != nil {
		return nil, fmt.Errorf("kanon.Anonymize: %w", err)
	}
	res := &Result{Records: []record.Record{}}
	if len(records) == 0 {
		return res, nil
	}

	partitions := groupBySignature(records, opt.QuasiIdentifiers)
	res.Partitions = len(partitions)
	out := make([]record.Record, 0, len(records))
	for _, p := range partitions {
		if len(p.members) >= opt.K {
			out = append(out, p.members...)
			continue
		}
		res.Generalized++
		for _, r := range p.members {
			out = append(out, generalizeRecord(r, opt.QuasiIdentifiers, opt.Overrides))
		}
	}

	residual := make(map[string]bool)
	for _, p := range groupBySignature(out, opt.QuasiIdentifiers) {
		if len(p.members) < opt.K {
			residual[p.signature] = true
		}
	}
	res.ResidualSmallGroups = len(residual)

	if opt.Suppress && len(residual) > 0 {
		kept := out[:0]
		for _, r := range out {
			if residual[Signature(r, opt.QuasiIdentifiers)] {
				res.Suppressed++
				continue
			}
			kept = append(kept, r)
		}
		out = kept
	}
	res.Records = out

	if res.ResidualSmallGroups > 0 {
		log.Warningf("kanon.Anonymize: %d group(s) remain smaller than k=%d after one generalization pass", res.ResidualSmallGroups, opt.K)
	}
	log.V(1).Infof("kanon.Anonymize: %d records, %d partitions, %d generalized, %d residual, %d suppressed",
		len(records), res.Partitions, res.Generalized, res.ResidualSmallGroups, res.Suppressed)
	return res, nil
}

// generalizeRecord returns a copy of r with each present quasi-identifier generalized.
func generalizeRecord(r record.Record, qis []string, overrides map[string]generalize.Strategy) record.Record {
	out := r
	for _, qi := range qis {
		v, ok := out.Get(qi)
		if !ok {
			continue
		}
		out = out.With(qi, generalize.Generalize(v, generalize.Resolve(qi, overrides)))
	}
	return out
}
