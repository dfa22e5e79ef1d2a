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

// Package aggregate computes distributional summaries over records.
//
// All functions skip values that are missing or not finite Numbers rather
// than coercing them. An empty selection yields the zero Result, so callers
// must check Count before trusting the other fields.
package aggregate

import (
	"math"
	"sort"

	"github.com/wellnessdata/privrelease/record"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultBins is the number of histogram bins used when none is given.
const DefaultBins = 10

// Result is a summary of the numeric values of one field.
type Result struct {
	Min    float64
	Max    float64
	Avg    float64
	Median float64
	Sum    float64
	Count  int
}

// Bin is one histogram bucket covering [Lower, Upper). The last bin also
// includes Upper.
type Bin struct {
	Lower float64
	Upper float64
	Count int
}

// Values returns the finite Number values of field, in record order.
func Values(records []record.Record, field string) []float64 {
	var vs []float64
	for _, r := range records {
		v, ok := r.Get(field)
		if !ok {
			continue
		}
		if f, ok := record.Float64(v); ok {
			vs = append(vs, f)
		}
	}
	return vs
}

// Aggregate returns the summary of the numeric values of field.
func Aggregate(records []record.Record, field string) Result {
	return Summarize(Values(records, field))
}

// Summarize returns the summary of values. It does not modify values.
func Summarize(values []float64) Result {
	if len(values) == 0 {
		return Result{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return Result{
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
		Avg:    stat.Mean(sorted, nil),
		Median: median(sorted),
		Sum:    floats.Sum(sorted),
		Count:  len(sorted),
	}
}

// median returns the median of sorted, which must be non-empty.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// FrequencyDistribution counts the occurrences of each value of field, keyed
// by the value's canonical string. Values of different types that print the
// same, such as Number(5) and String("5"), share a key, matching how kanon
// compares quasi-identifiers. Records without the field are skipped.
func FrequencyDistribution(records []record.Record, field string) map[string]int {
	freq := make(map[string]int)
	for _, r := range records {
		v, ok := r.Get(field)
		if !ok || v == nil {
			continue
		}
		freq[v.String()]++
	}
	return freq
}

// Histogram sorts values into bins equal-width bins over [min, max]. A bins
// value of 0 or less selects DefaultBins. The maximum lands in the last bin.
// If all values are equal every value lands in the first bin. Empty input
// returns nil.
func Histogram(values []float64, bins int) []Bin {
	var finite []float64
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return nil
	}
	if bins <= 0 {
		bins = DefaultBins
	}
	lo, hi := floats.Min(finite), floats.Max(finite)
	out := make([]Bin, bins)
	for i := range out {
		out[i].Lower = binEdge(lo, hi, i, bins)
		out[i].Upper = binEdge(lo, hi, i+1, bins)
	}
	out[bins-1].Upper = hi
	for _, v := range finite {
		out[binIndex(v, lo, hi, bins)].Count++
	}
	return out
}

// binEdge returns the lower edge of bin i out of bins over [lo, hi]. Spans
// wider than math.MaxFloat64 are interpolated instead of subtracted.
func binEdge(lo, hi float64, i, bins int) float64 {
	if span := hi - lo; !math.IsInf(span, 0) {
		return lo + float64(i)*(span/float64(bins))
	}
	t := float64(i) / float64(bins)
	return lo*(1-t) + hi*t
}

// binIndex returns the bin of v, always in [0, bins-1].
func binIndex(v, lo, hi float64, bins int) int {
	if hi == lo {
		return 0
	}
	var pos float64
	if span := hi - lo; !math.IsInf(span, 0) {
		pos = (v - lo) / (span / float64(bins))
	} else {
		// Halving keeps both differences finite.
		pos = (v/2 - lo/2) / (hi/2 - lo/2) * float64(bins)
	}
	switch {
	case math.IsNaN(pos), pos >= float64(bins):
		return bins - 1
	case pos < 0:
		return 0
	}
	return int(math.Floor(pos))
}

// GrowthRate returns the percentage change from previous to current. When
// previous is 0 it returns 100 if current is positive and 0 otherwise; this
// is a convention, not a meaningful rate.
func GrowthRate(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return (current - previous) / previous * 100
}
