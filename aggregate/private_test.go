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

package aggregate

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/wellnessdata/privrelease/checks"
	"github.com/wellnessdata/privrelease/noise"
	"github.com/wellnessdata/privrelease/rand"
	"github.com/wellnessdata/privrelease/record"
)

// noNoise is a Noise instance that doesn't add noise to the data.
type noNoise struct {
	noise.Noise
}

func (noNoise) AddNoise(x, _ float64) (float64, error) {
	return x, nil
}

func (noNoise) AddNoiseWithSensitivity(x, _, _ float64) (float64, error) {
	return x, nil
}

// shiftNoise adds offsets[i] on the i-th call (0 once offsets run out) and
// records the parameters it was called with.
type shiftNoise struct {
	noise.Noise
	offsets       []float64
	sensitivities []float64
	epsilons      []float64
}

func (s *shiftNoise) AddNoiseWithSensitivity(x, l1Sensitivity, epsilon float64) (float64, error) {
	var offset float64
	if i := len(s.epsilons); i < len(s.offsets) {
		offset = s.offsets[i]
	}
	s.sensitivities = append(s.sensitivities, l1Sensitivity)
	s.epsilons = append(s.epsilons, epsilon)
	return x + offset, nil
}

func scores(vs ...float64) []record.Record {
	out := make([]record.Record, len(vs))
	for i, v := range vs {
		out[i] = record.New(record.F("score", record.Number(v)))
	}
	return out
}

func TestClampFloat64(t *testing.T) {
	for _, tc := range []struct {
		desc         string
		valueToClamp float64
		lower        float64
		upper        float64
		want         float64
		wantErr      bool
	}{
		{
			desc:         "Equal bounds, value is less than bound",
			valueToClamp: -1,
			lower:        1,
			upper:        1,
			want:         1,
		},
		{
			desc:         "Negative bounds, value is inside bounds",
			valueToClamp: -2,
			lower:        -3,
			upper:        -1,
			want:         -2,
		},
		{
			desc:         "Value above upper bound",
			valueToClamp: 120,
			lower:        0,
			upper:        100,
			want:         100,
		},
		{
			desc:         "Lower bound larger than upper bound",
			valueToClamp: 5,
			lower:        10,
			upper:        0,
			wantErr:      true,
		},
	} {
		got, err := ClampFloat64(tc.valueToClamp, tc.lower, tc.upper)
		if (err != nil) != tc.wantErr {
			t.Errorf("ClampFloat64: when %s for err got %v, want %t", tc.desc, err, tc.wantErr)
		}
		if got != tc.want {
			t.Errorf("ClampFloat64: when %s got %f, want %f", tc.desc, got, tc.want)
		}
	}
}

func TestPrivateAggregateWithoutNoise(t *testing.T) {
	records := append(scores(10, 20, 30, 150), record.New(record.F("score", record.String("n/a"))))
	got, err := PrivateAggregate(records, "score", &PrivateOptions{Epsilon: 1, Lower: 0, Upper: 100, Noise: noNoise{}})
	if err != nil {
		t.Fatalf("PrivateAggregate: got err %v", err)
	}
	// 150 is clamped to 100.
	want := PrivateResult{Count: 4, Mean: 40, Sum: 160}
	if !ApproxEqual(got.Mean, want.Mean) || !ApproxEqual(got.Sum, want.Sum) || got.Count != want.Count {
		t.Errorf("PrivateAggregate: got %+v, want %+v", got, want)
	}
}

func TestPrivateAggregateSplitsBudget(t *testing.T) {
	n := &shiftNoise{}
	if _, err := PrivateAggregate(scores(1, 2), "score", &PrivateOptions{Epsilon: 2, Lower: -10, Upper: 30, Noise: n}); err != nil {
		t.Fatalf("PrivateAggregate: got err %v", err)
	}
	if len(n.epsilons) != 2 || n.epsilons[0] != 1 || n.epsilons[1] != 1 {
		t.Errorf("PrivateAggregate: noise drawn with ε %v, want [1 1]", n.epsilons)
	}
	// Count has sensitivity 1; the normalized sum has the distance from the midpoint 10 to the bounds.
	if len(n.sensitivities) != 2 || n.sensitivities[0] != 1 || n.sensitivities[1] != 20 {
		t.Errorf("PrivateAggregate: noise drawn with sensitivities %v, want [1 20]", n.sensitivities)
	}
}

func TestPrivateAggregateClampsMean(t *testing.T) {
	// No noise on the count, a large shift on the sum.
	n := &shiftNoise{offsets: []float64{0, 1e6}}
	got, err := PrivateAggregate(scores(50), "score", &PrivateOptions{Epsilon: 1, Lower: 0, Upper: 100, Noise: n})
	if err != nil {
		t.Fatalf("PrivateAggregate: got err %v", err)
	}
	if got.Mean != 100 {
		t.Errorf("PrivateAggregate: got mean %f, want it clamped to 100", got.Mean)
	}
}

func TestPrivateAggregateEmptyInput(t *testing.T) {
	got, err := PrivateAggregate(nil, "score", &PrivateOptions{Epsilon: 1, Lower: 0, Upper: 100, Noise: noNoise{}})
	if err != nil {
		t.Fatalf("PrivateAggregate: got err %v", err)
	}
	// With no entries the mean falls back to the midpoint.
	if got.Count != 0 || got.Mean != 50 || got.Sum != 0 {
		t.Errorf("PrivateAggregate(nil): got %+v, want {Count:0 Mean:50 Sum:0}", got)
	}
}

func TestPrivateAggregateEqualBounds(t *testing.T) {
	got, err := PrivateAggregate(scores(1, 9), "score", &PrivateOptions{Epsilon: 1, Lower: 5, Upper: 5, Noise: noNoise{}})
	if err != nil {
		t.Fatalf("PrivateAggregate: got err %v", err)
	}
	if got.Mean != 5 || got.Count != 2 {
		t.Errorf("PrivateAggregate: got %+v, want mean 5 and count 2", got)
	}
}

func TestPrivateAggregateWithLaplace(t *testing.T) {
	records := scores(make([]float64, 1000)...)
	got, err := PrivateAggregate(records, "score", &PrivateOptions{Epsilon: 1, Lower: 0, Upper: 10, Noise: noise.Laplace(rand.New(8))})
	if err != nil {
		t.Fatalf("PrivateAggregate: got err %v", err)
	}
	// Laplace noise of scale 2 on the count exceeds 40 with probability e^-20.
	if math.Abs(float64(got.Count)-1000) > 40 {
		t.Errorf("PrivateAggregate: got count %d, want 1000 ± 40", got.Count)
	}
	if got.Mean < 0 || got.Mean > 10 {
		t.Errorf("PrivateAggregate: got mean %f, want a value within the bounds", got.Mean)
	}
}

func TestPrivateAggregateArgumentCheck(t *testing.T) {
	for _, tc := range []struct {
		desc string
		opt  *PrivateOptions
	}{
		{"nil options", nil},
		{"zero epsilon", &PrivateOptions{Epsilon: 0, Lower: 0, Upper: 1}},
		{"inverted bounds", &PrivateOptions{Epsilon: 1, Lower: 1, Upper: 0}},
		{"infinite bound", &PrivateOptions{Epsilon: 1, Lower: 0, Upper: math.Inf(1)}},
	} {
		if _, err := PrivateAggregate(scores(1), "score", tc.opt); !errors.Is(err, checks.ErrInvalidParameter) {
			t.Errorf("PrivateAggregate: when %s got err %v, want ErrInvalidParameter", tc.desc, err)
		}
	}
}

func TestPrivateAggregateNamesEpsilon(t *testing.T) {
	_, err := PrivateAggregate(scores(1), "score", &PrivateOptions{Epsilon: -1, Lower: 0, Upper: 1})
	if err == nil || !strings.Contains(err.Error(), "PrivateOptions.Epsilon is") {
		t.Errorf("PrivateAggregate: got err %v, want it to name PrivateOptions.Epsilon", err)
	}
}

func ApproxEqual(x, y float64) bool {
	return math.Abs(x-y) <= 1e-10*math.Max(1, math.Abs(y))
}
