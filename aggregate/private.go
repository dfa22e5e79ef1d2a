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
	"fmt"
	"math"

	"github.com/wellnessdata/privrelease/checks"
	"github.com/wellnessdata/privrelease/noise"
	"github.com/wellnessdata/privrelease/record"
)

// PrivateOptions contains the options necessary to run PrivateAggregate.
type PrivateOptions struct {
	Epsilon float64 // Privacy parameter ε for the whole aggregate. Required.
	// Lower and Upper bounds for clamping. Required; must be such that Lower <= Upper.
	Lower, Upper float64
	Noise        noise.Noise // Type of noise used. Defaults to Laplace noise.
}

// PrivateResult is a differentially private summary of one field.
type PrivateResult struct {
	Count int64
	Mean  float64
	// Sum is derived from Mean and Count by post-processing and spends no
	// additional budget.
	Sum float64
}

// ClampFloat64 clamps e within lower and upper, such that lower is returned
// if e < lower, and upper is returned if e > upper. Otherwise, e is returned.
func ClampFloat64(e, lower, upper float64) (float64, error) {
	if lower > upper {
		return 0, fmt.Errorf("%w: lower must be less than or equal to upper, got lower = %v, upper = %v", checks.ErrInvalidParameter, lower, upper)
	}
	if e > upper {
		return upper, nil
	}
	if e < lower {
		return lower, nil
	}
	return e, nil
}

// PrivateAggregate returns an ε-differentially private count, mean and sum of
// the numeric values of field, assuming each individual contributes at most
// one record.
//
// Values are clamped to [Lower, Upper] and normalized around the midpoint of
// the range before summation. Half of ε is spent on the count and half on the
// normalized sum. As in Li et al., "Differential Privacy: From Theory to
// Practice", Algorithm 2.4, a noisy count below 1 is raised to 1 rather than
// returning the midpoint.
func PrivateAggregate(records []record.Record, field string, opt *PrivateOptions) (PrivateResult, error) {
	if opt == nil {
		opt = &PrivateOptions{} // Prevents panicking due to a nil pointer dereference.
	}
	if err := checks.CheckEpsilonStrict(opt.Epsilon, "PrivateOptions.Epsilon"); err != nil {
		return PrivateResult{}, fmt.Errorf("aggregate.PrivateAggregate: %w", err)
	}
	if err := checks.CheckBoundsFloat64(opt.Lower, opt.Upper); err != nil {
		return PrivateResult{}, fmt.Errorf("aggregate.PrivateAggregate: %w", err)
	}
	n := opt.Noise
	if n == nil {
		n = noise.Laplace(nil)
	}

	lower, upper := opt.Lower, opt.Upper
	// (lower + upper) / 2 may overflow for large bounds.
	midPoint := lower + (upper-lower)/2
	maxDistFromMidpoint := math.Abs(upper - midPoint)
	halfEpsilon := opt.Epsilon / 2

	var count, normalizedSum float64
	for _, v := range Values(records, field) {
		clamped, err := ClampFloat64(v, lower, upper)
		if err != nil {
			return PrivateResult{}, err
		}
		normalizedSum += clamped - midPoint
		count++
	}

	noisedCount, err := n.AddNoiseWithSensitivity(count, 1, halfEpsilon)
	if err != nil {
		return PrivateResult{}, fmt.Errorf("aggregate.PrivateAggregate: count: %w", err)
	}
	noisedSum := normalizedSum
	if maxDistFromMidpoint > 0 {
		noisedSum, err = n.AddNoiseWithSensitivity(normalizedSum, maxDistFromMidpoint, halfEpsilon)
		if err != nil {
			return PrivateResult{}, fmt.Errorf("aggregate.PrivateAggregate: sum: %w", err)
		}
	}

	roundedCount := math.Max(0, math.Round(noisedCount))
	mean, err := ClampFloat64(noisedSum/math.Max(1, noisedCount)+midPoint, lower, upper)
	if err != nil {
		return PrivateResult{}, err
	}
	return PrivateResult{
		Count: int64(roundedCount),
		Mean:  mean,
		Sum:   mean * roundedCount,
	}, nil
}
