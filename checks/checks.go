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

// Package checks contains parameter checks shared by the release stages.
//
// Every error returned from this package wraps ErrInvalidParameter, so callers
// can test for it with errors.Is regardless of which stage failed.
package checks

import (
	"errors"
	"fmt"
	"math"

	log "github.com/golang/glog"
)

// ErrInvalidParameter reports a caller error such as k < 1 or a nonpositive ε.
// It is not retryable.
var ErrInvalidParameter = errors.New("invalid parameter")

const (
	epsilonName     = "Epsilon"
	sensitivityName = "Sensitivity"
)

func verifyName(defaultName string, nameSlice []string) (string, error) {
	var name string
	switch len(nameSlice) {
	case 0:
		name = defaultName
	case 1:
		name = nameSlice[0]
	default:
		return "", fmt.Errorf("%w: there should be 0 or 1 'name' parameter, got %d", ErrInvalidParameter, len(nameSlice))
	}
	return name, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidParameter}, args...)...)
}

// CheckEpsilonStrict returns an error if ε is nonpositive, NaN or ±∞.
func CheckEpsilonStrict(epsilon float64, name ...string) error {
	epsName, err := verifyName(epsilonName, name)
	if err != nil {
		return err
	}
	if epsilon <= 0 || math.IsInf(epsilon, 0) || math.IsNaN(epsilon) {
		return invalid("%s is %f, must be strictly positive and finite", epsName, epsilon)
	}
	return nil
}

// CheckSensitivity returns an error if the L1 sensitivity is nonpositive, NaN or ±∞.
func CheckSensitivity(sensitivity float64, name ...string) error {
	sName, err := verifyName(sensitivityName, name)
	if err != nil {
		return err
	}
	if sensitivity <= 0 || math.IsInf(sensitivity, 0) || math.IsNaN(sensitivity) {
		return invalid("%s is %f, must be strictly positive and finite", sName, sensitivity)
	}
	return nil
}

// CheckK returns an error if k is less than 1.
func CheckK(k int) error {
	if k < 1 {
		return invalid("K is %d, must be at least 1", k)
	}
	return nil
}

// CheckBucketWidth returns an error if a numeric-range bucket width is negative,
// NaN or ±∞. A width of 0 selects the default and is accepted.
func CheckBucketWidth(width float64) error {
	if width < 0 || math.IsInf(width, 0) || math.IsNaN(width) {
		return invalid("BucketWidth is %f, must be nonnegative and finite", width)
	}
	return nil
}

// CheckAlpha returns an error if the supplied alpha is not between 0 and 1.
func CheckAlpha(alpha float64) error {
	if alpha <= 0 || alpha >= 1 || math.IsNaN(alpha) || math.IsInf(alpha, 0) {
		return invalid("Alpha is %f, must be within (0, 1) and finite", alpha)
	}
	return nil
}

// CheckBoundsFloat64 returns an error if lower is larger than upper, or if either parameter is NaN or ±∞.
func CheckBoundsFloat64(lower, upper float64) error {
	if math.IsNaN(lower) {
		return invalid("Lower bound cannot be NaN")
	}
	if math.IsNaN(upper) {
		return invalid("Upper bound cannot be NaN")
	}
	if math.IsInf(lower, 0) {
		return invalid("Lower bound cannot be infinity")
	}
	if math.IsInf(upper, 0) {
		return invalid("Upper bound cannot be infinity")
	}
	if lower > upper {
		return invalid("Upper bound (%f) must be larger than lower bound (%f)", upper, lower)
	}
	if lower == upper {
		log.Warningf("Lower bound is equal to upper bound: all added elements will be clamped to %f", upper)
	}
	return nil
}

// CheckFieldNames returns an error if any field name in names is empty or
// appears more than once. kind names the list in the error message.
func CheckFieldNames(kind string, names []string) error {
	seen := make(map[string]bool, len(names))
	for i, n := range names {
		if n == "" {
			return invalid("%s[%d] is empty, field names must be non-empty", kind, i)
		}
		if seen[n] {
			return invalid("%s lists %q more than once", kind, n)
		}
		seen[n] = true
	}
	return nil
}
