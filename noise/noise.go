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

// Package noise contains methods to generate and add noise to data.
package noise

// ConfidenceInterval holds lower and upper bounds as float64 for the confidence interval.
type ConfidenceInterval struct {
	LowerBound, UpperBound float64
}

// Noise is an interface for primitives that add noise to data to make it differentially private.
type Noise interface {
	// AddNoise adds noise to x so that the output is ε-differentially private
	// for a statistic with an L_1 sensitivity of 1.
	AddNoise(x, epsilon float64) (float64, error)

	// AddNoiseWithSensitivity adds noise to x so that the output is
	// ε-differentially private given the L_1 sensitivity of the statistic.
	AddNoiseWithSensitivity(x, l1Sensitivity, epsilon float64) (float64, error)

	// ComputeConfidenceInterval computes a confidence interval that contains the
	// raw value x from which noisedX is computed with a probability equal to
	// 1 - alpha based on the specified noise parameters.
	ComputeConfidenceInterval(noisedX, l1Sensitivity, epsilon, alpha float64) (ConfidenceInterval, error)
}
