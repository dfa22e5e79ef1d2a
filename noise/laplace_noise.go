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

package noise

import (
	"math"

	"github.com/wellnessdata/privrelease/checks"
	"github.com/wellnessdata/privrelease/rand"
)

type laplace struct {
	src rand.Source
}

// Laplace returns a Noise instance that adds Laplace noise to its input.
// Draws come from src; a nil src uses rand.Default().
//
// Samples are drawn by inverse transform: with u ~ Uniform(-0.5, 0.5) the
// noise is -λ·sign(u)·ln(1-2|u|), where λ = l1Sensitivity/ε. The source is not
// cryptographically secure and the mechanism does not defend against
// floating point artifacts; it is intended for internal releases.
func Laplace(src rand.Source) Noise {
	if src == nil {
		src = rand.Default()
	}
	return laplace{src: src}
}

// AddNoise adds Laplace noise of scale 1/ε to x.
func (l laplace) AddNoise(x, epsilon float64) (float64, error) {
	return l.AddNoiseWithSensitivity(x, 1, epsilon)
}

// AddNoiseWithSensitivity adds Laplace noise of scale l1Sensitivity/ε to x.
func (l laplace) AddNoiseWithSensitivity(x, l1Sensitivity, epsilon float64) (float64, error) {
	if err := checkArgsLaplace(l1Sensitivity, epsilon); err != nil {
		return 0, err
	}
	return x + sampleLaplace(l.src, laplaceLambda(l1Sensitivity, epsilon)), nil
}

// ComputeConfidenceInterval computes a confidence interval that contains the raw value x from which float64
// noisedX is computed with a probability equal to 1 - alpha based on the specified laplace noise parameters.
func (laplace) ComputeConfidenceInterval(noisedX, l1Sensitivity, epsilon, alpha float64) (ConfidenceInterval, error) {
	if err := checks.CheckAlpha(alpha); err != nil {
		return ConfidenceInterval{}, err
	}
	if err := checkArgsLaplace(l1Sensitivity, epsilon); err != nil {
		return ConfidenceInterval{}, err
	}
	return computeConfidenceIntervalLaplace(noisedX, laplaceLambda(l1Sensitivity, epsilon), alpha), nil
}

func (laplace) String() string {
	return "Laplace Noise"
}

func checkArgsLaplace(l1Sensitivity, epsilon float64) error {
	if err := checks.CheckSensitivity(l1Sensitivity, "L1Sensitivity"); err != nil {
		return err
	}
	return checks.CheckEpsilonStrict(epsilon)
}

// laplaceLambda computes the scale parameter λ for the Laplace noise
// distribution required by the Laplace mechanism for achieving ε-differential
// privacy on a statistic with the given L_1 sensitivity.
func laplaceLambda(l1Sensitivity, epsilon float64) float64 {
	return l1Sensitivity / epsilon
}

// sampleLaplace draws from a zero-mean Laplace distribution with scale lambda.
func sampleLaplace(src rand.Source, lambda float64) float64 {
	u := rand.Centered(src)
	return -lambda * rand.Sign(u) * math.Log(1-2*math.Abs(u))
}

// computeConfidenceIntervalLaplace computes a confidence interval that contains the raw value x from which
// float64 noisedX is computed with a probability equal to 1 - alpha with the given lambda.
func computeConfidenceIntervalLaplace(noisedX float64, lambda, alpha float64) ConfidenceInterval {
	z := inverseCDFLaplace(lambda, alpha/2)
	// By symmetry, -z is the (1 - alpha/2)-quantile. Deriving it from the
	// alpha/2-quantile keeps precision when alpha is small.
	return ConfidenceInterval{LowerBound: noisedX + z, UpperBound: noisedX - z}
}

// inverseCDFLaplace computes the quantile z satisfying Pr[Y <= z] = p for a random variable Y
// that is Laplace distributed with the specified lambda where mean is zero.
func inverseCDFLaplace(lambda, p float64) float64 {
	if p < 0.5 {
		return lambda * math.Log(2*p)
	}
	return -lambda * math.Log(2*(1-p))
}
