// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package correlation

import "math"

// Abramowitz & Stegun 26.2.17 coefficients for the standard normal CDF.
const (
	asP  = 0.2316419
	asB1 = 0.319381530
	asB2 = -0.356563782
	asB3 = 1.781477937
	asB4 = -1.821255978
	asB5 = 1.330274429
)

// normalCDF approximates Φ(x) to about 7.5e-8 absolute error.
func normalCDF(x float64) float64 {
	if x < 0 {
		return 1 - normalCDF(-x)
	}
	t := 1 / (1 + asP*x)
	poly := t * (asB1 + t*(asB2+t*(asB3+t*(asB4+t*asB5))))
	return 1 - math.Exp(-x*x/2)/math.Sqrt(2*math.Pi)*poly
}

// PValue returns the approximate two-tailed p-value of a Pearson
// coefficient r over n aligned samples, via the Fisher z-transform. It is
// informational only and never filters edges. Returns 1 when n <= 3.
func PValue(r float64, n int64) float64 {
	if n <= 3 {
		return 1
	}
	abs := math.Abs(r)
	if abs >= 1 {
		return 0
	}
	z := math.Atanh(abs)
	se := 1 / math.Sqrt(float64(n-3))
	p := 2 * (1 - normalCDF(z/se))
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
