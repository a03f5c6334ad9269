// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package floats provides the float64 vector kernels used by the ALS update. Kernels
// backed by gonum panic on length mismatch the same way the hand-written ones do.
package floats

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Zero fills zeros in a slice of 64-bit floats.
func Zero(a []float64) {
	for i := range a {
		a[i] = 0
	}
}

// Dot two vectors.
func Dot(a, b []float64) float64 {
	return floats.Dot(a, b)
}

// MulTo multiplies two vectors element-wise and saves the result in dst: dst = a * b
func MulTo(a, b, dst []float64) {
	floats.MulTo(dst, a, b)
}

// MulConstTo multiplies a vector and a const, then saves the result in dst: dst = a * c
func MulConstTo(a []float64, c float64, dst []float64) {
	floats.ScaleTo(dst, c, a)
}

// MulConstAdd multiplies a vector and a const, then adds to dst: dst = dst + a * c
func MulConstAdd(a []float64, c float64, dst []float64) {
	floats.AddScaled(dst, c, a)
}

// MulAddTo multiplies a vector and a vector, then adds to a vector: c += a * b
func MulAddTo(a, b, c []float64) {
	if len(a) != len(b) || len(a) != len(c) {
		panic("floats: slice lengths do not match")
	}
	for i := range a {
		c[i] += a[i] * b[i]
	}
}

// MulThreeDot returns sum_i a[i] * b[i] * c[i].
func MulThreeDot(a, b, c []float64) (ret float64) {
	if len(a) != len(b) || len(a) != len(c) {
		panic("floats: slice lengths do not match")
	}
	for i := range a {
		ret += a[i] * b[i] * c[i]
	}
	return
}

// SumSquares returns the sum of squared elements.
func SumSquares(a []float64) float64 {
	return floats.Dot(a, a)
}

// AllFinite reports whether no element is NaN or infinite.
func AllFinite(a []float64) bool {
	for _, v := range a {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
