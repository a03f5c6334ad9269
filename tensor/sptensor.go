// Copyright 2026 gorse Project Authors
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

// Package tensor stores sparse tensors in coordinate format and converts them from and to
// the plain-text formats used on disk.
package tensor

import (
	"slices"

	"github.com/juju/errors"
	"github.com/samber/lo"
)

// SpTensor is a sparse tensor in coordinate format. The n-th nonzero has coordinates
// Ind[0][n], ..., Ind[NModes-1][n] and value Vals[n]. Indices are zero-based.
type SpTensor struct {
	NModes int
	Dims   []int
	Ind    [][]int
	Vals   []float64
}

// New creates a sparse tensor with room for nnz nonzeros. Dims are left at zero.
func New(nmodes, nnz int) *SpTensor {
	tt := &SpTensor{
		NModes: nmodes,
		Dims:   make([]int, nmodes),
		Ind:    make([][]int, nmodes),
		Vals:   make([]float64, nnz),
	}
	for m := range tt.Ind {
		tt.Ind[m] = make([]int, nnz)
	}
	return tt
}

// NNZ returns the number of stored nonzeros.
func (tt *SpTensor) NNZ() int {
	if tt == nil {
		return 0
	}
	return len(tt.Vals)
}

// Coord copies the coordinates of the n-th nonzero into dst and returns it.
func (tt *SpTensor) Coord(n int, dst []int) []int {
	dst = dst[:0]
	for m := 0; m < tt.NModes; m++ {
		dst = append(dst, tt.Ind[m][n])
	}
	return dst
}

// FitDims sets each dimension to one past the largest index of its mode.
func (tt *SpTensor) FitDims() {
	for m := 0; m < tt.NModes; m++ {
		if len(tt.Ind[m]) == 0 {
			tt.Dims[m] = 0
			continue
		}
		tt.Dims[m] = lo.Max(tt.Ind[m]) + 1
	}
}

// Validate checks the shape of the coordinate arrays and that every index is within its
// dimension.
func (tt *SpTensor) Validate() error {
	if tt == nil {
		return errors.NotValidf("nil tensor")
	}
	if tt.NModes < 1 || len(tt.Dims) != tt.NModes || len(tt.Ind) != tt.NModes {
		return errors.NotValidf("tensor with %d modes, %d dims and %d index arrays",
			tt.NModes, len(tt.Dims), len(tt.Ind))
	}
	for m := 0; m < tt.NModes; m++ {
		if len(tt.Ind[m]) != len(tt.Vals) {
			return errors.NotValidf("mode %d with %d indices for %d values", m, len(tt.Ind[m]), len(tt.Vals))
		}
		for n, i := range tt.Ind[m] {
			if i < 0 || i >= tt.Dims[m] {
				return errors.NotValidf("index %d of nonzero %d in mode %d (dim %d)", i, n, m, tt.Dims[m])
			}
		}
	}
	return nil
}

// Clone returns a deep copy.
func (tt *SpTensor) Clone() *SpTensor {
	c := &SpTensor{
		NModes: tt.NModes,
		Dims:   slices.Clone(tt.Dims),
		Ind:    make([][]int, tt.NModes),
		Vals:   slices.Clone(tt.Vals),
	}
	for m := range tt.Ind {
		c.Ind[m] = slices.Clone(tt.Ind[m])
	}
	return c
}

// compare orders nonzeros a and b lexicographically by the modes in order.
func (tt *SpTensor) compare(order []int, a, b int) int {
	for _, m := range order {
		if tt.Ind[m][a] != tt.Ind[m][b] {
			if tt.Ind[m][a] < tt.Ind[m][b] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// SortedPermutation returns nonzero ids sorted lexicographically by the modes in order.
func (tt *SpTensor) SortedPermutation(order []int) []int {
	perm := lo.Range(tt.NNZ())
	slices.SortStableFunc(perm, func(a, b int) int {
		return tt.compare(order, a, b)
	})
	return perm
}

// RemoveDuplicates merges nonzeros with identical coordinates by summing their values.
// The nonzeros end up sorted by mode 0, 1, ... It returns the number of removed entries.
func (tt *SpTensor) RemoveDuplicates() int {
	nnz := tt.NNZ()
	if nnz == 0 {
		return 0
	}
	order := lo.Range(tt.NModes)
	perm := tt.SortedPermutation(order)
	ind := make([][]int, tt.NModes)
	for m := range ind {
		ind[m] = make([]int, 0, nnz)
	}
	vals := make([]float64, 0, nnz)
	for k, n := range perm {
		if k > 0 && tt.compare(order, perm[k-1], n) == 0 {
			vals[len(vals)-1] += tt.Vals[n]
			continue
		}
		for m := range ind {
			ind[m] = append(ind[m], tt.Ind[m][n])
		}
		vals = append(vals, tt.Vals[n])
	}
	tt.Ind = ind
	tt.Vals = vals
	return nnz - len(vals)
}
