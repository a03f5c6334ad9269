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

package csf

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/gorse-tensor/tensor"
	"github.com/stretchr/testify/assert"
)

func newTestTensor() *tensor.SpTensor {
	tt := tensor.New(3, 4)
	tt.Ind[0] = []int{0, 0, 0, 1}
	tt.Ind[1] = []int{0, 0, 2, 1}
	tt.Ind[2] = []int{0, 1, 1, 0}
	tt.Vals = []float64{1, 2, 3, 4}
	tt.Dims = []int{2, 3, 2}
	return tt
}

func randomTensor(rng *rand.Rand, dims []int, nnz int) *tensor.SpTensor {
	tt := tensor.New(len(dims), nnz)
	copy(tt.Dims, dims)
	for n := 0; n < nnz; n++ {
		for m := range dims {
			tt.Ind[m][n] = rng.Intn(dims[m])
		}
		tt.Vals[n] = rng.Float64()
	}
	tt.RemoveDuplicates()
	return tt
}

func TestModeOrder(t *testing.T) {
	assert.Equal(t, []int{0, 2, 1}, ModeOrder([]int{2, 3, 2}, 0))
	assert.Equal(t, []int{1, 0, 2}, ModeOrder([]int{2, 3, 2}, 1))
	assert.Equal(t, []int{2, 1, 0}, ModeOrder([]int{9, 3, 2}, 2))
}

func TestBuild(t *testing.T) {
	c, err := Build(newTestTensor(), 0)
	assert.NoError(t, err)
	assert.NoError(t, c.Validate())
	assert.Equal(t, 0, c.Root())
	assert.Equal(t, []int{0, 2, 1}, c.DimPerm)
	assert.Equal(t, []int{2, 3, 4}, c.NFibs)
	assert.Equal(t, 2, c.NumSlices())
	// every row of mode 0 has a slice
	assert.Nil(t, c.Fids[0])
	assert.Equal(t, 1, c.SliceRow(1))
	assert.Equal(t, []int{0, 2, 3}, c.Fptr[0])
	assert.Equal(t, []int{0, 1, 0}, c.Fids[1])
	assert.Equal(t, []int{0, 1, 3, 4}, c.Fptr[1])
	assert.Equal(t, []int{0, 0, 2, 1}, c.Fids[2])
	assert.Equal(t, []float64{1, 2, 3, 4}, c.Vals)
}

func TestBuildEmptySlices(t *testing.T) {
	tt := newTestTensor()
	tt.Dims[0] = 5
	c, err := Build(tt, 0)
	assert.NoError(t, err)
	assert.NoError(t, c.Validate())
	assert.Equal(t, []int{0, 1}, c.Fids[0])
	assert.Equal(t, 1, c.SliceRow(1))

	tt.Ind[0] = []int{3, 3, 3, 1}
	c, err = Build(tt, 0)
	assert.NoError(t, err)
	assert.Equal(t, []int{1, 3}, c.Fids[0])
	assert.Equal(t, 3, c.SliceRow(1))
}

func TestBuildInvalid(t *testing.T) {
	tt := newTestTensor()
	_, err := Build(tt, 3)
	assert.Error(t, err)
	_, err = Build(tt, -1)
	assert.Error(t, err)
	tt.Dims[1] = 1
	_, err = Build(tt, 0)
	assert.Error(t, err)
	_, err = BuildAllModes(context.Background(), tt, 2)
	assert.Error(t, err)
	vec := tensor.New(1, 1)
	vec.Dims[0] = 1
	_, err = Build(vec, 0)
	assert.Error(t, err)
}

func TestBuildAllModes(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	tt := randomTensor(rng, []int{20, 7, 13}, 500)
	csfs, err := BuildAllModes(context.Background(), tt, 3)
	assert.NoError(t, err)
	assert.Len(t, csfs, 3)
	expected := mapset.NewSet[string]()
	for n := 0; n < tt.NNZ(); n++ {
		expected.Add(fmt.Sprintf("%d,%d,%d:%v", tt.Ind[0][n], tt.Ind[1][n], tt.Ind[2][n], tt.Vals[n]))
	}
	for mode, c := range csfs {
		assert.NoError(t, c.Validate())
		assert.Equal(t, mode, c.Root())
		assert.Equal(t, tt.NNZ(), c.NNZ)
		// every nonzero appears exactly once
		actual := mapset.NewSet[string]()
		coord := make([]int, 3)
		for i := 0; i < c.NumSlices(); i++ {
			coord[c.DimPerm[0]] = c.SliceRow(i)
			for fib := c.Fptr[0][i]; fib < c.Fptr[0][i+1]; fib++ {
				coord[c.DimPerm[1]] = c.Fids[1][fib]
				for jj := c.Fptr[1][fib]; jj < c.Fptr[1][fib+1]; jj++ {
					coord[c.DimPerm[2]] = c.Fids[2][jj]
					assert.True(t, actual.Add(fmt.Sprintf("%d,%d,%d:%v", coord[0], coord[1], coord[2], c.Vals[jj])))
				}
			}
		}
		assert.True(t, expected.Equal(actual))
	}
}

func TestBuildEmptyTensor(t *testing.T) {
	tt := tensor.New(3, 0)
	tt.Dims = []int{3, 3, 3}
	c, err := Build(tt, 1)
	assert.NoError(t, err)
	assert.NoError(t, c.Validate())
	assert.Zero(t, c.NumSlices())
}

func TestValidate(t *testing.T) {
	c, err := Build(newTestTensor(), 0)
	assert.NoError(t, err)
	// two slices mapped to the same row
	c.Fids[0] = []int{1, 1}
	assert.Error(t, c.Validate())

	c, _ = Build(newTestTensor(), 0)
	c.Fids[1][1] = 0
	assert.Error(t, c.Validate())

	c, _ = Build(newTestTensor(), 0)
	c.Fptr[0][1] = 0
	assert.Error(t, c.Validate())

	c, _ = Build(newTestTensor(), 0)
	c.Fids[2][0] = 7
	assert.Error(t, c.Validate())

	c, _ = Build(newTestTensor(), 0)
	c.DimPerm = []int{0, 0, 1}
	assert.Error(t, c.Validate())

	c, _ = Build(newTestTensor(), 0)
	c.Vals = c.Vals[:3]
	assert.Error(t, c.Validate())
}
