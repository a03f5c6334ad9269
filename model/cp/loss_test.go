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

package cp

import (
	"math"
	"testing"

	"github.com/gorse-io/gorse-tensor/base"
	"github.com/gorse-io/gorse-tensor/tensor"
	"github.com/stretchr/testify/assert"
)

func newOnesModel(dims []int, rank int) *Model {
	m := NewModel(dims, rank, base.NewRandomGenerator(0), 1, 1)
	return m
}

func TestLossSq(t *testing.T) {
	m := newOnesModel([]int{2, 2, 2}, 2)
	tt := tensor.New(3, 2)
	tt.Dims = []int{2, 2, 2}
	tt.Ind[0][1], tt.Ind[1][1], tt.Ind[2][1] = 1, 1, 1
	tt.Vals[0], tt.Vals[1] = 3, 0
	// every prediction is 2
	assert.Equal(t, 5.0, LossSq(tt, m, 1))
	assert.Equal(t, math.Sqrt(2.5), RMSE(tt, m, 2))
	assert.Equal(t, 0.0, LossSq(tensor.New(3, 0), m, 1))
}

func TestLossSqDeterministic(t *testing.T) {
	tt := newRandomTensor(3, []int{40, 50, 60}, 3*lossBlockSize)
	m := NewModel(tt.Dims, 5, base.NewRandomGenerator(0), -1, 1)
	assert.Greater(t, tt.NNZ(), lossBlockSize)
	expected := LossSq(tt, m, 1)
	for _, jobs := range []int{2, 3, 8} {
		assert.Equal(t, expected, LossSq(tt, m, jobs))
	}
}

func TestRMSENoSignal(t *testing.T) {
	m := newOnesModel([]int{2, 2, 2}, 1)
	assert.True(t, math.IsNaN(RMSE(nil, m, 1)))
	assert.True(t, math.IsNaN(RMSE(tensor.New(3, 0), m, 1)))
}

func TestFrobSq(t *testing.T) {
	m := newOnesModel([]int{1, 2, 3}, 2)
	// squared norms are 2, 4 and 6
	assert.Equal(t, 2*0.5+4*1+6*2.0, FrobSq(m, []float64{0.5, 1, 2}))
	assert.Zero(t, FrobSq(m, []float64{0, 0, 0}))
}
