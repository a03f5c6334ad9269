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
	"context"
	"math"

	"github.com/gorse-io/gorse-tensor/common/floats"
	"github.com/gorse-io/gorse-tensor/common/parallel"
	"github.com/gorse-io/gorse-tensor/tensor"
	"github.com/samber/lo"
)

// lossBlockSize is the number of nonzeros summed by one job. Partial sums are added in
// block order so the result does not depend on the number of workers.
const lossBlockSize = 4096

// LossSq returns the sum of squared residuals of m over the nonzeros of tt.
func LossSq(tt *tensor.SpTensor, m *Model, jobs int) float64 {
	nnz := tt.NNZ()
	if nnz == 0 {
		return 0
	}
	nBlocks := (nnz + lossBlockSize - 1) / lossBlockSize
	sums := make([]float64, nBlocks)
	_ = parallel.Parallel(context.Background(), nBlocks, jobs, func(_, block int) error {
		coord := make([]int, tt.NModes)
		var sum float64
		for n := block * lossBlockSize; n < min((block+1)*lossBlockSize, nnz); n++ {
			diff := tt.Vals[n] - m.Predict(tt.Coord(n, coord))
			sum += diff * diff
		}
		sums[block] = sum
		return nil
	})
	return lo.Sum(sums)
}

// FrobSq returns the regularization term sum_m reg[m] * ||A_m||_F^2.
func FrobSq(m *Model, reg []float64) float64 {
	var sum float64
	for mode := 0; mode < m.NModes; mode++ {
		sum += reg[mode] * floats.SumSquares(m.Factors[mode])
	}
	return sum
}

// RMSE returns the root mean squared error of m over tt. It returns NaN for a nil or
// empty tensor, meaning there is nothing to evaluate.
func RMSE(tt *tensor.SpTensor, m *Model, jobs int) float64 {
	if tt.NNZ() == 0 {
		return math.NaN()
	}
	return math.Sqrt(LossSq(tt, m, jobs) / float64(tt.NNZ()))
}
