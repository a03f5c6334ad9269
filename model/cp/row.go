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
	"github.com/gorse-io/gorse-tensor/common/floats"
	"github.com/gorse-io/gorse-tensor/csf"
)

// workerContext is the scratch space of one worker. It is reset by every row update and
// must not be shared between workers.
type workerContext struct {
	hada  []float64 // Hadamard product of the fiber row and a leaf row
	accum []float64 // value-weighted sum of leaf rows of a fiber
	neqs  []float64 // rank x rank normal equations, row-major
}

func newWorkerContext(rank int) *workerContext {
	return &workerContext{
		hada:  make([]float64, rank),
		accum: make([]float64, rank),
		neqs:  make([]float64, rank*rank),
	}
}

// accumulateRow builds the normal equations of slice i of c in w.neqs and the right-hand
// side in the factor row of that slice, which it returns with its row id.
func accumulateRow(c *csf.CSF, i int, m *Model, w *workerContext) (int, []float64) {
	rank := m.Rank
	fid := c.SliceRow(i)
	out := m.Row(c.DimPerm[0], fid)
	floats.Zero(out)
	floats.Zero(w.neqs)

	avs, bvs := m.Factors[c.DimPerm[1]], m.Factors[c.DimPerm[2]]
	fptr, fids, inds, vals := c.Fptr[1], c.Fids[1], c.Fids[2], c.Vals
	for fib := c.Fptr[0][i]; fib < c.Fptr[0][i+1]; fib++ {
		av := avs[fids[fib]*rank : (fids[fib]+1)*rank]
		first, last := fptr[fib], fptr[fib+1]
		bv := bvs[inds[first]*rank : (inds[first]+1)*rank]
		floats.MulConstTo(bv, vals[first], w.accum)
		floats.MulTo(av, bv, w.hada)
		oprod(w.hada, w.neqs)
		for jj := first + 1; jj < last; jj++ {
			bv = bvs[inds[jj]*rank : (inds[jj]+1)*rank]
			floats.MulConstAdd(bv, vals[jj], w.accum)
			floats.MulTo(av, bv, w.hada)
			oprod(w.hada, w.neqs)
		}
		// accum * av is the right-hand side contribution of the fiber
		floats.MulAddTo(w.accum, av, out)
	}
	return fid, out
}

// updateRow solves the regularized least squares problem of slice i of c and writes the
// solution to the factor row of that slice. Only that row is written. It returns the row
// id and the solver status.
func updateRow(c *csf.CSF, i int, m *Model, reg float64, w *workerContext) (int, solveStatus) {
	fid, out := accumulateRow(c, i, m, w)
	for r := 0; r < m.Rank; r++ {
		w.neqs[r*m.Rank+r] += reg
	}
	return fid, solveNormals(m.Rank, w.neqs, out)
}
