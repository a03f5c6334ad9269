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

// Package csf builds the compressed sparse fiber (CSF) form of a sparse tensor: a tree
// whose level l holds the distinct index prefixes of length l+1 under a mode ordering.
// For a three-way tensor level 0 holds slices, level 1 fibers and level 2 nonzeros.
package csf

import (
	"context"
	"slices"
	"time"

	"github.com/gorse-io/gorse-tensor/base/log"
	"github.com/gorse-io/gorse-tensor/common/parallel"
	"github.com/gorse-io/gorse-tensor/tensor"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// CSF is a single-tile compressed sparse fiber tensor.
//
// Node j at level l < NModes-1 owns the children Fptr[l][j] <= k < Fptr[l][j+1] at level
// l+1. Fids[l][j] is the index of node j in mode DimPerm[l]. Leaves are nonzeros and carry
// Vals. Fids[0] is nil when every index of the root mode has a slice, in which case slice
// i is row i.
type CSF struct {
	NModes  int
	NNZ     int
	Dims    []int
	DimPerm []int
	NFibs   []int
	Fptr    [][]int
	Fids    [][]int
	Vals    []float64
}

// ModeOrder returns the level ordering of a CSF rooted at root: the root first, then
// the remaining modes by increasing dimension. Ties keep mode order.
func ModeOrder(dims []int, root int) []int {
	rest := lo.Filter(lo.Range(len(dims)), func(m, _ int) bool { return m != root })
	slices.SortStableFunc(rest, func(a, b int) int { return dims[a] - dims[b] })
	return append([]int{root}, rest...)
}

// Build constructs the CSF of tt rooted at mode root.
func Build(tt *tensor.SpTensor, root int) (*CSF, error) {
	if err := tt.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if tt.NModes < 2 {
		return nil, errors.NotValidf("csf of a %d-mode tensor", tt.NModes)
	}
	if root < 0 || root >= tt.NModes {
		return nil, errors.NotValidf("root mode %d of a %d-mode tensor", root, tt.NModes)
	}
	nmodes, nnz := tt.NModes, tt.NNZ()
	order := ModeOrder(tt.Dims, root)
	perm := tt.SortedPermutation(order)

	c := &CSF{
		NModes:  nmodes,
		NNZ:     nnz,
		Dims:    slices.Clone(tt.Dims),
		DimPerm: order,
		NFibs:   make([]int, nmodes),
		Fptr:    make([][]int, nmodes-1),
		Fids:    make([][]int, nmodes),
		Vals:    make([]float64, nnz),
	}
	c.Fids[nmodes-1] = make([]int, 0, nnz)
	for k, n := range perm {
		// the first level whose index differs from the previous nonzero starts new nodes
		start := 0
		if k > 0 {
			prev := perm[k-1]
			start = nmodes - 1
			for l := 0; l < nmodes-1; l++ {
				if tt.Ind[order[l]][n] != tt.Ind[order[l]][prev] {
					start = l
					break
				}
			}
		}
		for l := start; l < nmodes; l++ {
			if l < nmodes-1 {
				c.Fptr[l] = append(c.Fptr[l], len(c.Fids[l+1]))
			}
			c.Fids[l] = append(c.Fids[l], tt.Ind[order[l]][n])
		}
		c.Vals[k] = tt.Vals[n]
	}
	for l := 0; l < nmodes; l++ {
		c.NFibs[l] = len(c.Fids[l])
		if l < nmodes-1 {
			c.Fptr[l] = append(c.Fptr[l], c.NFibs[l+1])
		}
	}
	if c.NFibs[0] == c.Dims[root] {
		c.Fids[0] = nil
	}
	return c, nil
}

// BuildAllModes constructs one CSF per mode, the m-th rooted at mode m.
func BuildAllModes(ctx context.Context, tt *tensor.SpTensor, jobs int) ([]*CSF, error) {
	if err := tt.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	start := time.Now()
	csfs := make([]*CSF, tt.NModes)
	err := parallel.Parallel(ctx, tt.NModes, jobs, func(_, mode int) error {
		c, err := Build(tt, mode)
		if err != nil {
			return errors.Trace(err)
		}
		csfs[mode] = c
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	for mode, c := range csfs {
		log.Logger().Debug("build csf",
			zap.Int("mode", mode),
			zap.Ints("dim_perm", c.DimPerm),
			zap.Ints("nfibs", c.NFibs))
	}
	log.Logger().Info("build csf for all modes",
		zap.Int("nnz", tt.NNZ()),
		zap.String("build_time", time.Since(start).String()))
	return csfs, nil
}

// Root returns the tensor mode of the slices.
func (c *CSF) Root() int {
	return c.DimPerm[0]
}

// NumSlices returns the number of nonempty slices.
func (c *CSF) NumSlices() int {
	return c.NFibs[0]
}

// SliceRow returns the root-mode index of slice i.
func (c *CSF) SliceRow(i int) int {
	if c.Fids[0] == nil {
		return i
	}
	return c.Fids[0][i]
}

// Validate checks the tree structure: pointers are monotone and cover their child level,
// every node has a child, ids are within their dimension and increase strictly among
// siblings, so slices map to distinct rows. Leaves may repeat an id for duplicate
// coordinates.
func (c *CSF) Validate() error {
	if c.NModes < 2 || len(c.DimPerm) != c.NModes || len(c.Dims) != c.NModes {
		return errors.NotValidf("csf with %d modes and dim perm %v", c.NModes, c.DimPerm)
	}
	if len(lo.Uniq(c.DimPerm)) != c.NModes || lo.Min(c.DimPerm) != 0 || lo.Max(c.DimPerm) != c.NModes-1 {
		return errors.NotValidf("dim perm %v", c.DimPerm)
	}
	if len(c.Vals) != c.NNZ || c.NFibs[c.NModes-1] != c.NNZ {
		return errors.NotValidf("csf with %d values and %d leaves for %d nonzeros", len(c.Vals), c.NFibs[c.NModes-1], c.NNZ)
	}
	for l := 0; l < c.NModes; l++ {
		dim := c.Dims[c.DimPerm[l]]
		if l == 0 && c.Fids[0] == nil {
			if c.NFibs[0] > dim {
				return errors.NotValidf("%d identity slices for dimension %d", c.NFibs[0], dim)
			}
			continue
		}
		if len(c.Fids[l]) != c.NFibs[l] {
			return errors.NotValidf("level %d with %d ids for %d nodes", l, len(c.Fids[l]), c.NFibs[l])
		}
		for _, id := range c.Fids[l] {
			if id < 0 || id >= dim {
				return errors.NotValidf("id %d at level %d (dim %d)", id, l, dim)
			}
		}
	}
	for l := 0; l < c.NModes-1; l++ {
		ptr := c.Fptr[l]
		if len(ptr) != c.NFibs[l]+1 || ptr[0] != 0 || ptr[len(ptr)-1] != c.NFibs[l+1] {
			return errors.NotValidf("pointers of level %d do not cover level %d", l, l+1)
		}
		for j := 0; j < c.NFibs[l]; j++ {
			if ptr[j+1] <= ptr[j] {
				return errors.NotValidf("node %d at level %d without children", j, l)
			}
			if c.Fids[l+1] == nil {
				continue
			}
			for k := ptr[j] + 1; k < ptr[j+1]; k++ {
				prev, cur := c.Fids[l+1][k-1], c.Fids[l+1][k]
				if cur < prev || (cur == prev && l+1 < c.NModes-1) {
					return errors.NotValidf("ids of node %d at level %d are not increasing", j, l)
				}
			}
		}
	}
	if c.Fids[0] != nil {
		for i := 1; i < c.NFibs[0]; i++ {
			if c.Fids[0][i] <= c.Fids[0][i-1] {
				return errors.NotValidf("slices %d and %d map to rows %d and %d", i-1, i, c.Fids[0][i-1], c.Fids[0][i])
			}
		}
	}
	return nil
}
