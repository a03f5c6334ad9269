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

package tensor

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

const coordinateList = `# three-way tensor
1 1 1 1.5
2 3 1 2
1 2 4 -1

4 4 4 3
`

func TestRead(t *testing.T) {
	tt, err := Read(strings.NewReader(coordinateList))
	assert.NoError(t, err)
	assert.Equal(t, 3, tt.NModes)
	assert.Equal(t, 4, tt.NNZ())
	assert.Equal(t, []int{4, 4, 4}, tt.Dims)
	assert.NoError(t, tt.Validate())
	// sorted by mode 0, 1, 2 after duplicate removal
	assert.Equal(t, []int{0, 0, 1, 3}, tt.Ind[0])
	assert.Equal(t, []int{0, 1, 2, 3}, tt.Ind[1])
	assert.Equal(t, []int{0, 3, 0, 3}, tt.Ind[2])
	assert.Equal(t, []float64{1.5, -1, 2, 3}, tt.Vals)
}

func TestReadZeroBased(t *testing.T) {
	tt, err := Read(strings.NewReader("0 0 0 1\n1 2 0 2\n"))
	assert.NoError(t, err)
	assert.Equal(t, []int{2, 3, 1}, tt.Dims)
	assert.Equal(t, []int{0, 1}, tt.Ind[0])
}

func TestReadWithBase(t *testing.T) {
	tt, base, err := ReadWithBase(strings.NewReader("0 0 0 1\n1 1 1 2\n"), DetectBase)
	assert.NoError(t, err)
	assert.Equal(t, ZeroBased, base)
	assert.Equal(t, []int{0, 1}, tt.Ind[0])

	// a zero-free file keeps its indices when read as zero-based
	tt, base, err = ReadWithBase(strings.NewReader("1 1 1 3\n"), ZeroBased)
	assert.NoError(t, err)
	assert.Equal(t, ZeroBased, base)
	assert.Equal(t, []int{1}, tt.Ind[0])
	assert.Equal(t, []int{2, 2, 2}, tt.Dims)

	tt, base, err = ReadWithBase(strings.NewReader("1 1 1 3\n"), DetectBase)
	assert.NoError(t, err)
	assert.Equal(t, OneBased, base)
	assert.Equal(t, []int{0}, tt.Ind[0])

	_, _, err = ReadWithBase(strings.NewReader("1 0 1 3\n"), OneBased)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestReadDuplicates(t *testing.T) {
	tt, err := Read(strings.NewReader("1 1 1 1\n2 2 2 5\n1 1 1 2\n"))
	assert.NoError(t, err)
	assert.Equal(t, 2, tt.NNZ())
	assert.Equal(t, []float64{3, 5}, tt.Vals)
}

func TestReadInvalid(t *testing.T) {
	_, err := Read(strings.NewReader(""))
	assert.Error(t, err)
	_, err = Read(strings.NewReader("1 1 1 1\n1 1 1\n"))
	assert.Error(t, err)
	_, err = Read(strings.NewReader("1 x 1 1\n"))
	assert.Error(t, err)
	_, err = Read(strings.NewReader("1 1 1 y\n"))
	assert.Error(t, err)
	_, err = Read(strings.NewReader("1 -1 1 1\n"))
	assert.Error(t, err)
	_, err = Read(strings.NewReader("1\n"))
	assert.Error(t, err)
}

func TestWriteFile(t *testing.T) {
	tt, err := Read(strings.NewReader(coordinateList))
	assert.NoError(t, err)
	path := filepath.Join(t.TempDir(), "tensor.tns")
	assert.NoError(t, WriteFile(path, tt))
	loaded, err := ReadFile(path)
	assert.NoError(t, err)
	assert.Equal(t, tt, loaded)
	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.tns"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tt := New(3, 2)
	tt.Ind[0][1] = 2
	tt.Vals[0], tt.Vals[1] = 1, 2
	tt.FitDims()
	assert.Equal(t, []int{3, 1, 1}, tt.Dims)
	assert.NoError(t, tt.Validate())
	tt.Dims[0] = 2
	assert.Error(t, tt.Validate())
	tt.Dims[0] = 3
	tt.Ind[1] = tt.Ind[1][:1]
	assert.Error(t, tt.Validate())
	assert.Error(t, (*SpTensor)(nil).Validate())
	assert.Zero(t, (*SpTensor)(nil).NNZ())
}

func TestClone(t *testing.T) {
	tt, err := Read(strings.NewReader(coordinateList))
	assert.NoError(t, err)
	c := tt.Clone()
	assert.Equal(t, tt, c)
	c.Vals[0] = 100
	c.Ind[0][0] = 3
	assert.Equal(t, 1.5, tt.Vals[0])
	assert.Equal(t, 0, tt.Ind[0][0])
	assert.Equal(t, []int{0, 0, 0}, tt.Coord(0, nil))
}

func TestSortedPermutation(t *testing.T) {
	tt, err := Read(strings.NewReader(coordinateList))
	assert.NoError(t, err)
	// sort by mode 2 first, then mode 0 and 1
	perm := tt.SortedPermutation([]int{2, 0, 1})
	assert.Equal(t, []int{0, 2, 1, 3}, perm)
}

func TestWriteDense(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, WriteDense(buf, 2, 2, []float64{1, -2, 3, 4}))
	assert.Equal(t, "+1.00000000e+00 -2.00000000e+00 \n+3.00000000e+00 +4.00000000e+00 \n", buf.String())
	assert.Error(t, WriteDense(buf, 2, 3, []float64{1}))
	path := filepath.Join(t.TempDir(), "mode1.mat")
	assert.NoError(t, WriteDenseFile(path, 1, 1, []float64{1}))
}

func TestWriteSparse(t *testing.T) {
	mat := &SparseMatrix{
		Rows:   2,
		Cols:   3,
		RowPtr: []int{0, 2, 3},
		ColInd: []int{0, 2, 1},
		Vals:   []float64{1, 2, 3},
	}
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, WriteSparse(buf, mat))
	assert.Equal(t, "2 3 3\n1 1 3 2 \n2 3 \n", buf.String())
	mat.RowPtr = mat.RowPtr[:2]
	assert.Error(t, WriteSparse(buf, mat))
}

func TestPermutationAndPartition(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, WritePermutation(buf, []int{2, 0, 1}))
	assert.Equal(t, "2\n0\n1\n", buf.String())

	buf.Reset()
	assert.NoError(t, WritePartition(buf, []int{0, 1, 1, 3}))
	parts, nparts, err := ReadPartition(buf, 4)
	assert.NoError(t, err)
	assert.Equal(t, []int{0, 1, 1, 3}, parts)
	assert.Equal(t, 4, nparts)

	_, _, err = ReadPartition(strings.NewReader("0\n1\n"), 3)
	assert.Error(t, err)
	_, _, err = ReadPartition(strings.NewReader("0\n-1\n"), 2)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "perm.txt")
	assert.NoError(t, WritePermutationFile(path, []int{0}))
}
