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
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/samber/lo"
)

// WriteDense writes a row-major rows x cols matrix, one row per line.
func WriteDense(w io.Writer, rows, cols int, data []float64) error {
	if len(data) != rows*cols {
		return errors.NotValidf("%d values for a %dx%d matrix", len(data), rows, cols)
	}
	bw := bufio.NewWriter(w)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if _, err := fmt.Fprintf(bw, "%+0.8e ", data[i*cols+j]); err != nil {
				return errors.Trace(err)
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(bw.Flush())
}

// WriteDenseFile writes a dense matrix to path. See WriteDense.
func WriteDenseFile(path string, rows, cols int, data []float64) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteDense(w, rows, cols, data)
	})
}

// SparseMatrix is a matrix in compressed sparse row format. Row i holds the entries
// RowPtr[i] <= k < RowPtr[i+1] with column ColInd[k] and value Vals[k].
type SparseMatrix struct {
	Rows   int
	Cols   int
	RowPtr []int
	ColInd []int
	Vals   []float64
}

// WriteSparse writes a header line "rows cols nnz" followed by one line per row holding
// one-based "column value" pairs.
func WriteSparse(w io.Writer, mat *SparseMatrix) error {
	if len(mat.RowPtr) != mat.Rows+1 || len(mat.ColInd) != len(mat.Vals) {
		return errors.NotValidf("sparse matrix with %d row pointers for %d rows", len(mat.RowPtr), mat.Rows)
	}
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%d %d %d\n", mat.Rows, mat.Cols, len(mat.Vals)); err != nil {
		return errors.Trace(err)
	}
	for i := 0; i < mat.Rows; i++ {
		for k := mat.RowPtr[i]; k < mat.RowPtr[i+1]; k++ {
			if _, err := fmt.Fprintf(bw, "%d %g ", mat.ColInd[k]+1, mat.Vals[k]); err != nil {
				return errors.Trace(err)
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(bw.Flush())
}

// WriteSparseFile writes a sparse matrix to path. See WriteSparse.
func WriteSparseFile(path string, mat *SparseMatrix) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteSparse(w, mat)
	})
}

// WritePermutation writes a permutation, one entry per line.
func WritePermutation(w io.Writer, perm []int) error {
	return writeInts(w, perm)
}

// WritePermutationFile writes a permutation to path.
func WritePermutationFile(path string, perm []int) error {
	return writeFile(path, func(w io.Writer) error {
		return WritePermutation(w, perm)
	})
}

// WritePartition writes a partition vector, the part id of each vertex per line.
func WritePartition(w io.Writer, parts []int) error {
	return writeInts(w, parts)
}

// ReadPartition reads a partition vector of nvtxs entries. It returns the part of each
// vertex and the number of parts, which is one past the largest part id.
func ReadPartition(r io.Reader, nvtxs int) ([]int, int, error) {
	sc := bufio.NewScanner(r)
	parts := make([]int, 0, nvtxs)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p, err := strconv.Atoi(line)
		if err != nil {
			return nil, 0, errors.Trace(err)
		}
		if p < 0 {
			return nil, 0, errors.NotValidf("negative part id %d", p)
		}
		parts = append(parts, p)
	}
	if err := sc.Err(); err != nil {
		return nil, 0, errors.Trace(err)
	}
	if len(parts) != nvtxs {
		return nil, 0, errors.NotValidf("partition with %d entries for %d vertices", len(parts), nvtxs)
	}
	if nvtxs == 0 {
		return parts, 0, nil
	}
	return parts, lo.Max(parts) + 1, nil
}

func writeInts(w io.Writer, a []int) error {
	bw := bufio.NewWriter(w)
	for _, v := range a {
		if _, err := fmt.Fprintf(bw, "%d\n", v); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(bw.Flush())
}
