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
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/lapack/lapack64"
)

// solveStatus reports which stage of a dense solve failed, if any.
type solveStatus int

const (
	solveOK solveStatus = iota
	factorizeFailed
	substituteFailed
)

func (s solveStatus) String() string {
	switch s {
	case solveOK:
		return "ok"
	case factorizeFailed:
		return "factorize"
	case substituteFailed:
		return "solve"
	default:
		return "unknown"
	}
}

// oprod accumulates the outer product of v into the row-major len(v) x len(v) matrix out.
// The full matrix is written.
func oprod(v, out []float64) {
	n := len(v)
	_ = out[n*n-1]
	for i, vi := range v {
		row := out[i*n : (i+1)*n]
		for j, vj := range v {
			row[j] += vi * vj
		}
	}
}

// solveNormals solves a x = b for the symmetric positive definite rank x rank matrix a,
// overwriting b with x. Only the upper triangle of a is read and a is overwritten by its
// Cholesky factor. If the factorization fails b is left untouched; if a triangular solve
// fails b holds the partial result.
func solveNormals(rank int, a, b []float64) solveStatus {
	t, ok := lapack64.Potrf(blas64.Symmetric{
		Uplo:   blas.Upper,
		N:      rank,
		Stride: rank,
		Data:   a,
	})
	if !ok {
		return factorizeFailed
	}
	// a = U^T U: forward substitution with U^T then back substitution with U
	rhs := blas64.General{Rows: rank, Cols: 1, Stride: 1, Data: b}
	if !lapack64.Trtrs(blas.Trans, t, rhs) {
		return substituteFailed
	}
	if !lapack64.Trtrs(blas.NoTrans, t, rhs) {
		return substituteFailed
	}
	return solveOK
}
