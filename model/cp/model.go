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
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/bits-and-blooms/bitset"
	"github.com/gorse-io/gorse-tensor/base"
	"github.com/gorse-io/gorse-tensor/base/encoding"
	"github.com/gorse-io/gorse-tensor/common/floats"
	"github.com/gorse-io/gorse-tensor/tensor"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"
)

// Model is a CP factorization: one dense Dims[m] x Rank factor matrix per mode, stored
// row-major in Factors[m]. Trained[m] marks the rows of mode m that had at least one
// training nonzero in the last fit; other rows keep their initial values.
type Model struct {
	Rank    int
	NModes  int
	Dims    []int
	Factors [][]float64
	Trained []*bitset.BitSet
}

// modelFormat tags model files written by Marshal.
const modelFormat = "gorse-tensor/cp/v1"

type modelHeader struct {
	Rank   int
	NModes int
	Dims   []int
}

// NewModel creates a model with factors drawn uniformly from [low, high).
func NewModel(dims []int, rank int, rng base.RandomGenerator, low, high float64) *Model {
	m := &Model{
		Rank:    rank,
		NModes:  len(dims),
		Dims:    slices.Clone(dims),
		Factors: make([][]float64, len(dims)),
		Trained: make([]*bitset.BitSet, len(dims)),
	}
	for mode, dim := range dims {
		m.Factors[mode] = rng.UniformDense(dim, rank, low, high)
		m.Trained[mode] = bitset.New(uint(dim))
	}
	return m
}

func (m *Model) validate() error {
	if m.Rank < 1 {
		return errors.NotValidf("rank %d", m.Rank)
	}
	if m.NModes < 1 || len(m.Dims) != m.NModes || len(m.Factors) != m.NModes || len(m.Trained) != m.NModes {
		return errors.NotValidf("model with %d modes", m.NModes)
	}
	for mode, dim := range m.Dims {
		if len(m.Factors[mode]) != dim*m.Rank {
			return errors.NotValidf("factor %d with %d values for %dx%d", mode, len(m.Factors[mode]), dim, m.Rank)
		}
	}
	return nil
}

// Row returns row i of mode. The slice aliases the factor matrix.
func (m *Model) Row(mode, i int) []float64 {
	return m.Factors[mode][i*m.Rank : (i+1)*m.Rank]
}

// IsTrained returns false if row i of mode was never updated by a fit.
func (m *Model) IsTrained(mode, i int) bool {
	return m.Trained[mode].Test(uint(i))
}

// Predict reconstructs the entry at coord.
func (m *Model) Predict(coord []int) float64 {
	if m.NModes == 3 {
		return floats.MulThreeDot(m.Row(0, coord[0]), m.Row(1, coord[1]), m.Row(2, coord[2]))
	}
	var sum float64
	for r := 0; r < m.Rank; r++ {
		prod := 1.0
		for mode := 0; mode < m.NModes; mode++ {
			prod *= m.Factors[mode][coord[mode]*m.Rank+r]
		}
		sum += prod
	}
	return sum
}

// Dense returns the factor matrix of mode as a gonum matrix sharing the model's storage.
func (m *Model) Dense(mode int) *mat.Dense {
	return mat.NewDense(m.Dims[mode], m.Rank, m.Factors[mode])
}

// Clone returns a deep copy.
func (m *Model) Clone() *Model {
	return &Model{
		Rank:    m.Rank,
		NModes:  m.NModes,
		Dims:    slices.Clone(m.Dims),
		Factors: lo.Map(m.Factors, func(f []float64, _ int) []float64 { return slices.Clone(f) }),
		Trained: lo.Map(m.Trained, func(b *bitset.BitSet, _ int) *bitset.BitSet { return b.Clone() }),
	}
}

// Marshal model into byte stream.
func (m *Model) Marshal(w io.Writer) error {
	if err := m.validate(); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteString(w, modelFormat); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, modelHeader{Rank: m.Rank, NModes: m.NModes, Dims: m.Dims}); err != nil {
		return errors.Trace(err)
	}
	for mode := 0; mode < m.NModes; mode++ {
		if err := encoding.WriteFloats(w, m.Factors[mode]); err != nil {
			return errors.Trace(err)
		}
		trained, err := m.Trained[mode].MarshalBinary()
		if err != nil {
			return errors.Trace(err)
		}
		if err = encoding.WriteBytes(w, trained); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Unmarshal model from byte stream.
func (m *Model) Unmarshal(r io.Reader) error {
	format, err := encoding.ReadString(r)
	if err != nil {
		return errors.Trace(err)
	}
	if format != modelFormat {
		return errors.NotValidf("model format %q", format)
	}
	var header modelHeader
	if err := encoding.ReadGob(r, &header); err != nil {
		return errors.Trace(err)
	}
	m.Rank, m.NModes, m.Dims = header.Rank, header.NModes, header.Dims
	if m.NModes < 1 || len(m.Dims) != m.NModes {
		return errors.NotValidf("model header with %d modes and dims %v", m.NModes, m.Dims)
	}
	m.Factors = make([][]float64, m.NModes)
	m.Trained = make([]*bitset.BitSet, m.NModes)
	for mode := 0; mode < m.NModes; mode++ {
		if m.Factors[mode], err = encoding.ReadFloats(r); err != nil {
			return errors.Trace(err)
		}
		trained, err := encoding.ReadBytes(r)
		if err != nil {
			return errors.Trace(err)
		}
		m.Trained[mode] = &bitset.BitSet{}
		if err = m.Trained[mode].UnmarshalBinary(trained); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(m.validate())
}

// SaveModel writes a model file.
func SaveModel(path string, m *Model) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	w := bufio.NewWriter(f)
	if err = m.Marshal(w); err != nil {
		_ = f.Close()
		return errors.Trace(err)
	}
	if err = w.Flush(); err != nil {
		_ = f.Close()
		return errors.Trace(err)
	}
	return errors.Trace(f.Close())
}

// LoadModel reads a model file written by SaveModel.
func LoadModel(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer f.Close()
	m := new(Model)
	if err = m.Unmarshal(bufio.NewReader(f)); err != nil {
		return nil, errors.Annotatef(err, "load model %s", path)
	}
	return m, nil
}

// WriteFactors writes the factor matrix of every mode as a dense text matrix to
// <prefix>mode<m+1>.mat and returns the paths.
func (m *Model) WriteFactors(prefix string) ([]string, error) {
	if dir := filepath.Dir(prefix); dir != "." {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, errors.Trace(err)
		}
	}
	paths := make([]string, 0, m.NModes)
	for mode := 0; mode < m.NModes; mode++ {
		path := fmt.Sprintf("%smode%d.mat", prefix, mode+1)
		if err := tensor.WriteDenseFile(path, m.Dims[mode], m.Rank, m.Factors[mode]); err != nil {
			return nil, errors.Trace(err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
