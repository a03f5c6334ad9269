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
	"os"
	"strconv"
	"strings"

	"github.com/gorse-io/gorse-tensor/base/log"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const maxLineSize = 1 << 20

// ReadFile loads a sparse tensor from a coordinate-list file. See Read for the format.
func ReadFile(path string) (*SpTensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer f.Close()
	tt, err := Read(f)
	if err != nil {
		return nil, errors.Annotatef(err, "read tensor %s", path)
	}
	log.Logger().Info("load tensor",
		zap.String("path", path),
		zap.Int("nmodes", tt.NModes),
		zap.Ints("dims", tt.Dims),
		zap.Int("nnz", tt.NNZ()))
	return tt, nil
}

// Base is the index base of a coordinate-list file.
type Base int

const (
	// DetectBase takes a file as one-based unless a zero index appears anywhere in it.
	DetectBase Base = iota
	ZeroBased
	OneBased
)

func (b Base) String() string {
	switch b {
	case ZeroBased:
		return "zero-based"
	case OneBased:
		return "one-based"
	default:
		return "detect"
	}
}

// Read parses a coordinate list: one nonzero per line, the indices of every mode followed
// by the value, separated by whitespace. Blank lines and lines starting with '#' are
// skipped. Indices are one-based unless a zero index appears anywhere in the file, in
// which case the whole file is taken as zero-based. Duplicate coordinates are summed.
func Read(r io.Reader) (*SpTensor, error) {
	tt, _, err := ReadWithBase(r, DetectBase)
	return tt, err
}

// ReadWithBase parses a coordinate list like Read with the given index base and returns
// the base used. Files that share an index space, e.g. a training tensor and its
// validation tensor, must be read with the same base. A zero index is an error in a
// one-based file.
func ReadWithBase(r io.Reader, base Base) (*SpTensor, Base, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	var (
		nmodes  int
		ind     [][]int
		vals    []float64
		zeroIdx bool
	)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if nmodes == 0 {
			nmodes = len(fields) - 1
			if nmodes < 1 {
				return nil, base, errors.Errorf("line %d: expected indices followed by a value", lineNo)
			}
			ind = make([][]int, nmodes)
		}
		if len(fields) != nmodes+1 {
			return nil, base, errors.Errorf("line %d: expected %d fields, got %d", lineNo, nmodes+1, len(fields))
		}
		for m := 0; m < nmodes; m++ {
			i, err := strconv.Atoi(fields[m])
			if err != nil {
				return nil, base, errors.Annotatef(err, "line %d", lineNo)
			}
			if i < 0 {
				return nil, base, errors.Errorf("line %d: negative index %d", lineNo, i)
			}
			if i == 0 {
				zeroIdx = true
			}
			ind[m] = append(ind[m], i)
		}
		v, err := strconv.ParseFloat(fields[nmodes], 64)
		if err != nil {
			return nil, base, errors.Annotatef(err, "line %d", lineNo)
		}
		vals = append(vals, v)
	}
	if err := sc.Err(); err != nil {
		return nil, base, errors.Trace(err)
	}
	if nmodes == 0 {
		return nil, base, errors.New("empty tensor file")
	}
	if base == DetectBase {
		base = lo.Ternary(zeroIdx, ZeroBased, OneBased)
	} else if base == OneBased && zeroIdx {
		return nil, base, errors.NotValidf("zero index in a one-based file")
	}
	if base == OneBased {
		for m := range ind {
			for n := range ind[m] {
				ind[m][n]--
			}
		}
	}
	tt := &SpTensor{NModes: nmodes, Dims: make([]int, nmodes), Ind: ind, Vals: vals}
	tt.FitDims()
	if removed := tt.RemoveDuplicates(); removed > 0 {
		log.Logger().Warn("duplicate nonzeros merged", zap.Int("removed", removed))
	}
	return tt, base, nil
}

// Write writes a tensor as a one-based coordinate list.
func Write(w io.Writer, tt *SpTensor) error {
	bw := bufio.NewWriter(w)
	for n := 0; n < tt.NNZ(); n++ {
		for m := 0; m < tt.NModes; m++ {
			if _, err := fmt.Fprintf(bw, "%d ", tt.Ind[m][n]+1); err != nil {
				return errors.Trace(err)
			}
		}
		if _, err := fmt.Fprintf(bw, "%g\n", tt.Vals[n]); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(bw.Flush())
}

// WriteFile writes a tensor to path. See Write.
func WriteFile(path string, tt *SpTensor) error {
	return writeFile(path, func(w io.Writer) error {
		return Write(w, tt)
	})
}

func writeFile(path string, write func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	if err = write(f); err != nil {
		_ = f.Close()
		return errors.Annotatef(err, "write %s", path)
	}
	return errors.Trace(f.Close())
}
