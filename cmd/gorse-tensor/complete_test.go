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

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorse-io/gorse-tensor/config"
	"github.com/gorse-io/gorse-tensor/model/cp"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
)

const trainText = `# one-based coordinates
1 1 1 1.0
2 2 2 2.0
3 3 3 3.0
1 2 3 0.5
2 3 1 1.5
3 1 2 2.5
`

const validateText = `1 1 2 1.0
4 2 1 2.0
`

func writeTensor(t *testing.T, name, text string) string {
	path := filepath.Join(t.TempDir(), name)
	assert.NoError(t, os.WriteFile(path, []byte(text), 0644))
	return path
}

func TestOverrideConfig(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addCompleteFlags(flags)
	assert.NoError(t, flags.Parse([]string{"--rank", "4", "--reg", "0.5", "--chunk", "2"}))
	conf := config.GetDefaultConfig()
	assert.NoError(t, overrideConfig(flags, conf))
	assert.Equal(t, 4, conf.ALS.Rank)
	assert.Equal(t, []float64{0.5, 0.5, 0.5}, conf.ALS.Regularization)
	assert.Equal(t, 2, conf.ALS.ChunkSize)
	// unset flags keep the config
	assert.Equal(t, 50, conf.ALS.MaxIterations)
	assert.Equal(t, "./", conf.Output.Prefix)

	flags = pflag.NewFlagSet("test", pflag.ContinueOnError)
	addCompleteFlags(flags)
	assert.NoError(t, flags.Parse([]string{"--reg", "0.1,0.2"}))
	assert.Error(t, overrideConfig(flags, config.GetDefaultConfig()))
}

func TestReadTensors(t *testing.T) {
	train, validate, err := readTensors(
		writeTensor(t, "train.tns", trainText),
		writeTensor(t, "validate.tns", validateText))
	assert.NoError(t, err)
	assert.Equal(t, 6, train.NNZ())
	assert.Equal(t, 2, validate.NNZ())
	assert.Equal(t, []int{4, 3, 3}, train.Dims)

	train, validate, err = readTensors(writeTensor(t, "train.tns", trainText), "")
	assert.NoError(t, err)
	assert.Nil(t, validate)
	assert.Equal(t, []int{3, 3, 3}, train.Dims)

	_, _, err = readTensors(filepath.Join(t.TempDir(), "missing.tns"), "")
	assert.Error(t, err)
}

func TestReadTensorsSharedBase(t *testing.T) {
	// the validation file has no zero index but follows the zero-based training file
	train, validate, err := readTensors(
		writeTensor(t, "train.tns", "0 0 0 1\n1 1 1 2\n"),
		writeTensor(t, "validate.tns", "1 1 1 3\n"))
	assert.NoError(t, err)
	assert.Equal(t, []int{1}, validate.Ind[0])
	assert.Equal(t, []int{1}, validate.Ind[1])
	assert.Equal(t, []int{1}, validate.Ind[2])
	assert.Equal(t, []int{2, 2, 2}, train.Dims)

	// a zero index in the validation file of a one-based training file is rejected
	_, _, err = readTensors(
		writeTensor(t, "train.tns", trainText),
		writeTensor(t, "validate.tns", "0 1 1 3\n"))
	assert.Error(t, err)
}

func TestComplete(t *testing.T) {
	dir := t.TempDir()
	conf := config.GetDefaultConfig()
	conf.ALS.Rank = 2
	conf.ALS.MaxIterations = 5
	conf.ALS.Jobs = 2
	conf.Output.Prefix = filepath.Join(dir, "out") + string(filepath.Separator)
	conf.Output.ModelFile = filepath.Join(dir, "model.bin")
	result, err := complete(context.Background(), conf,
		writeTensor(t, "train.tns", trainText),
		writeTensor(t, "validate.tns", validateText))
	assert.NoError(t, err)
	assert.NotEmpty(t, result.Records)
	for mode := 0; mode < cp.NModes; mode++ {
		assert.FileExists(t, filepath.Join(dir, "out", "mode"+string(rune('1'+mode))+".mat"))
	}
	m, err := cp.LoadModel(conf.Output.ModelFile)
	assert.NoError(t, err)
	assert.Equal(t, []int{4, 3, 3}, m.Dims)
	// row 3 of mode 0 only appears in the validation tensor
	assert.False(t, m.IsTrained(0, 3))

	var buf bytes.Buffer
	printSummary(&buf, result, nil)
	assert.Contains(t, buf.String(), "RMSE-vl")
}
