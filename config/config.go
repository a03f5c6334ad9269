// Copyright 2020 gorse Project Authors
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

package config

import (
	"reflect"
	"runtime"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/gorse-io/gorse-tensor/base/log"
	"github.com/gorse-io/gorse-tensor/model"
	"github.com/gorse-io/gorse-tensor/model/cp"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the configuration of gorse-tensor.
type Config struct {
	ALS    ALSConfig    `mapstructure:"als"`
	Output OutputConfig `mapstructure:"output"`
}

// ALSConfig is the configuration of CP-ALS training.
type ALSConfig struct {
	Rank           int       `mapstructure:"rank" validate:"gt=0"`
	MaxIterations  int       `mapstructure:"max_iterations" validate:"gte=0"`
	Regularization []float64 `mapstructure:"regularization" validate:"len=3,dive,gte=0"`
	Tolerance      float64   `mapstructure:"tolerance" validate:"gte=0"`
	Jobs           int       `mapstructure:"jobs" validate:"gt=0"`
	ChunkSize      int       `mapstructure:"chunk_size" validate:"gt=0"`
	InitLow        float64   `mapstructure:"init_low"`
	InitHigh       float64   `mapstructure:"init_high" validate:"gtefield=InitLow"`
	RandomState    int64     `mapstructure:"random_state"`
}

// OutputConfig is the configuration of training outputs.
type OutputConfig struct {
	Prefix       string `mapstructure:"prefix"`
	ModelFile    string `mapstructure:"model_file"`
	WriteFactors bool   `mapstructure:"write_factors"`
}

func GetDefaultConfig() *Config {
	return &Config{
		ALS: ALSConfig{
			Rank:           10,
			MaxIterations:  50,
			Regularization: []float64{0.02, 0.02, 0.02},
			Tolerance:      1e-8,
			Jobs:           runtime.NumCPU(),
			ChunkSize:      4,
			InitLow:        0,
			InitHigh:       1,
			RandomState:    0,
		},
		Output: OutputConfig{
			Prefix:       "./",
			WriteFactors: true,
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [als]
	v.SetDefault("als.rank", defaultConfig.ALS.Rank)
	v.SetDefault("als.max_iterations", defaultConfig.ALS.MaxIterations)
	v.SetDefault("als.regularization", defaultConfig.ALS.Regularization)
	v.SetDefault("als.tolerance", defaultConfig.ALS.Tolerance)
	v.SetDefault("als.jobs", defaultConfig.ALS.Jobs)
	v.SetDefault("als.chunk_size", defaultConfig.ALS.ChunkSize)
	v.SetDefault("als.init_low", defaultConfig.ALS.InitLow)
	v.SetDefault("als.init_high", defaultConfig.ALS.InitHigh)
	v.SetDefault("als.random_state", defaultConfig.ALS.RandomState)
	// [output]
	v.SetDefault("output.prefix", defaultConfig.Output.Prefix)
	v.SetDefault("output.model_file", defaultConfig.Output.ModelFile)
	v.SetDefault("output.write_factors", defaultConfig.Output.WriteFactors)
}

type environmentBinding struct {
	key string
	env string
}

var bindings = []environmentBinding{
	{"als.rank", "GORSE_TENSOR_RANK"},
	{"als.max_iterations", "GORSE_TENSOR_MAX_ITERATIONS"},
	{"als.regularization", "GORSE_TENSOR_REGULARIZATION"},
	{"als.tolerance", "GORSE_TENSOR_TOLERANCE"},
	{"als.jobs", "GORSE_TENSOR_JOBS"},
	{"als.chunk_size", "GORSE_TENSOR_CHUNK_SIZE"},
	{"als.random_state", "GORSE_TENSOR_RANDOM_STATE"},
	{"als.init_low", "GORSE_TENSOR_INIT_LOW"},
	{"als.init_high", "GORSE_TENSOR_INIT_HIGH"},
	{"output.prefix", "GORSE_TENSOR_OUTPUT_PREFIX"},
	{"output.model_file", "GORSE_TENSOR_MODEL_FILE"},
	{"output.write_factors", "GORSE_TENSOR_WRITE_FACTORS"},
}

// broadcastHookFunc decodes a single number into a []float64 of length n.
func broadcastHookFunc(n int) mapstructure.DecodeHookFuncType {
	return func(_ reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf([]float64(nil)) {
			return data, nil
		}
		var value float64
		switch data := data.(type) {
		case float64:
			value = data
		case int:
			value = float64(data)
		case int64:
			value = float64(data)
		case string:
			if strings.Contains(data, ",") {
				return data, nil
			}
			parsed, err := strconv.ParseFloat(strings.TrimSpace(data), 64)
			if err != nil {
				return nil, errors.Trace(err)
			}
			value = parsed
		default:
			return data, nil
		}
		return lo.Times(n, func(int) float64 { return value }), nil
	}
}

// LoadConfig loads configuration from a TOML file. An empty path loads defaults. Environment
// variables override both.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefault(v)
	for _, binding := range bindings {
		if err := v.BindEnv(binding.key, binding.env); err != nil {
			log.Logger().Fatal("failed to bind a Viper key to a ENV variable", zap.Error(err))
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	var conf Config
	if err := v.Unmarshal(&conf, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		broadcastHookFunc(cp.NModes),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

// Validate checks value ranges.
func (config *Config) Validate() error {
	return errors.Trace(validator.New().Struct(config))
}

// GetParams returns the hyper-parameters of CP-ALS.
func (config *ALSConfig) GetParams() model.Params {
	return model.Params{
		model.NFactors:    config.Rank,
		model.NEpochs:     config.MaxIterations,
		model.Reg:         append([]float64(nil), config.Regularization...),
		model.Tolerance:   config.Tolerance,
		model.InitLow:     config.InitLow,
		model.InitHigh:    config.InitHigh,
		model.RandomState: config.RandomState,
	}
}

// GetFitConfig returns the fit options of CP-ALS.
func (config *ALSConfig) GetFitConfig() *cp.FitConfig {
	return cp.NewFitConfig().
		SetJobs(config.Jobs).
		SetChunkSize(config.ChunkSize)
}
