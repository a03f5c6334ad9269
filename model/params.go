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

package model

import (
	"fmt"

	"github.com/gorse-io/gorse-tensor/base/log"
	"go.uber.org/zap"
)

// ParamName is the type of hyper-parameter names.
type ParamName string

// Predefined hyper-parameter names
const (
	NFactors    ParamName = "NFactors"    // number of factors
	NEpochs     ParamName = "NEpochs"     // maximum number of epochs
	Reg         ParamName = "Reg"         // regularization strength, one value or one per mode
	Tolerance   ParamName = "Tolerance"   // convergence tolerance on validation RMSE
	InitLow     ParamName = "InitLow"     // lower bound of uniform initial parameters
	InitHigh    ParamName = "InitHigh"    // upper bound of uniform initial parameters
	RandomState ParamName = "RandomState" // random state (seed)
)

// Params stores hyper-parameters for a model. It is a map between names and values.
// For example, hyper-parameters for CP-ALS are given by:
//
//	model.Params{
//		model.NFactors: 10,
//		model.NEpochs:  50,
//		model.Reg:      []float64{0.01, 0.01, 0.01},
//	}
type Params map[ParamName]interface{}

// Copy hyper-parameters.
func (parameters Params) Copy() Params {
	newParams := make(Params, len(parameters))
	for k, v := range parameters {
		newParams[k] = v
	}
	return newParams
}

// Overwrite returns a copy of parameters updated by params.
func (parameters Params) Overwrite(params Params) Params {
	merged := parameters.Copy()
	for k, v := range params {
		merged[k] = v
	}
	return merged
}

// GetInt gets an integer parameter by name. Returns _default if not exists or type doesn't match.
func (parameters Params) GetInt(name ParamName, _default int) int {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int:
			return val
		default:
			typeMismatch("Params.GetInt", name, "int", val)
		}
	}
	return _default
}

// GetInt64 gets an int64 parameter by name. Returns _default if not exists or type doesn't match. The
// type will be converted if given int.
func (parameters Params) GetInt64(name ParamName, _default int64) int64 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int64:
			return val
		case int:
			return int64(val)
		default:
			typeMismatch("Params.GetInt64", name, "int64", val)
		}
	}
	return _default
}

// GetFloat64 gets a float64 parameter by name. Returns _default if not exists or type doesn't match.
// The type will be converted if given int.
func (parameters Params) GetFloat64(name ParamName, _default float64) float64 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case float64:
			return val
		case float32:
			return float64(val)
		case int:
			return float64(val)
		default:
			typeMismatch("Params.GetFloat64", name, "float64", val)
		}
	}
	return _default
}

// GetFloat64s gets a per-mode float64 parameter of length n. A scalar is broadcast to every
// mode. Returns _default broadcast if not exists, type doesn't match or the length is wrong.
func (parameters Params) GetFloat64s(name ParamName, n int, _default float64) []float64 {
	broadcast := func(v float64) []float64 {
		a := make([]float64, n)
		for i := range a {
			a[i] = v
		}
		return a
	}
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case []float64:
			if len(val) == n {
				return append([]float64(nil), val...)
			}
			log.Logger().Error("Params.GetFloat64s: unexpected length",
				zap.String("name", string(name)), zap.Int("expect", n), zap.Int("actual", len(val)))
		case float64:
			return broadcast(val)
		case int:
			return broadcast(float64(val))
		default:
			typeMismatch("Params.GetFloat64s", name, "[]float64", val)
		}
	}
	return broadcast(_default)
}

func typeMismatch(getter string, name ParamName, expect string, val interface{}) {
	log.Logger().Error(getter+": unexpected type",
		zap.String("name", string(name)),
		zap.String("expect", expect),
		zap.String("actual", fmt.Sprintf("%T", val)))
}
