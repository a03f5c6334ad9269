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
	"context"
	"math"

	"github.com/c-bata/goptuna"
	"github.com/c-bata/goptuna/tpe"
	"github.com/gorse-io/gorse-tensor/base/log"
	"github.com/gorse-io/gorse-tensor/model"
	"github.com/gorse-io/gorse-tensor/tensor"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// SearchSpace bounds the rank and the regularization tried by ModelSearch. The
// regularization is sampled on a log scale and shared by all modes.
type SearchSpace struct {
	MinRank int
	MaxRank int
	MinReg  float64
	MaxReg  float64
}

func DefaultSearchSpace() SearchSpace {
	return SearchSpace{MinRank: 2, MaxRank: 32, MinReg: 1e-4, MaxReg: 1}
}

// SearchResult is the best trial of a search.
type SearchResult struct {
	Params model.Params
	RMSE   float64
	Epochs int
	Trials int
}

// ModelSearch tunes ALS hyper-parameters by TPE, minimizing the validation RMSE of the
// last epoch.
type ModelSearch struct {
	params   model.Params
	space    SearchSpace
	train    *tensor.SpTensor
	validate *tensor.SpTensor
	config   *FitConfig
	result   SearchResult
}

// NewModelSearch creates a search. Hyper-parameters in params that are not searched are
// passed to every trial unchanged.
func NewModelSearch(params model.Params, space SearchSpace, train, validate *tensor.SpTensor, config *FitConfig) *ModelSearch {
	return &ModelSearch{
		params:   params.Copy(),
		space:    space,
		train:    train,
		validate: validate,
		config:   config,
		result:   SearchResult{RMSE: math.Inf(1)},
	}
}

// SuggestParams samples the hyper-parameters of one trial.
func (ms *ModelSearch) SuggestParams(trial goptuna.Trial) (model.Params, error) {
	rank, err := trial.SuggestInt(string(model.NFactors), ms.space.MinRank, ms.space.MaxRank)
	if err != nil {
		return nil, errors.Trace(err)
	}
	reg, err := trial.SuggestLogFloat(string(model.Reg), ms.space.MinReg, ms.space.MaxReg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return ms.params.Overwrite(model.Params{
		model.NFactors: rank,
		model.Reg:      reg,
	}), nil
}

func (ms *ModelSearch) objective(ctx context.Context, trial goptuna.Trial) (float64, error) {
	params, err := ms.SuggestParams(trial)
	if err != nil {
		return 0, errors.Trace(err)
	}
	als := NewALS(params)
	m := als.Init(ms.train.Dims)
	result, err := als.Fit(ctx, ms.train, ms.validate, m, ms.config)
	if err == nil || errors.Is(err, ErrNonFinite) {
		ms.result.Trials++
	}
	if errors.Is(err, ErrNonFinite) {
		log.Logger().Warn("trial diverged", zap.Any("params", params), zap.Error(err))
		return math.MaxFloat64, nil
	} else if err != nil {
		return 0, errors.Trace(err)
	}
	last, _ := result.Last()
	if last.ValidateRMSE < ms.result.RMSE {
		ms.result.Params = params
		ms.result.RMSE = last.ValidateRMSE
		ms.result.Epochs = len(result.Records)
	}
	log.Logger().Info("finish trial",
		zap.Any("params", params),
		zap.Float64("validate_rmse", last.ValidateRMSE),
		zap.Int("epochs", len(result.Records)))
	return last.ValidateRMSE, nil
}

// Search runs nTrials trials and returns the best one. The samples are reproducible
// for a fixed seed.
func (ms *ModelSearch) Search(ctx context.Context, nTrials int, seed int64) (SearchResult, error) {
	if ms.validate.NNZ() == 0 {
		return SearchResult{}, errors.NotValidf("empty validation tensor")
	}
	if ms.space.MinRank <= 0 || ms.space.MinRank > ms.space.MaxRank {
		return SearchResult{}, errors.NotValidf("rank range [%d, %d]", ms.space.MinRank, ms.space.MaxRank)
	}
	if ms.space.MinReg <= 0 || ms.space.MinReg > ms.space.MaxReg {
		return SearchResult{}, errors.NotValidf("regularization range [%v, %v]", ms.space.MinReg, ms.space.MaxReg)
	}
	study, err := goptuna.CreateStudy("cp-als",
		goptuna.StudyOptionDirection(goptuna.StudyDirectionMinimize),
		goptuna.StudyOptionSampler(tpe.NewSampler(tpe.SamplerOptionSeed(seed))))
	if err != nil {
		return SearchResult{}, errors.Trace(err)
	}
	if err = study.Optimize(func(trial goptuna.Trial) (float64, error) {
		return ms.objective(ctx, trial)
	}, nTrials); err != nil {
		return SearchResult{}, errors.Trace(err)
	}
	if err = ctx.Err(); err != nil {
		return SearchResult{}, errors.Trace(err)
	}
	return ms.result, nil
}
