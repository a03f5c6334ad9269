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
	"fmt"
	"io"
	"math"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/gorse-io/gorse-tensor/base/log"
	"github.com/gorse-io/gorse-tensor/base/progress"
	"github.com/gorse-io/gorse-tensor/common/parallel"
	"github.com/gorse-io/gorse-tensor/csf"
	"github.com/gorse-io/gorse-tensor/model"
	"github.com/gorse-io/gorse-tensor/tensor"
	"github.com/juju/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// NModes is the only tensor order ALS supports.
const NModes = 3

const tracerName = "github.com/gorse-io/gorse-tensor/model/cp"

// ErrNonFinite is returned by Fit when the objective or an RMSE becomes NaN or infinite.
var ErrNonFinite = errors.New("non-finite objective or RMSE")

type FitConfig struct {
	Jobs      int
	ChunkSize int
	Verbose   int
	Progress  io.Writer
}

func NewFitConfig() *FitConfig {
	return &FitConfig{
		Jobs:      runtime.NumCPU(),
		ChunkSize: parallel.DefaultChunkSize,
		Verbose:   10,
		Progress:  os.Stdout,
	}
}

func (config *FitConfig) SetJobs(jobs int) *FitConfig {
	config.Jobs = jobs
	return config
}

func (config *FitConfig) SetChunkSize(chunkSize int) *FitConfig {
	config.ChunkSize = chunkSize
	return config
}

func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

// SetProgress sets the writer of per-epoch progress lines. Nil disables them.
func (config *FitConfig) SetProgress(w io.Writer) *FitConfig {
	config.Progress = w
	return config
}

// EpochRecord is the progress of one epoch. Times are accumulated since the start of Fit.
type EpochRecord struct {
	Epoch         int
	Objective     float64
	TrainRMSE     float64
	ValidateRMSE  float64
	TrainSeconds  float64
	EvalSeconds   float64
	SolveFailures int
}

func (r EpochRecord) String() string {
	return fmt.Sprintf("epoch:%4d   obj: %0.5e   RMSE-tr: %0.5e   RMSE-vl: %0.5e time-tr: %0.3fs  time-ts: %0.3fs  solve-fail: %d",
		r.Epoch, r.Objective, r.TrainRMSE, r.ValidateRMSE, r.TrainSeconds, r.EvalSeconds, r.SolveFailures)
}

// Result summarizes a fit.
type Result struct {
	Records       []EpochRecord
	Converged     bool
	SolveFailures int
}

// Last returns the record of the last epoch, or false if no epoch ran.
func (r *Result) Last() (EpochRecord, bool) {
	if len(r.Records) == 0 {
		return EpochRecord{}, false
	}
	return r.Records[len(r.Records)-1], true
}

// ALS factorizes a three-way sparse tensor by alternating least squares. Each epoch
// updates the rows of mode 0, 1 and 2 in turn, every row being the solution of its
// regularized normal equations with the other two factors fixed.
type ALS struct {
	model.BaseModel
	nFactors  int
	nEpochs   int
	reg       []float64
	tolerance float64
	initLow   float64
	initHigh  float64
}

// NewALS creates a CP-ALS model.
func NewALS(params model.Params) *ALS {
	als := new(ALS)
	als.SetParams(params)
	return als
}

// SetParams sets hyper-parameters for the ALS model.
func (als *ALS) SetParams(params model.Params) {
	als.BaseModel.SetParams(params)
	als.nFactors = als.Params.GetInt(model.NFactors, 10)
	als.nEpochs = als.Params.GetInt(model.NEpochs, 50)
	als.reg = als.Params.GetFloat64s(model.Reg, NModes, 0.02)
	als.tolerance = als.Params.GetFloat64(model.Tolerance, 1e-8)
	als.initLow = als.Params.GetFloat64(model.InitLow, 0)
	als.initHigh = als.Params.GetFloat64(model.InitHigh, 1)
}

// Init creates a model for a tensor of the given dimensions.
func (als *ALS) Init(dims []int) *Model {
	return NewModel(dims, als.nFactors, als.GetRandomGenerator(), als.initLow, als.initHigh)
}

// converged reports whether the RMSE of epoch (one-based) moved less than tolerance.
func converged(epoch int, rmse, prevRMSE, tolerance float64) bool {
	return epoch > 1 && math.Abs(rmse-prevRMSE) < tolerance
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (als *ALS) checkInputs(train, validate *tensor.SpTensor, m *Model) error {
	if train == nil {
		return errors.NotValidf("nil training tensor")
	}
	if train.NModes != NModes {
		return errors.NotValidf("training tensor of order %d", train.NModes)
	}
	if err := train.Validate(); err != nil {
		return errors.Trace(err)
	}
	if train.NNZ() == 0 {
		return errors.NotValidf("empty training tensor")
	}
	if err := m.validate(); err != nil {
		return errors.Trace(err)
	}
	if m.NModes != NModes || m.Rank != als.nFactors {
		return errors.NotValidf("model of order %d and rank %d for rank %d", m.NModes, m.Rank, als.nFactors)
	}
	for mode := 0; mode < NModes; mode++ {
		if m.Dims[mode] != train.Dims[mode] {
			return errors.NotValidf("model dims %v for training dims %v", m.Dims, train.Dims)
		}
	}
	if validate.NNZ() > 0 {
		if validate.NModes != NModes {
			return errors.NotValidf("validation tensor of order %d", validate.NModes)
		}
		if err := validate.Validate(); err != nil {
			return errors.Trace(err)
		}
		for mode := 0; mode < NModes; mode++ {
			if validate.Dims[mode] > m.Dims[mode] {
				return errors.NotValidf("validation dims %v for model dims %v", validate.Dims, m.Dims)
			}
		}
	}
	return nil
}

// Fit updates m in place to factorize train. The validation tensor may be nil or empty,
// in which case convergence is decided by the training RMSE. The context is checked
// between mode sweeps only. The trained mask of a mode is replaced once its first sweep
// completes, so a fit of zero epochs leaves m unchanged.
func (als *ALS) Fit(ctx context.Context, train, validate *tensor.SpTensor, m *Model, config *FitConfig) (*Result, error) {
	if config == nil {
		config = NewFitConfig()
	}
	if err := als.checkInputs(train, validate, m); err != nil {
		return nil, errors.Trace(err)
	}
	jobs := max(config.Jobs, 1)
	log.Logger().Info("fit als",
		zap.Int("train_set_size", train.NNZ()),
		zap.Int("test_set_size", validate.NNZ()),
		zap.Ints("dims", train.Dims),
		zap.Any("params", als.GetParams()),
		zap.Int("jobs", jobs),
		zap.Int("chunk_size", config.ChunkSize))

	csfs, err := csf.BuildAllModes(ctx, train, jobs)
	if err != nil {
		return nil, errors.Trace(err)
	}
	trained := make([]*bitset.BitSet, NModes)
	for mode, c := range csfs {
		if err = c.Validate(); err != nil {
			return nil, errors.Annotatef(err, "csf of mode %d", mode)
		}
		trained[mode] = bitset.New(uint(m.Dims[mode]))
		for i := 0; i < c.NumSlices(); i++ {
			trained[mode].Set(uint(c.SliceRow(i)))
		}
	}
	workers := make([]*workerContext, jobs)
	for i := range workers {
		workers[i] = newWorkerContext(m.Rank)
	}

	result := &Result{}
	failures := atomic.NewInt64(0)
	var trainTime, evalTime time.Duration
	prevRMSE := 0.0
	ctx, fitSpan := otel.Tracer(tracerName).Start(ctx, "ALS.Fit", trace.WithAttributes(
		attribute.Int("rank", m.Rank),
		attribute.Int("nnz", train.NNZ()),
		attribute.IntSlice("dims", train.Dims)))
	defer fitSpan.End()
	_, span := progress.Start(ctx, "ALS.Fit", als.nEpochs)
	fail := func(err error) {
		span.Fail(err)
		fitSpan.RecordError(err)
		fitSpan.SetStatus(codes.Error, err.Error())
	}
	for ep := 1; ep <= als.nEpochs; ep++ {
		failures.Store(0)
		fitStart := time.Now()
		epochCtx, epochSpan := otel.Tracer(tracerName).Start(ctx, "ALS.Epoch",
			trace.WithAttributes(attribute.Int("epoch", ep)))
		for mode := 0; mode < NModes; mode++ {
			if err = ctx.Err(); err != nil {
				epochSpan.End()
				fail(err)
				return result, errors.Trace(err)
			}
			_, sweepSpan := otel.Tracer(tracerName).Start(epochCtx, "ALS.Sweep", trace.WithAttributes(
				attribute.Int("mode", mode),
				attribute.Int("rows", csfs[mode].NumSlices())))
			sweepStart := time.Now()
			c, reg := csfs[mode], als.reg[mode]
			err = parallel.Dynamic(c.NumSlices(), jobs, config.ChunkSize, func(workerId, begin, end int) error {
				for i := begin; i < end; i++ {
					row, status := updateRow(c, i, m, reg, workers[workerId])
					if status != solveOK {
						failures.Inc()
						SolveFailuresTotal.WithLabelValues(status.String()).Inc()
						log.Logger().Warn("failed to solve normal equations",
							zap.String("stage", status.String()),
							zap.Int("mode", mode),
							zap.Int("row", row))
					}
				}
				return nil
			})
			sweepSpan.End()
			if err != nil {
				epochSpan.End()
				fail(err)
				return result, errors.Trace(err)
			}
			SweepSeconds.WithLabelValues(strconv.Itoa(mode)).Set(time.Since(sweepStart).Seconds())
			if ep == 1 {
				m.Trained[mode] = trained[mode]
			}
		}
		trainTime += time.Since(fitStart)

		evalStart := time.Now()
		loss := LossSq(train, m, jobs)
		frob := FrobSq(m, als.reg)
		trainRMSE := math.Sqrt(loss / float64(train.NNZ()))
		valRMSE := RMSE(validate, m, jobs)
		evalTime += time.Since(evalStart)

		record := EpochRecord{
			Epoch:         ep,
			Objective:     loss + frob,
			TrainRMSE:     trainRMSE,
			ValidateRMSE:  valRMSE,
			TrainSeconds:  trainTime.Seconds(),
			EvalSeconds:   evalTime.Seconds(),
			SolveFailures: int(failures.Load()),
		}
		result.Records = append(result.Records, record)
		result.SolveFailures += record.SolveFailures
		if config.Progress != nil {
			if _, err = fmt.Fprintln(config.Progress, record.String()); err != nil {
				log.Logger().Error("failed to write progress", zap.Error(err))
			}
		}
		FitEpochsTotal.Inc()
		FitObjective.Set(record.Objective)
		FitRMSE.WithLabelValues("train").Set(trainRMSE)
		if config.Verbose > 0 && ep%config.Verbose == 0 {
			log.Logger().Debug(fmt.Sprintf("fit als %v/%v", ep, als.nEpochs),
				zap.Float64("objective", record.Objective),
				zap.Float64("train_rmse", trainRMSE),
				zap.Float64("validate_rmse", valRMSE),
				zap.String("fit_time", time.Since(fitStart).String()))
		}
		span.Add(1)

		epochSpan.SetAttributes(
			attribute.Float64("objective", record.Objective),
			attribute.Float64("train_rmse", trainRMSE),
			attribute.Int("solve_failures", record.SolveFailures))
		epochSpan.End()

		rmse := trainRMSE
		if validate.NNZ() > 0 {
			FitRMSE.WithLabelValues("validate").Set(valRMSE)
			rmse = valRMSE
		}
		if !finite(record.Objective) || !finite(rmse) || !finite(trainRMSE) {
			err = errors.Annotatef(ErrNonFinite, "epoch %d", ep)
			fail(err)
			return result, err
		}
		if converged(ep, rmse, prevRMSE, als.tolerance) {
			result.Converged = true
			break
		}
		prevRMSE = rmse
	}
	span.End()
	fitSpan.SetAttributes(
		attribute.Int("epochs", len(result.Records)),
		attribute.Bool("converged", result.Converged))

	last, _ := result.Last()
	log.Logger().Info("fit als complete",
		zap.Int("epochs", len(result.Records)),
		zap.Bool("converged", result.Converged),
		zap.Int("solve_failures", result.SolveFailures),
		zap.Float64("train_rmse", last.TrainRMSE),
		zap.Float64("validate_rmse", last.ValidateRMSE))
	return result, nil
}
