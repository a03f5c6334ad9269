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
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"

	"github.com/gorse-io/gorse-tensor/base/log"
	"github.com/gorse-io/gorse-tensor/base/progress"
	"github.com/gorse-io/gorse-tensor/config"
	"github.com/gorse-io/gorse-tensor/model/cp"
	"github.com/gorse-io/gorse-tensor/tensor"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var completeCommand = &cobra.Command{
	Use:   "complete",
	Short: "Factorize a sparse tensor and write the factor matrices.",
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")
		log.Logger().Info("load config", zap.String("config", configPath))
		conf, err := config.LoadConfig(configPath)
		if err != nil {
			log.Logger().Fatal("failed to load config", zap.Error(err))
		}
		if err = overrideConfig(cmd.Flags(), conf); err != nil {
			log.Logger().Fatal("invalid flags", zap.Error(err))
		}
		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			go serveMetrics(addr)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		tracer := progress.NewTracer("gorse-tensor")
		ctx, span := tracer.Start(ctx, "complete", 1)

		trainPath, _ := cmd.Flags().GetString("train")
		validatePath, _ := cmd.Flags().GetString("validate")
		result, err := complete(ctx, conf, trainPath, validatePath)
		if err != nil {
			span.Fail(err)
			log.Logger().Fatal("failed to complete tensor", zap.Error(err))
		}
		span.End()
		printSummary(os.Stdout, result, tracer.List())
	},
}

func init() {
	addCompleteFlags(completeCommand.Flags())
	_ = completeCommand.MarkFlagRequired("train")
}

func addCompleteFlags(flags *pflag.FlagSet) {
	flags.String("train", "", "training tensor file")
	flags.String("validate", "", "validation tensor file")
	flags.Int("rank", 0, "number of latent factors")
	flags.Int("iters", 0, "maximum number of epochs")
	flags.Float64Slice("reg", nil, "regularization of each mode, or one for all")
	flags.Int("jobs", 0, "number of workers")
	flags.Int("chunk", 0, "number of rows dispatched to a worker at once")
	flags.Int64("seed", 0, "random seed of initial factors")
	flags.String("prefix", "", "output prefix of factor matrices")
	flags.String("model", "", "output path of the binary model")
	flags.String("metrics-addr", "", "address of the prometheus metrics endpoint")
}

// overrideConfig applies flags set on the command line to conf.
func overrideConfig(flags *pflag.FlagSet, conf *config.Config) error {
	if flags.Changed("rank") {
		conf.ALS.Rank, _ = flags.GetInt("rank")
	}
	if flags.Changed("iters") {
		conf.ALS.MaxIterations, _ = flags.GetInt("iters")
	}
	if flags.Changed("reg") {
		reg, _ := flags.GetFloat64Slice("reg")
		if len(reg) == 1 {
			reg = []float64{reg[0], reg[0], reg[0]}
		}
		conf.ALS.Regularization = reg
	}
	if flags.Changed("jobs") {
		conf.ALS.Jobs, _ = flags.GetInt("jobs")
	}
	if flags.Changed("chunk") {
		conf.ALS.ChunkSize, _ = flags.GetInt("chunk")
	}
	if flags.Changed("seed") {
		conf.ALS.RandomState, _ = flags.GetInt64("seed")
	}
	if flags.Changed("prefix") {
		conf.Output.Prefix, _ = flags.GetString("prefix")
	}
	if flags.Changed("model") {
		conf.Output.ModelFile, _ = flags.GetString("model")
	}
	return errors.Trace(conf.Validate())
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Logger().Info("start metrics server", zap.String("address", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Logger().Error("failed to serve metrics", zap.Error(err))
	}
}

// complete loads the tensors, fits the model and writes its outputs.
func complete(ctx context.Context, conf *config.Config, trainPath, validatePath string) (*cp.Result, error) {
	train, validate, err := readTensors(trainPath, validatePath)
	if err != nil {
		return nil, errors.Trace(err)
	}
	als := cp.NewALS(conf.ALS.GetParams())
	m := als.Init(train.Dims)
	result, err := als.Fit(ctx, train, validate, m, conf.ALS.GetFitConfig())
	if err != nil {
		return nil, errors.Trace(err)
	}
	if conf.Output.WriteFactors {
		paths, err := m.WriteFactors(conf.Output.Prefix)
		if err != nil {
			return nil, errors.Trace(err)
		}
		log.Logger().Info("write factor matrices", zap.Strings("paths", paths))
	}
	if conf.Output.ModelFile != "" {
		if err = cp.SaveModel(conf.Output.ModelFile, m); err != nil {
			return nil, errors.Trace(err)
		}
		log.Logger().Info("save model", zap.String("path", conf.Output.ModelFile))
	}
	return result, nil
}

// readTensor loads a tensor file with a progress bar over the bytes read.
func readTensor(path, description string, base tensor.Base) (*tensor.SpTensor, tensor.Base, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, base, errors.Trace(err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, base, errors.Trace(err)
	}
	bar := progressbar.DefaultBytes(info.Size(), description)
	reader := progressbar.NewReader(f, bar)
	tt, base, err := tensor.ReadWithBase(&reader, base)
	if err != nil {
		return nil, base, errors.Annotatef(err, "read tensor %s", path)
	}
	_ = bar.Finish()
	log.Logger().Info("load tensor",
		zap.String("path", path),
		zap.Stringer("base", base),
		zap.Ints("dims", tt.Dims),
		zap.Int("nnz", tt.NNZ()))
	return tt, base, nil
}

// readTensors loads the training tensor and the optional validation tensor. Both index
// the same rows, so the validation tensor is read with the index base detected in the
// training tensor and the training dims are widened to cover it.
func readTensors(trainPath, validatePath string) (train, validate *tensor.SpTensor, err error) {
	var base tensor.Base
	if train, base, err = readTensor(trainPath, "Loading training tensor", tensor.DetectBase); err != nil {
		return nil, nil, errors.Trace(err)
	}
	if validatePath == "" {
		return train, nil, nil
	}
	if validate, _, err = readTensor(validatePath, "Loading validation tensor", base); err != nil {
		return nil, nil, errors.Trace(err)
	}
	if validate.NModes == train.NModes {
		for mode := range train.Dims {
			train.Dims[mode] = max(train.Dims[mode], validate.Dims[mode])
		}
	}
	return train, validate, nil
}

func printSummary(w io.Writer, result *cp.Result, spans []progress.Progress) {
	table := tablewriter.NewWriter(w)
	table.Header("Metric", "Value")
	last, _ := result.Last()
	_ = table.Append([]string{"Epochs", strconv.Itoa(len(result.Records))})
	_ = table.Append([]string{"Converged", strconv.FormatBool(result.Converged)})
	_ = table.Append([]string{"Objective", fmt.Sprintf("%0.5e", last.Objective)})
	_ = table.Append([]string{"RMSE-tr", fmt.Sprintf("%0.5e", last.TrainRMSE)})
	_ = table.Append([]string{"RMSE-vl", fmt.Sprintf("%0.5e", last.ValidateRMSE)})
	_ = table.Append([]string{"Time-tr", fmt.Sprintf("%0.3fs", last.TrainSeconds)})
	_ = table.Append([]string{"Time-ts", fmt.Sprintf("%0.3fs", last.EvalSeconds)})
	_ = table.Append([]string{"Solve failures", strconv.Itoa(result.SolveFailures)})
	for _, span := range spans {
		_ = table.Append([]string{span.Name, fmt.Sprintf("%s %d/%d", span.Status, span.Count, span.Total)})
	}
	if err := table.Render(); err != nil {
		log.Logger().Error("failed to render summary", zap.Error(err))
	}
}
