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
	"os"
	"os/signal"
	"strconv"

	"github.com/gorse-io/gorse-tensor/base/log"
	"github.com/gorse-io/gorse-tensor/config"
	"github.com/gorse-io/gorse-tensor/model"
	"github.com/gorse-io/gorse-tensor/model/cp"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var tuneCommand = &cobra.Command{
	Use:   "tune",
	Short: "Search the rank and regularization minimizing validation RMSE.",
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")
		conf, err := config.LoadConfig(configPath)
		if err != nil {
			log.Logger().Fatal("failed to load config", zap.Error(err))
		}
		if err = overrideConfig(cmd.Flags(), conf); err != nil {
			log.Logger().Fatal("invalid flags", zap.Error(err))
		}
		space := cp.DefaultSearchSpace()
		space.MinRank, _ = cmd.Flags().GetInt("min-rank")
		space.MaxRank, _ = cmd.Flags().GetInt("max-rank")
		space.MinReg, _ = cmd.Flags().GetFloat64("min-reg")
		space.MaxReg, _ = cmd.Flags().GetFloat64("max-reg")
		trials, _ := cmd.Flags().GetInt("trials")

		trainPath, _ := cmd.Flags().GetString("train")
		validatePath, _ := cmd.Flags().GetString("validate")
		train, validate, err := readTensors(trainPath, validatePath)
		if err != nil {
			log.Logger().Fatal("failed to load tensors", zap.Error(err))
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		fitConfig := conf.ALS.GetFitConfig().SetProgress(nil)
		search := cp.NewModelSearch(conf.ALS.GetParams(), space, train, validate, fitConfig)
		result, err := search.Search(ctx, trials, conf.ALS.RandomState)
		if err != nil {
			log.Logger().Fatal("failed to tune", zap.Error(err))
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Metric", "Value")
		_ = table.Append([]string{"Trials", strconv.Itoa(result.Trials)})
		_ = table.Append([]string{"Rank", strconv.Itoa(result.Params.GetInt(model.NFactors, 0))})
		_ = table.Append([]string{"Regularization", fmt.Sprintf("%0.5e", result.Params.GetFloat64(model.Reg, 0))})
		_ = table.Append([]string{"Epochs", strconv.Itoa(result.Epochs)})
		_ = table.Append([]string{"RMSE-vl", fmt.Sprintf("%0.5e", result.RMSE)})
		if err = table.Render(); err != nil {
			log.Logger().Error("failed to render summary", zap.Error(err))
		}
	},
}

func init() {
	defaults := cp.DefaultSearchSpace()
	flags := tuneCommand.Flags()
	flags.String("train", "", "training tensor file")
	flags.String("validate", "", "validation tensor file")
	flags.Int("trials", 20, "number of trials")
	flags.Int("min-rank", defaults.MinRank, "lower bound of rank")
	flags.Int("max-rank", defaults.MaxRank, "upper bound of rank")
	flags.Float64("min-reg", defaults.MinReg, "lower bound of regularization")
	flags.Float64("max-reg", defaults.MaxReg, "upper bound of regularization")
	flags.Int("iters", 0, "maximum number of epochs per trial")
	flags.Int("jobs", 0, "number of workers")
	flags.Int("chunk", 0, "number of rows dispatched to a worker at once")
	flags.Int64("seed", 0, "random seed of initial factors and the sampler")
	_ = tuneCommand.MarkFlagRequired("train")
	_ = tuneCommand.MarkFlagRequired("validate")
}
