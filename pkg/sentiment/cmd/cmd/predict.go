// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	json "github.com/antflydb/antfly-go/libaf/json"
	"github.com/antflydb/antfly-go/libaf/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/client"
	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment"
)

var predictCmd = &cobra.Command{
	Use:   "predict <text>",
	Short: "Classify a text",
	Long: `Classify one text and print the same JSON body POST /predict returns.

The model is loaded locally unless --server points at a running instance.
Arguments are joined with spaces.

Examples:
  darija-sentiment predict "had l film zwin bzaf"
  darija-sentiment predict --server http://localhost:5000 "ma 3jbni walo"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPredict,
}

func init() {
	rootCmd.AddCommand(predictCmd)

	predictCmd.Flags().String("server", "", "URL of a running sentiment server")
	predictCmd.Flags().Duration("timeout", 30*time.Second, "request timeout when using --server")
}

func runPredict(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if text == "" {
		return errors.New(sentiment.ErrMsgNoText)
	}
	server, _ := cmd.Flags().GetString("server")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	var resp sentiment.Prediction
	if server != "" {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		c, err := client.NewSentimentClient(server, nil)
		if err != nil {
			return err
		}
		result, err := c.Predict(ctx, text)
		if err != nil {
			return err
		}
		resp = sentiment.Prediction{
			PositiveProbability: result.PositiveProbability,
			NegativeProbability: result.NegativeProbability,
			Prediction:          result.Prediction,
		}
	} else {
		logger := logging.NewLogger(&logging.Config{
			Level: logging.Level(viper.GetString("log.level")),
			Style: logging.Style(viper.GetString("log.style")),
		})
		defer func() { _ = logger.Sync() }()

		cfg := configFromViper()
		cfg.CacheTTL = 0
		if err := cfg.Validate(); err != nil {
			return err
		}
		predictor, err := sentiment.LoadPredictor(cmd.Context(), logger, cfg)
		if err != nil {
			return fmt.Errorf("loading model: %w", err)
		}
		defer func() { _ = predictor.Close() }()

		result, err := predictor.Run(cmd.Context(), text)
		if err != nil {
			return err
		}
		positive, negative := result.Percentages()
		resp = sentiment.Prediction{
			PositiveProbability: positive,
			NegativeProbability: negative,
			Prediction:          result.Prediction,
		}
	}

	return json.NewEncoder(os.Stdout).Encode(resp)
}
