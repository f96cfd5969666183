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
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/antflydb/antfly-go/libaf/healthserver"
	"github.com/antflydb/antfly-go/libaf/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sentiment server",
	Long: `Load the sentiment model and serve it over HTTP.

Routes:
  POST /predict       classify {"text": "..."}
  GET  /              static landing page (index.html in --static-dir)
  GET  /healthz       liveness
  GET  /readyz        readiness and model info
  GET  /api/version   build information
  GET  /api/model     loaded model details

Health and Prometheus metrics are also served on --health-port.

Examples:
  # Serve the default checkpoint on :5000
  darija-sentiment run

  # Serve a converted checkpoint with the pure Go backend only
  darija-sentiment run --model-path ./model.safetensors --backend-priority go

  # Serve an ONNX export on the GPU (binary built with -tags onnx,ORT)
  darija-sentiment run --model-path ./onnx --backend-priority onnx:cuda,go`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	defaults := sentiment.DefaultConfig()
	runCmd.Flags().String("api-url", defaults.ApiUrl, "address of the HTTP API")
	runCmd.Flags().Int("health-port", 4200, "health/metrics server port")
	runCmd.Flags().String("static-dir", defaults.StaticDir, "directory served for GET / and static assets")
	runCmd.Flags().Duration("cache-ttl", defaults.CacheTTL, "how long predictions are cached (0 disables the cache)")

	mustBindPFlag("api_url", runCmd.Flags().Lookup("api-url"))
	mustBindPFlag("health_port", runCmd.Flags().Lookup("health-port"))
	mustBindPFlag("static_dir", runCmd.Flags().Lookup("static-dir"))
	mustBindPFlag("cache_ttl", runCmd.Flags().Lookup("cache-ttl"))
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logging.NewLogger(&logging.Config{
		Level: logging.Level(viper.GetString("log.level")),
		Style: logging.Style(viper.GetString("log.style")),
	})
	defer func() {
		_ = logger.Sync()
	}()

	cfg := configFromViper()
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Track readiness state
	ready := &atomic.Bool{}
	readyC := make(chan struct{})

	healthserver.Start(logger, viper.GetInt("health_port"), ready.Load)

	go func() {
		<-readyC
		ready.Store(true)
		logger.Info("Sentiment server is ready")
	}()

	sentiment.RunAsServer(ctx, logger, cfg, readyC)
	return nil
}
