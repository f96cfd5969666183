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

// Package sentiment serves a fine-tuned BERT classifier that labels Darija
// texts as positive or negative over HTTP.
package sentiment

import (
	"context"
	"io/fs"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/backends"
	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/modelregistry"
	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/pipelines"
)

// SentimentNode owns the HTTP handlers. The predictor is shared, read-only,
// by every request goroutine.
type SentimentNode struct {
	logger    *zap.Logger
	predictor Predictor
	static    fs.FS
}

// NewSentimentNode creates a node serving predictor and the files in staticDir.
func NewSentimentNode(zl *zap.Logger, predictor Predictor, staticDir string) *SentimentNode {
	return &SentimentNode{
		logger:    zl,
		predictor: predictor,
		static:    staticFS(staticDir),
	}
}

// Handler returns the routes wrapped in the CORS middleware.
func (sn *SentimentNode) Handler() http.Handler {
	mux := http.NewServeMux()
	NewSentimentAPI(sn.logger, sn, mux)

	mux.HandleFunc("GET /api/openapi.json", sn.handleOpenAPI)
	mux.HandleFunc("GET /{$}", sn.handleIndex)
	mux.HandleFunc("GET /{path...}", sn.handleStatic)

	return corsMiddleware(mux)
}

// corsMiddleware adds CORS headers to allow cross-origin requests
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Accept, Origin")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// DefaultShutdownTimeout is the default time to wait for graceful shutdown
const DefaultShutdownTimeout = 30 * time.Second

// LoadPredictor resolves the vocabulary, loads the model with the configured
// backends and wraps it in the prediction cache unless CacheTTL is zero.
func LoadPredictor(ctx context.Context, zl *zap.Logger, config Config) (Predictor, error) {
	specs, err := backends.ParseBackendPriority(config.BackendPriority)
	if err != nil {
		return nil, err
	}

	vocabPath, err := modelregistry.ResolveVocab(ctx, modelregistry.VocabSource{
		TokenizerPath: config.TokenizerPath,
		ModelPath:     config.ModelPath,
		Repo:          config.PretrainedRepo,
	}, modelregistry.NewHuggingFaceClient(modelregistry.WithHFToken(config.HfToken)), zl)
	if err != nil {
		return nil, err
	}

	// GPU mode applies to backends globally and must be set before loading
	if config.Gpu != "" {
		backends.SetGPUMode(backends.ParseGPUMode(config.Gpu))
	}
	sessionManager := backends.NewSessionManager()
	sessionManager.SetPriority(specs)
	defer func() { _ = sessionManager.Close() }()

	start := time.Now()
	pipeline, err := pipelines.LoadSentimentPipeline(
		config.ModelPath,
		vocabPath,
		config.MaxLength,
		sessionManager,
		[]backends.LoadOption{backends.WithNumThreads(config.NumThreads)},
		pipelines.WithThreshold(config.Threshold),
		pipelines.WithLogger(zl.Named("pipeline")),
	)
	if err != nil {
		return nil, err
	}
	info := pipeline.Info()
	RecordModelLoadDuration(string(info.Backend), time.Since(start).Seconds())
	zl.Info("Sentiment model ready",
		zap.String("path", info.Path),
		zap.String("backend", string(info.Backend)),
		zap.String("device", info.Device),
		zap.Int("maxLength", info.MaxLength),
		zap.Float64("threshold", info.Threshold),
		zap.Strings("availableBackends", modelInfo(info).AvailableBackends),
		zap.Duration("duration", time.Since(start)))

	if config.CacheTTL == 0 {
		return pipeline, nil
	}
	return NewCachedPredictor(pipeline, config.CacheTTL, zl.Named("cache")), nil
}

// RunAsServer loads the model and serves predictions until ctx is cancelled.
// Startup failures are fatal. If readyC is non-nil, it will be closed when
// the server is ready to accept requests.
func RunAsServer(ctx context.Context, zl *zap.Logger, config Config, readyC chan struct{}) {
	zl = zl.Named("sentiment")
	zl.Info("Starting sentiment node", zap.Any("config", config))

	if err := config.Validate(); err != nil {
		zl.Fatal("Invalid configuration", zap.Error(err))
	}
	u, err := url.Parse(config.ApiUrl)
	if err != nil {
		zl.Fatal("Invalid API URL", zap.String("url", config.ApiUrl), zap.Error(err))
	}

	gpuInfo := backends.DetectGPU()
	zl.Info("GPU detection complete",
		zap.String("mode", config.Gpu),
		zap.Bool("available", gpuInfo.Available),
		zap.String("type", gpuInfo.Type),
		zap.String("device", gpuInfo.DeviceName))

	predictor, err := LoadPredictor(ctx, zl, config)
	if err != nil {
		zl.Fatal("Failed to load sentiment model",
			zap.String("model_path", config.ModelPath),
			zap.Error(err))
	}
	defer func() { _ = predictor.Close() }()

	node := NewSentimentNode(zl, predictor, config.StaticDir)

	srv := &http.Server{
		Addr:              u.Host,
		Handler:           node.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		zl.Info("Sentiment api server starting", zap.String("address", config.ApiUrl))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Signal readiness after server starts
	if readyC != nil {
		close(readyC)
	}

	select {
	case err := <-serverErr:
		if err != nil {
			zl.Fatal("HTTP server error", zap.Error(err))
		}
	case <-ctx.Done():
		zl.Info("Shutdown signal received, starting graceful shutdown...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections
	srv.SetKeepAlivesEnabled(false)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("Graceful shutdown failed, forcing close",
			zap.Error(err),
			zap.Duration("timeout", DefaultShutdownTimeout))
		_ = srv.Close()
	} else {
		zl.Info("Graceful shutdown completed successfully")
	}

	zl.Info("HTTP server stopped")
}
