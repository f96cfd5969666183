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


//go:generate go tool oapi-codegen --config=cfg.yaml ./openapi.yaml
package sentiment

import (
	"errors"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/encoder"
	"go.uber.org/zap"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/backends"
	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/pipelines"
)

// MaxRequestBodyBytes bounds the size of a /predict body.
const MaxRequestBodyBytes = 10 << 20

// Error messages returned in Error bodies.
const (
	ErrMsgNoText         = "No text provided"
	ErrMsgInvalidBody    = "invalid request body"
	ErrMsgBodyTooLarge   = "request body too large"
	ErrMsgInferenceError = "inference failed"
	ErrMsgNoModel        = "model not loaded"
)

// SentimentAPI implements the generated ServerInterface
type SentimentAPI struct {
	logger *zap.Logger
	node   *SentimentNode
}

// NewSentimentAPI registers the generated routes for node on mux.
func NewSentimentAPI(logger *zap.Logger, node *SentimentNode, mux *http.ServeMux) http.Handler {
	api := &SentimentAPI{
		logger: logger,
		node:   node,
	}
	return HandlerWithOptions(api, StdHTTPServerOptions{
		BaseRouter: mux,
		ErrorHandlerFunc: func(w http.ResponseWriter, r *http.Request, err error) {
			writeJSON(w, http.StatusBadRequest, Error{Error: err.Error()})
		},
	})
}

// Predict implements ServerInterface
func (a *SentimentAPI) Predict(w http.ResponseWriter, r *http.Request) {
	a.node.handlePredict(w, r)
}

// GetModel implements ServerInterface
func (a *SentimentAPI) GetModel(w http.ResponseWriter, r *http.Request) {
	if a.node.predictor == nil {
		writeJSON(w, http.StatusServiceUnavailable, Error{Error: ErrMsgNoModel})
		return
	}
	writeJSON(w, http.StatusOK, modelInfo(a.node.predictor.Info()))
}

// GetVersion implements ServerInterface
func (a *SentimentAPI) GetVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	})
}

// GetHealth implements ServerInterface
func (a *SentimentAPI) GetHealth(w http.ResponseWriter, r *http.Request) {
	a.node.handleHealthz(w, r)
}

// GetReady implements ServerInterface
func (a *SentimentAPI) GetReady(w http.ResponseWriter, r *http.Request) {
	a.node.handleReadyz(w, r)
}

func (sn *SentimentNode) handlePredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	// Metrics are recorded before the body is written.
	respond := func(status int, v any) {
		code := strconv.Itoa(status)
		RecordPredictRequest(code)
		RecordRequestDuration("predict", code, time.Since(start).Seconds())
		writeJSON(w, status, v)
	}
	fail := func(status int, msg string) {
		respond(status, Error{Error: msg})
	}

	if sn.predictor == nil {
		fail(http.StatusServiceUnavailable, ErrMsgNoModel)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(http.StatusRequestEntityTooLarge, ErrMsgBodyTooLarge)
			return
		}
		fail(http.StatusBadRequest, ErrMsgInvalidBody)
		return
	}

	// A non-string text fails to decode into *string and is reported as an
	// invalid body; a missing or null one leaves Text nil.
	var req PredictRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		sn.logger.Debug("Rejecting malformed predict body", zap.Error(err))
		fail(http.StatusBadRequest, ErrMsgInvalidBody)
		return
	}
	if req.Text == nil || *req.Text == "" {
		fail(http.StatusBadRequest, ErrMsgNoText)
		return
	}
	text := *req.Text

	result, err := sn.predictor.Run(r.Context(), text)
	if err != nil {
		sn.logger.Error("Prediction failed", zap.Int("chars", len(text)), zap.Error(err))
		fail(http.StatusInternalServerError, ErrMsgInferenceError)
		return
	}
	RecordPrediction(result.Prediction, result.Truncated)

	positive, negative := result.Percentages()
	respond(http.StatusOK, Prediction{
		PositiveProbability: positive,
		NegativeProbability: negative,
		Prediction:          result.Prediction,
	})
}

// modelInfo converts pipeline metadata to its wire form.
func modelInfo(info pipelines.Info) ModelInfo {
	resp := ModelInfo{
		AvailableBackends: []string{},
		Backend:           string(info.Backend),
		Device:            info.Device,
		MaxLength:         info.MaxLength,
		Path:              info.Path,
		Threshold:         info.Threshold,
	}
	for _, b := range backends.ListAvailable() {
		resp.AvailableBackends = append(resp.AvailableBackends, string(b.Type()))
	}
	if info.HiddenSize > 0 {
		resp.HiddenSize = &info.HiddenSize
	}
	if info.NumLayers > 0 {
		resp.NumLayers = &info.NumLayers
	}
	if info.HeadParameters > 0 {
		resp.HeadParameters = &info.HeadParameters
	}
	return resp
}

var (
	openAPIOnce sync.Once
	openAPIJSON []byte
	openAPIErr  error
)

// handleOpenAPI serves the embedded OpenAPI document as JSON.
func (sn *SentimentNode) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	openAPIOnce.Do(func() {
		swagger, err := GetSwagger()
		if err != nil {
			openAPIErr = err
			return
		}
		openAPIJSON, openAPIErr = swagger.MarshalJSON()
	})
	if openAPIErr != nil {
		sn.logger.Error("Loading OpenAPI document", zap.Error(openAPIErr))
		writeJSON(w, http.StatusInternalServerError, Error{Error: "openapi document unavailable"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(openAPIJSON)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = encoder.NewStreamEncoder(w).Encode(v)
}
