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


//go:generate go tool oapi-codegen --config=cfg.yaml ../sentiment/openapi.yaml

// Package client provides an auto-generated Go SDK client for the Darija sentiment API.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/client/oapi"
)

// IsPositive reports whether the server labelled the text positive.
func IsPositive(p *oapi.Prediction) bool {
	return p != nil && p.Prediction == 1
}

// APIError is returned for non-2xx responses. Message is the server's
// "error" field when the body carries one, else the raw body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return "bad request: " + e.Message
	case http.StatusInternalServerError:
		return "server error: " + e.Message
	case http.StatusServiceUnavailable:
		return "service unavailable: " + e.Message
	default:
		return fmt.Sprintf("unexpected status code %d: %s", e.StatusCode, e.Message)
	}
}

// IsBadRequest reports whether err is a 400 from the server.
func IsBadRequest(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest
}

// SentimentClient is a client for the sentiment HTTP API.
type SentimentClient struct {
	client  *oapi.ClientWithResponses
	baseURL string
}

// NewSentimentClient creates a client for the server at baseURL, for
// example "http://localhost:5000". A nil httpClient uses a default one.
func NewSentimentClient(baseURL string, httpClient *http.Client) (*SentimentClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	var opts []oapi.ClientOption
	if httpClient != nil {
		opts = append(opts, oapi.WithHTTPClient(httpClient))
	}
	client, err := oapi.NewClientWithResponses(baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &SentimentClient{
		client:  client,
		baseURL: baseURL,
	}, nil
}

// Client returns the underlying oapi-codegen client for direct API access.
func (c *SentimentClient) Client() *oapi.ClientWithResponses {
	return c.client
}

// Predict classifies text. Probabilities in the result are percentages
// that sum to 100.
func (c *SentimentClient) Predict(ctx context.Context, text string) (*oapi.Prediction, error) {
	resp, err := c.client.PredictWithResponse(ctx, oapi.PredictRequest{Text: &text})
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, newAPIError(resp.StatusCode(), resp.Body)
	}
	if resp.JSON200 == nil {
		return nil, fmt.Errorf("unexpected response: %s", string(resp.Body))
	}
	return resp.JSON200, nil
}

// GetVersion returns the server build information.
func (c *SentimentClient) GetVersion(ctx context.Context) (*oapi.VersionInfo, error) {
	resp, err := c.client.GetVersionWithResponse(ctx)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	if resp.JSON200 == nil {
		return nil, newAPIError(resp.StatusCode(), resp.Body)
	}
	return resp.JSON200, nil
}

// GetModel returns metadata about the loaded model.
func (c *SentimentClient) GetModel(ctx context.Context) (*oapi.ModelInfo, error) {
	resp, err := c.client.GetModelWithResponse(ctx)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	if resp.JSON200 == nil {
		return nil, newAPIError(resp.StatusCode(), resp.Body)
	}
	return resp.JSON200, nil
}

// Ready returns the readiness status. A server without a model answers
// with an APIError carrying status 503.
func (c *SentimentClient) Ready(ctx context.Context) (*oapi.ReadyStatus, error) {
	resp, err := c.client.GetReadyWithResponse(ctx)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	if resp.JSON200 == nil {
		return nil, newAPIError(resp.StatusCode(), resp.Body)
	}
	return resp.JSON200, nil
}

func newAPIError(status int, body []byte) *APIError {
	var envelope oapi.Error
	if err := sonic.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		return &APIError{StatusCode: status, Message: envelope.Error}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: msg}
}
