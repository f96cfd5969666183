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

package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/client/oapi"
)

func TestNewSentimentClient(t *testing.T) {
	c, err := NewSentimentClient("http://localhost:5000/", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000", c.baseURL)
	assert.NotNil(t, c.Client())

	_, err = NewSentimentClient("localhost:5000", nil)
	require.Error(t, err)
	_, err = NewSentimentClient("/predict", nil)
	require.Error(t, err)
}

func TestClient_Predict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req oapi.PredictRequest
		require.NoError(t, sonic.Unmarshal(body, &req))
		require.NotNil(t, req.Text)
		assert.Equal(t, "zwina bzaf", *req.Text)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"positive_probability": 91.5, "negative_probability": 8.5, "prediction": 1}`))
	}))
	defer server.Close()

	c, err := NewSentimentClient(server.URL, nil)
	require.NoError(t, err)

	resp, err := c.Predict(context.Background(), "zwina bzaf")
	require.NoError(t, err)
	assert.Equal(t, 91.5, resp.PositiveProbability)
	assert.Equal(t, 8.5, resp.NegativeProbability)
	assert.True(t, IsPositive(resp))
}

func TestClient_Predict_BadRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"No text provided"}`))
	}))
	defer server.Close()

	c, err := NewSentimentClient(server.URL, nil)
	require.NoError(t, err)

	_, err = c.Predict(context.Background(), "")
	require.Error(t, err)
	assert.True(t, IsBadRequest(err))
	assert.Equal(t, "bad request: No text provided", err.Error())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "No text provided", apiErr.Message)
}

func TestClient_ErrorBodies(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "json error", status: http.StatusInternalServerError, body: `{"error":"inference failed"}`, want: "server error: inference failed"},
		{name: "plain text", status: http.StatusBadGateway, body: "upstream down\n", want: "unexpected status code 502: upstream down"},
		{name: "empty", status: http.StatusServiceUnavailable, body: "", want: "service unavailable: Service Unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c, err := NewSentimentClient(server.URL, nil)
			require.NoError(t, err)
			_, err = c.Predict(context.Background(), "hada film")
			require.EqualError(t, err, tt.want)
			assert.False(t, IsBadRequest(err))
		})
	}
}

func TestClient_VersionAndReady(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"version":"1.2.0","git_commit":"abc123","build_time":"now","go_version":"go1.25.0"}`))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready","model":{"backend":"go","max_length":512,"available_backends":["go"]}}`))
	})
	mux.HandleFunc("GET /api/model", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"model not loaded"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c, err := NewSentimentClient(server.URL, nil)
	require.NoError(t, err)

	version, err := c.GetVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", version.Version)
	assert.Equal(t, "abc123", version.GitCommit)

	ready, err := c.Ready(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ready", ready.Status)
	require.NotNil(t, ready.Model)
	assert.Equal(t, "go", ready.Model.Backend)
	assert.Equal(t, 512, ready.Model.MaxLength)

	_, err = c.GetModel(context.Background())
	require.EqualError(t, err, "service unavailable: model not loaded")
}

func TestClient_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	c, err := NewSentimentClient(server.URL, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Predict(ctx, "zwina")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
