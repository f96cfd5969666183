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

package sentiment

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.NoError(t, config.Validate())
	assert.Equal(t, "http://0.0.0.0:5000", config.ApiUrl)
	assert.Equal(t, "../darija_sentiment_model.pt", config.ModelPath)
	assert.Equal(t, 512, config.MaxLength)
	assert.Equal(t, 0.5, config.Threshold)
	assert.Equal(t, []string{"onnx", "gomlx", "go"}, config.BackendPriority)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{name: "no host", modify: func(c *Config) { c.ApiUrl = "5000" }},
		{name: "no model", modify: func(c *Config) { c.ModelPath = "" }},
		{name: "max length", modify: func(c *Config) { c.MaxLength = 1 }},
		{name: "threshold", modify: func(c *Config) { c.Threshold = 1.5 }},
		{name: "threshold NaN", modify: func(c *Config) { c.Threshold = math.NaN() }},
		{name: "backend", modify: func(c *Config) { c.BackendPriority = []string{"onnx:tpu"} }},
		{name: "gpu", modify: func(c *Config) { c.Gpu = "metal" }},
		{name: "num threads", modify: func(c *Config) { c.NumThreads = -1 }},
		{name: "cache ttl", modify: func(c *Config) { c.CacheTTL = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(&config)
			require.Error(t, config.Validate())
		})
	}
}

func TestConfig_ValidateReportsEveryField(t *testing.T) {
	config := DefaultConfig()
	config.ModelPath = ""
	config.Threshold = -0.1

	err := config.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model_path")
	assert.Contains(t, err.Error(), "threshold")
}
