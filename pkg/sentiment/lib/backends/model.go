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

package backends

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/bert"
	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/checkpoint"
)

// Model represents an inference model that can process inputs.
type Model interface {
	// Forward runs inference on the given inputs and returns the model outputs.
	// The context can be used for cancellation.
	Forward(ctx context.Context, inputs *ModelInputs) (*ModelOutput, error)

	// Close releases resources associated with the model.
	Close() error

	// Name returns the model name for logging and debugging.
	Name() string

	// Backend returns the backend type this model uses.
	Backend() BackendType
}

// EncoderConfigProvider is implemented by models that know their BERT configuration.
//
//	if provider, ok := model.(EncoderConfigProvider); ok {
//	    cfg := provider.EncoderConfig()
//	}
type EncoderConfigProvider interface {
	EncoderConfig() bert.Config
}

// WeightsProvider is implemented by models that loaded a full checkpoint and
// can hand out the tensors they did not consume (e.g. a classification head).
type WeightsProvider interface {
	Weights() checkpoint.StateDict
}

// ModelLoader loads models for a specific backend.
type ModelLoader interface {
	// Load loads a model from the given path with the specified options.
	Load(path string, opts ...LoadOption) (Model, error)

	// SupportsModel returns true if this loader can handle the model at the given path.
	SupportsModel(path string) bool

	// Backend returns the backend type this loader uses.
	Backend() BackendType
}

// onnxFile resolves path to an .onnx file: either path itself or
// the configured filename inside a model directory.
func onnxFile(path string, config *LoadConfig) string {
	if strings.HasSuffix(path, ".onnx") {
		return path
	}
	return filepath.Join(path, config.ONNXFilename)
}

// hasONNXModel reports whether path is an .onnx file or a directory holding one.
func hasONNXModel(path string) bool {
	if strings.HasSuffix(path, ".onnx") {
		_, err := os.Stat(path)
		return err == nil
	}
	matches, _ := filepath.Glob(filepath.Join(path, "*.onnx"))
	return len(matches) > 0
}

// LoadConfig holds configuration for model loading.
// Created via LoadOption functions.
type LoadConfig struct {
	// ONNXFilename specifies which ONNX file to load from a model directory
	ONNXFilename string

	// EncoderConfig overrides config.json and shape inference when set
	EncoderConfig *bert.Config

	// MaxLength is the longest sequence the caller will send; loading fails
	// if the model has fewer position embeddings.
	MaxLength int

	// GPUMode controls GPU acceleration
	GPUMode GPUMode

	// NumThreads is the number of inference threads (0 = auto)
	NumThreads int
}

// DefaultLoadConfig returns a LoadConfig with sensible defaults.
func DefaultLoadConfig() *LoadConfig {
	return &LoadConfig{
		ONNXFilename: "model.onnx",
		MaxLength:    512,
		GPUMode:      GPUModeAuto,
	}
}

// LoadOption is a functional option for configuring model loading.
type LoadOption func(*LoadConfig)

// WithONNXFile sets the ONNX filename to load.
func WithONNXFile(filename string) LoadOption {
	return func(c *LoadConfig) {
		c.ONNXFilename = filename
	}
}

// WithEncoderConfig sets the encoder configuration explicitly.
func WithEncoderConfig(cfg bert.Config) LoadOption {
	return func(c *LoadConfig) {
		c.EncoderConfig = &cfg
	}
}

// WithMaxLength sets the maximum sequence length.
func WithMaxLength(length int) LoadOption {
	return func(c *LoadConfig) {
		c.MaxLength = length
	}
}

// WithGPUMode sets the GPU acceleration mode.
func WithGPUMode(mode GPUMode) LoadOption {
	return func(c *LoadConfig) {
		c.GPUMode = mode
	}
}

// WithNumThreads sets the number of inference threads.
func WithNumThreads(threads int) LoadOption {
	return func(c *LoadConfig) {
		c.NumThreads = threads
	}
}

// ApplyOptions applies LoadOptions to a LoadConfig.
func ApplyOptions(opts ...LoadOption) *LoadConfig {
	config := DefaultLoadConfig()
	for _, opt := range opts {
		opt(config)
	}
	return config
}

// PoolCLS takes the [CLS] (first token) row of each sequence, turning
// [batch, seq, hidden] into [batch, hidden].
func PoolCLS(hiddenStates [][][]float32) [][]float32 {
	batchSize := len(hiddenStates)
	if batchSize == 0 || len(hiddenStates[0]) == 0 {
		return nil
	}

	embeddings := make([][]float32, batchSize)
	for i := range batchSize {
		embeddings[i] = make([]float32, len(hiddenStates[i][0]))
		copy(embeddings[i], hiddenStates[i][0])
	}
	return embeddings
}
