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
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/backends"
	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/modelregistry"
	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/pipelines"
	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/tokenizer"
)

// Defaults for Config fields left empty.
const (
	DefaultApiUrl    = "http://0.0.0.0:5000"
	DefaultModelPath = "../darija_sentiment_model.pt"
	DefaultStaticDir = "."
)

// Config holds the resolved settings of a sentiment server.
type Config struct {
	// ApiUrl is the address the HTTP server listens on.
	ApiUrl string `json:"api_url,omitempty" yaml:"api_url,omitempty"`

	// ModelPath is the fine-tuned checkpoint (.pt, .safetensors or .onnx).
	ModelPath string `json:"model_path,omitempty" yaml:"model_path,omitempty"`

	// TokenizerPath is a vocab.txt or a directory holding one. When empty the
	// vocabulary next to the model is used, then PretrainedRepo is downloaded.
	TokenizerPath  string `json:"tokenizer_path,omitempty" yaml:"tokenizer_path,omitempty"`
	PretrainedRepo string `json:"pretrained_repo,omitempty" yaml:"pretrained_repo,omitempty"`
	HfToken        string `json:"-" yaml:"-"`

	MaxLength int     `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// BackendPriority lists "backend[:device]" entries, e.g. ["onnx:cuda", "go"].
	BackendPriority []string `json:"backend_priority,omitempty" yaml:"backend_priority,omitempty"`
	Gpu             string   `json:"gpu,omitempty" yaml:"gpu,omitempty"`

	// NumThreads caps ONNX Runtime intra-op threads. Zero lets the runtime decide.
	NumThreads int `json:"num_threads,omitempty" yaml:"num_threads,omitempty"`

	StaticDir string `json:"static_dir,omitempty" yaml:"static_dir,omitempty"`

	// CacheTTL of zero disables the prediction cache.
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		ApiUrl:          DefaultApiUrl,
		ModelPath:       DefaultModelPath,
		PretrainedRepo:  modelregistry.DefaultRepo,
		MaxLength:       tokenizer.DefaultMaxLength,
		Threshold:       pipelines.DefaultThreshold,
		BackendPriority: backends.BackendTypeStrings(),
		Gpu:             string(backends.GPUModeAuto),
		StaticDir:       DefaultStaticDir,
		CacheTTL:        PredictionCacheTTL,
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.ApiUrl); err != nil {
		errs = append(errs, fmt.Errorf("api_url: %w", err))
	} else if u.Host == "" {
		errs = append(errs, fmt.Errorf("api_url %q has no host", c.ApiUrl))
	}
	if c.ModelPath == "" {
		errs = append(errs, errors.New("model_path is required"))
	}
	if c.MaxLength < 2 {
		errs = append(errs, fmt.Errorf("max_length %d leaves no room for [CLS] and [SEP]", c.MaxLength))
	}
	if !(c.Threshold >= 0 && c.Threshold <= 1) {
		errs = append(errs, fmt.Errorf("threshold %v outside [0, 1]", c.Threshold))
	}
	if _, err := backends.ParseBackendPriority(c.BackendPriority); err != nil {
		errs = append(errs, err)
	}
	switch backends.GPUMode(c.Gpu) {
	case "", backends.GPUModeAuto, backends.GPUModeCuda, backends.GPUModeOff:
	default:
		errs = append(errs, fmt.Errorf("gpu %q must be one of auto, cuda, off", c.Gpu))
	}
	if c.NumThreads < 0 {
		errs = append(errs, fmt.Errorf("num_threads %d is negative", c.NumThreads))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("cache_ttl %v is negative", c.CacheTTL))
	}
	return errors.Join(errs...)
}
