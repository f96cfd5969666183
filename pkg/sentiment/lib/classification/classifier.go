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

// Package classification turns encoder outputs into two-class sentiment
// logits with the fine-tuned feed-forward head.
package classification

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/backends"
	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/checkpoint"
)

// HeadFilename holds a head exported next to an ONNX encoder.
const HeadFilename = "classifier_head.safetensors"

// Info describes a loaded classifier.
type Info struct {
	Path           string               `json:"path"`
	Backend        backends.BackendType `json:"backend"`
	Device         string               `json:"device"`
	HiddenSize     int                  `json:"hidden_size,omitempty"`
	NumLayers      int                  `json:"num_layers,omitempty"`
	HeadParameters int                  `json:"head_parameters,omitempty"`
}

// SentimentClassifier runs the encoder and applies the head to the
// first-token hidden state. It holds no per-request state.
type SentimentClassifier struct {
	model backends.Model
	head  *Head
	info  Info
}

// New wraps a loaded model. head may be nil when the model itself
// returns logits.
func New(model backends.Model, head *Head) *SentimentClassifier {
	info := Info{
		Path:    model.Name(),
		Backend: model.Backend(),
		Device:  "cpu",
	}
	if p, ok := model.(backends.EncoderConfigProvider); ok {
		cfg := p.EncoderConfig()
		info.HiddenSize = cfg.HiddenSize
		info.NumLayers = cfg.NumHiddenLayers
	} else if head != nil {
		info.HiddenSize = head.InputSize()
	}
	if head != nil {
		info.HeadParameters = head.NumParameters()
	}
	return &SentimentClassifier{model: model, head: head, info: info}
}

// Load loads the model at path through the session manager and locates its head:
// the checkpoint's own "classifier." tensors, else HeadFilename beside the model.
// Without either, the model must produce logits itself.
func Load(path string, sm *backends.SessionManager, logger *zap.Logger, opts ...backends.LoadOption) (*SentimentClassifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	model, backendType, err := sm.LoadModel(path, opts...)
	if err != nil {
		return nil, err
	}

	head, err := loadHead(path, model)
	if err != nil {
		_ = model.Close()
		return nil, err
	}

	c := New(model, head)
	if backendType == backends.BackendONNX && backends.ShouldUseGPU(backends.ApplyOptions(opts...).GPUMode) {
		c.info.Device = "cuda"
	}

	logger.Info("Loaded sentiment classifier",
		zap.String("path", c.info.Path),
		zap.String("backend", string(backendType)),
		zap.String("device", c.info.Device),
		zap.Int("hiddenSize", c.info.HiddenSize),
		zap.Bool("separateHead", head != nil))
	return c, nil
}

func loadHead(path string, model backends.Model) (*Head, error) {
	hiddenSize := -1
	if p, ok := model.(backends.EncoderConfigProvider); ok {
		hiddenSize = p.EncoderConfig().HiddenSize
	}

	if p, ok := model.(backends.WeightsProvider); ok {
		if sd := p.Weights(); sd.HasPrefix(HeadPrefix) {
			return NewHead(sd.WithPrefix(HeadPrefix), hiddenSize)
		}
	}

	dir := path
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		dir = filepath.Dir(path)
	}
	sd, err := checkpoint.LoadSafetensors(filepath.Join(dir, HeadFilename))
	switch {
	case err == nil:
		return NewHead(sd.WithPrefix(HeadPrefix), hiddenSize)
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	default:
		return nil, fmt.Errorf("reading %s: %w", HeadFilename, err)
	}
}

// Logits returns [batch, 2] logits, index 0 negative and index 1 positive.
func (c *SentimentClassifier) Logits(ctx context.Context, inputs *backends.ModelInputs) ([][]float32, error) {
	out, err := c.model.Forward(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("running encoder: %w", err)
	}

	if c.head == nil {
		if len(out.Logits) == 0 {
			return nil, fmt.Errorf("model returned hidden states but no classification head was found")
		}
		for i, row := range out.Logits {
			if len(row) != NumLabels {
				return nil, fmt.Errorf("%w: row %d has %d logits", ErrNumLabels, i, len(row))
			}
		}
		return out.Logits, nil
	}

	if len(out.LastHiddenState) == 0 {
		return nil, fmt.Errorf("model returned no hidden states")
	}
	pooled := backends.PoolCLS(out.LastHiddenState)
	return c.head.Forward(pooled)
}

// Info reports where the classifier came from and how it runs.
func (c *SentimentClassifier) Info() Info {
	return c.info
}

// Close releases the underlying model.
func (c *SentimentClassifier) Close() error {
	return c.model.Close()
}
