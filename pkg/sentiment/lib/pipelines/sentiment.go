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

// Package pipelines pairs the tokenizer with the classifier for end-to-end
// sentiment inference on a single text.
package pipelines

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/backends"
	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/classification"
	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/tokenizer"
)

// DefaultThreshold is the positive probability above which a text is positive.
const DefaultThreshold = 0.5

// Label values of SentimentResult.Prediction.
const (
	Negative = 0
	Positive = 1
)

// Classifier produces [batch, 2] logits for tokenized inputs.
type Classifier interface {
	Logits(ctx context.Context, inputs *backends.ModelInputs) ([][]float32, error)
	Info() classification.Info
	Close() error
}

// SentimentResult is the outcome for one text.
type SentimentResult struct {
	// Positive and Negative are probabilities in [0, 1] summing to 1.
	Positive float64
	Negative float64

	// Prediction is Positive (1) when Positive > threshold, else Negative (0).
	Prediction int

	// Tokens is the number of real tokens fed to the model, [CLS] and [SEP] included.
	Tokens int

	// Truncated reports that the text did not fit in the maximum length.
	Truncated bool
}

// Percentages returns the probabilities on a 0..100 scale.
func (r *SentimentResult) Percentages() (positive, negative float64) {
	return r.Positive * 100, r.Negative * 100
}

// PipelineConfig holds configuration for a SentimentPipeline.
type PipelineConfig struct {
	// Threshold is compared against the positive probability.
	Threshold float64

	Logger *zap.Logger
}

// PipelineOption is a functional option for configuring a SentimentPipeline.
type PipelineOption func(*PipelineConfig)

// WithThreshold sets the decision threshold.
func WithThreshold(threshold float64) PipelineOption {
	return func(c *PipelineConfig) {
		c.Threshold = threshold
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *zap.Logger) PipelineOption {
	return func(c *PipelineConfig) {
		c.Logger = logger
	}
}

// Info describes a pipeline for the model-info endpoint.
type Info struct {
	classification.Info
	MaxLength int     `json:"max_length"`
	Threshold float64 `json:"threshold"`
}

// SentimentPipeline is immutable after construction and safe for concurrent use.
type SentimentPipeline struct {
	tokenizer  tokenizer.Tokenizer
	classifier Classifier
	threshold  float64
	logger     *zap.Logger
}

// NewSentimentPipeline creates a pipeline from an already loaded tokenizer and classifier.
func NewSentimentPipeline(tok tokenizer.Tokenizer, classifier Classifier, opts ...PipelineOption) (*SentimentPipeline, error) {
	config := &PipelineConfig{Threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(config)
	}
	if !(config.Threshold >= 0 && config.Threshold <= 1) {
		return nil, fmt.Errorf("threshold %v outside [0, 1]", config.Threshold)
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &SentimentPipeline{
		tokenizer:  tok,
		classifier: classifier,
		threshold:  config.Threshold,
		logger:     config.Logger,
	}, nil
}

// Run classifies one text. Empty text is valid here; rejecting it is up to the caller.
func (p *SentimentPipeline) Run(ctx context.Context, text string) (*SentimentResult, error) {
	start := time.Now()

	p.logger.Info("Tokenizing input", zap.Int("chars", len(text)))
	enc, err := p.tokenizer.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("tokenizing: %w", err)
	}
	if enc.Truncated {
		p.logger.Debug("Input truncated", zap.Int("maxLength", p.tokenizer.MaxLength()))
	}

	logits, err := p.classifier.Logits(ctx, &backends.ModelInputs{
		InputIDs:      [][]int32{enc.InputIDs},
		AttentionMask: [][]int32{enc.AttentionMask},
		TokenTypeIDs:  [][]int32{enc.TokenTypeIDs},
	})
	if err != nil {
		return nil, err
	}
	if len(logits) != 1 || len(logits[0]) != classification.NumLabels {
		return nil, fmt.Errorf("%w: got %d rows", classification.ErrNumLabels, len(logits))
	}

	negative, positive := softmax2(logits[0][0], logits[0][1])
	result := &SentimentResult{
		Positive:   positive,
		Negative:   negative,
		Prediction: Negative,
		Tokens:     enc.Len(),
		Truncated:  enc.Truncated,
	}
	if positive > p.threshold {
		result.Prediction = Positive
	}

	p.logger.Debug("Sentiment computed",
		zap.Float64("positive", positive),
		zap.Int("prediction", result.Prediction),
		zap.Int("tokens", result.Tokens),
		zap.Duration("duration", time.Since(start)))
	return result, nil
}

// softmax2 is a numerically stable two-way softmax in float64.
func softmax2(a, b float32) (pa, pb float64) {
	x, y := float64(a), float64(b)
	m := math.Max(x, y)
	ea, eb := math.Exp(x-m), math.Exp(y-m)
	sum := ea + eb
	return ea / sum, eb / sum
}

// Info reports the classifier together with tokenization and decision settings.
func (p *SentimentPipeline) Info() Info {
	return Info{
		Info:      p.classifier.Info(),
		MaxLength: p.tokenizer.MaxLength(),
		Threshold: p.threshold,
	}
}

// Close releases the classifier.
func (p *SentimentPipeline) Close() error {
	return p.classifier.Close()
}
