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

package pipelines

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/backends"
	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/classification"
	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/tokenizer"
)

// LoadSentimentPipeline reads the vocabulary and the model once and returns a
// ready pipeline. maxLength applies to both the tokenizer and the model check.
func LoadSentimentPipeline(
	modelPath string,
	vocabPath string,
	maxLength int,
	sessionManager *backends.SessionManager,
	loadOpts []backends.LoadOption,
	opts ...PipelineOption,
) (*SentimentPipeline, error) {
	config := &PipelineConfig{}
	for _, opt := range opts {
		opt(config)
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tok, err := tokenizer.NewBertWordPieceTokenizerFromFile(vocabPath, tokenizer.WithMaxLength(maxLength))
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer: %w", err)
	}

	loadOpts = append([]backends.LoadOption{backends.WithMaxLength(tok.MaxLength())}, loadOpts...)
	classifier, err := classification.Load(modelPath, sessionManager, logger, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading model %s: %w", modelPath, err)
	}

	pipeline, err := NewSentimentPipeline(tok, classifier, opts...)
	if err != nil {
		_ = classifier.Close()
		return nil, err
	}
	return pipeline, nil
}
