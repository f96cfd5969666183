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

package bert

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/checkpoint"
)

// ConfigFilename is the Hugging Face config file read next to model weights.
const ConfigFilename = "config.json"

// headDim is the per-head width of every published BERT size, used to guess
// the head count when no config.json is available.
const headDim = 64

// Config mirrors the fields of a Hugging Face BertConfig that inference needs.
type Config struct {
	VocabSize             int     `json:"vocab_size"`
	HiddenSize            int     `json:"hidden_size"`
	NumHiddenLayers       int     `json:"num_hidden_layers"`
	NumAttentionHeads     int     `json:"num_attention_heads"`
	IntermediateSize      int     `json:"intermediate_size"`
	MaxPositionEmbeddings int     `json:"max_position_embeddings"`
	TypeVocabSize         int     `json:"type_vocab_size"`
	LayerNormEps          float64 `json:"layer_norm_eps"`
	HiddenAct             string  `json:"hidden_act"`
}

// BaseUncasedConfig returns the configuration of bert-base-uncased.
func BaseUncasedConfig() Config {
	return Config{
		VocabSize:             30522,
		HiddenSize:            768,
		NumHiddenLayers:       12,
		NumAttentionHeads:     12,
		IntermediateSize:      3072,
		MaxPositionEmbeddings: 512,
		TypeVocabSize:         2,
		LayerNormEps:          1e-12,
		HiddenAct:             "gelu",
	}
}

// LoadConfig reads a config.json. Missing epsilon and activation fall back to
// the bert-base values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if cfg.LayerNormEps == 0 {
		cfg.LayerNormEps = 1e-12
	}
	if cfg.HiddenAct == "" {
		cfg.HiddenAct = "gelu"
	}
	if cfg.TypeVocabSize == 0 {
		cfg.TypeVocabSize = 2
	}
	return cfg, cfg.Validate()
}

// InferConfig derives the configuration from tensor shapes. The head count
// cannot be observed in the weights and assumes 64-wide heads.
func InferConfig(sd checkpoint.StateDict) (Config, error) {
	cfg := BaseUncasedConfig()

	word, err := sd.Get("embeddings.word_embeddings.weight")
	if err != nil {
		return Config{}, err
	}
	if len(word.Shape) != 2 {
		return Config{}, fmt.Errorf("%w: word embeddings %v", checkpoint.ErrShapeMismatch, word.Shape)
	}
	cfg.VocabSize, cfg.HiddenSize = word.Shape[0], word.Shape[1]

	if pos, err := sd.Get("embeddings.position_embeddings.weight"); err == nil {
		cfg.MaxPositionEmbeddings = pos.Rows()
	}
	if typ, err := sd.Get("embeddings.token_type_embeddings.weight"); err == nil {
		cfg.TypeVocabSize = typ.Rows()
	}
	if inter, err := sd.Get("encoder.layer.0.intermediate.dense.weight"); err == nil {
		cfg.IntermediateSize = inter.Rows()
	}

	cfg.NumHiddenLayers = 0
	for _, name := range sd.Names() {
		rest, ok := strings.CutPrefix(name, "encoder.layer.")
		if !ok {
			continue
		}
		idx, _, _ := strings.Cut(rest, ".")
		if n, err := strconv.Atoi(idx); err == nil && n+1 > cfg.NumHiddenLayers {
			cfg.NumHiddenLayers = n + 1
		}
	}

	cfg.NumAttentionHeads = 1
	if cfg.HiddenSize%headDim == 0 {
		cfg.NumAttentionHeads = cfg.HiddenSize / headDim
	}
	return cfg, cfg.Validate()
}

// Validate checks that the sizes describe a buildable encoder.
func (c Config) Validate() error {
	switch {
	case c.VocabSize <= 0:
		return fmt.Errorf("vocab_size must be positive, got %d", c.VocabSize)
	case c.HiddenSize <= 0:
		return fmt.Errorf("hidden_size must be positive, got %d", c.HiddenSize)
	case c.NumHiddenLayers <= 0:
		return fmt.Errorf("num_hidden_layers must be positive, got %d", c.NumHiddenLayers)
	case c.NumAttentionHeads <= 0 || c.HiddenSize%c.NumAttentionHeads != 0:
		return fmt.Errorf("hidden_size %d is not divisible by num_attention_heads %d", c.HiddenSize, c.NumAttentionHeads)
	case c.IntermediateSize <= 0:
		return fmt.Errorf("intermediate_size must be positive, got %d", c.IntermediateSize)
	case c.MaxPositionEmbeddings <= 0:
		return fmt.Errorf("max_position_embeddings must be positive, got %d", c.MaxPositionEmbeddings)
	case c.TypeVocabSize <= 0:
		return fmt.Errorf("type_vocab_size must be positive, got %d", c.TypeVocabSize)
	}
	if _, err := activation(c.HiddenAct); err != nil {
		return err
	}
	return nil
}
