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

// Package testutil builds small, randomly initialised sentiment models on
// disk for tests.
package testutil

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/checkpoint"
)

// VocabTokens is the test vocabulary; a token's id is its index.
var VocabTokens = []string{
	"[PAD]", "[UNK]", "[CLS]", "[SEP]", "[MASK]",
	"zwina", "bzaf", "hada", "film", "khayb",
	"ma", "3jbni", "walo", "##s", "l",
	".", "!", ",", "chi", "wa",
}

// ModelConfig sizes a tiny BERT plus classification head.
type ModelConfig struct {
	Hidden       int
	Layers       int
	Heads        int
	Intermediate int
	Positions    int
	Types        int
	HeadHidden   int
	Labels       int
}

// TinyConfig is small enough for many forward passes per test.
func TinyConfig() ModelConfig {
	return ModelConfig{
		Hidden:       8,
		Layers:       2,
		Heads:        2,
		Intermediate: 16,
		Positions:    32,
		Types:        2,
		HeadHidden:   6,
		Labels:       2,
	}
}

// RandomStateDict returns "bert."-prefixed encoder weights and a
// "classifier." head drawn from a seeded generator.
func RandomStateDict(cfg ModelConfig, seed uint64) checkpoint.StateDict {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	sd := make(checkpoint.StateDict)

	random := func(name string, scale float32, shape ...int) {
		t := checkpoint.NewTensor(shape...)
		for i := range t.Data {
			t.Data[i] = (rng.Float32()*2 - 1) * scale
		}
		sd[name] = t
	}
	norm := func(prefix string) {
		gamma := checkpoint.NewTensor(cfg.Hidden)
		for i := range gamma.Data {
			gamma.Data[i] = 1 + (rng.Float32()*2-1)*0.1
		}
		sd[prefix+".weight"] = gamma
		random(prefix+".bias", 0.1, cfg.Hidden)
	}
	linear := func(prefix string, in, out int) {
		random(prefix+".weight", 0.5, out, in)
		random(prefix+".bias", 0.1, out)
	}

	vocab := len(VocabTokens)
	random("bert.embeddings.word_embeddings.weight", 1, vocab, cfg.Hidden)
	random("bert.embeddings.position_embeddings.weight", 0.2, cfg.Positions, cfg.Hidden)
	random("bert.embeddings.token_type_embeddings.weight", 0.2, cfg.Types, cfg.Hidden)
	norm("bert.embeddings.LayerNorm")
	for l := range cfg.Layers {
		p := fmt.Sprintf("bert.encoder.layer.%d.", l)
		linear(p+"attention.self.query", cfg.Hidden, cfg.Hidden)
		linear(p+"attention.self.key", cfg.Hidden, cfg.Hidden)
		linear(p+"attention.self.value", cfg.Hidden, cfg.Hidden)
		linear(p+"attention.output.dense", cfg.Hidden, cfg.Hidden)
		norm(p + "attention.output.LayerNorm")
		linear(p+"intermediate.dense", cfg.Hidden, cfg.Intermediate)
		linear(p+"output.dense", cfg.Intermediate, cfg.Hidden)
		norm(p + "output.LayerNorm")
	}
	linear("classifier.0", cfg.Hidden, cfg.HeadHidden)
	linear("classifier.2", cfg.HeadHidden, cfg.Labels)
	return sd
}

// BertConfigJSON renders cfg as a Hugging Face config.json.
func BertConfigJSON(cfg ModelConfig) []byte {
	data, err := json.Marshal(map[string]any{
		"architectures":           []string{"BertModel"},
		"model_type":              "bert",
		"vocab_size":              len(VocabTokens),
		"hidden_size":             cfg.Hidden,
		"num_hidden_layers":       cfg.Layers,
		"num_attention_heads":     cfg.Heads,
		"intermediate_size":       cfg.Intermediate,
		"max_position_embeddings": cfg.Positions,
		"type_vocab_size":         cfg.Types,
		"layer_norm_eps":          1e-12,
		"hidden_act":              "gelu",
	})
	if err != nil {
		panic(err)
	}
	return data
}

// WriteModel writes model.safetensors, config.json and vocab.txt into a new
// temporary directory and returns the checkpoint path.
func WriteModel(t testing.TB, cfg ModelConfig, seed uint64) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "model.safetensors")
	require.NoError(t, checkpoint.SaveSafetensors(path, RandomStateDict(cfg, seed), nil))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), BertConfigJSON(cfg), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vocab.txt"), []byte(strings.Join(VocabTokens, "\n")+"\n"), 0644))
	return path
}
