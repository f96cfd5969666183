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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/bert"
	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/checkpoint"
)

func init() {
	RegisterBackend(&goBackend{})
}

// Checkpoint filenames looked up, in order, inside a model directory.
var checkpointFilenames = []string{"model.safetensors", "pytorch_model.bin"}

// goBackend runs the encoder in pure Go on the CPU.
// It reads torch.save archives and safetensors files directly.
type goBackend struct{}

func (b *goBackend) Type() BackendType {
	return BackendGo
}

func (b *goBackend) Name() string {
	return "Go (CPU)"
}

func (b *goBackend) Available() bool {
	return true
}

func (b *goBackend) Priority() int {
	return 100
}

func (b *goBackend) Loader() ModelLoader {
	return &goModelLoader{}
}

// goModelLoader implements ModelLoader for checkpoint files.
type goModelLoader struct{}

// resolveCheckpoint returns the checkpoint file for path, which may be the
// file itself or a directory holding one.
func resolveCheckpoint(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return path, nil
	}
	for _, name := range checkpointFilenames {
		candidate := filepath.Join(path, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	matches, _ := filepath.Glob(filepath.Join(path, "*.pt"))
	if len(matches) > 0 {
		sort.Strings(matches)
		return matches[0], nil
	}
	return "", fmt.Errorf("no checkpoint in %s: %w", path, os.ErrNotExist)
}

func (l *goModelLoader) SupportsModel(path string) bool {
	file, err := resolveCheckpoint(path)
	if err != nil {
		return false
	}
	_, err = checkpoint.DetectFormat(file)
	return err == nil
}

func (l *goModelLoader) Load(path string, opts ...LoadOption) (Model, error) {
	config := ApplyOptions(opts...)

	file, err := resolveCheckpoint(path)
	if err != nil {
		return nil, err
	}
	sd, err := checkpoint.Load(file)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	weights := bert.EncoderWeights(sd)

	cfg, err := encoderConfig(file, weights, config)
	if err != nil {
		return nil, err
	}
	if config.MaxLength > cfg.MaxPositionEmbeddings {
		return nil, fmt.Errorf("max length %d exceeds the model's %d position embeddings",
			config.MaxLength, cfg.MaxPositionEmbeddings)
	}

	encoder, err := bert.New(weights, cfg)
	if err != nil {
		return nil, fmt.Errorf("building encoder: %w", err)
	}
	return &goModel{path: file, encoder: encoder, weights: sd}, nil
}

// encoderConfig picks, in order: the explicit option, config.json next to
// the checkpoint, then shapes inferred from the weights.
func encoderConfig(file string, weights checkpoint.StateDict, config *LoadConfig) (bert.Config, error) {
	if config.EncoderConfig != nil {
		return *config.EncoderConfig, nil
	}
	cfg, err := bert.LoadConfig(filepath.Join(filepath.Dir(file), bert.ConfigFilename))
	switch {
	case err == nil:
		return cfg, nil
	case errors.Is(err, os.ErrNotExist):
		return bert.InferConfig(weights)
	default:
		return bert.Config{}, err
	}
}

func (l *goModelLoader) Backend() BackendType {
	return BackendGo
}

// goModel implements Model over a bert.Encoder. It is safe for concurrent use.
type goModel struct {
	path    string
	encoder *bert.Encoder
	weights checkpoint.StateDict
}

var (
	_ EncoderConfigProvider = (*goModel)(nil)
	_ WeightsProvider       = (*goModel)(nil)
)

// Forward returns hidden states for each row. Rows stop at the last attended
// position, so trailing padding is not computed.
func (m *goModel) Forward(ctx context.Context, inputs *ModelInputs) (*ModelOutput, error) {
	if err := inputs.Validate(); err != nil {
		return nil, err
	}

	hiddenSize := m.encoder.Config().HiddenSize
	out := &ModelOutput{LastHiddenState: make([][][]float32, len(inputs.InputIDs))}
	for i, ids := range inputs.InputIDs {
		var types []int32
		if inputs.TokenTypeIDs != nil {
			types = inputs.TokenTypeIDs[i]
		}
		hidden, seq, err := m.encoder.Forward(ctx, ids, inputs.AttentionMask[i], types)
		if err != nil {
			return nil, err
		}
		rows := make([][]float32, seq)
		for j := range rows {
			rows[j] = hidden[j*hiddenSize : (j+1)*hiddenSize : (j+1)*hiddenSize]
		}
		out.LastHiddenState[i] = rows
	}
	return out, nil
}

func (m *goModel) EncoderConfig() bert.Config {
	return m.encoder.Config()
}

// Weights returns every tensor of the checkpoint, prefixes intact.
func (m *goModel) Weights() checkpoint.StateDict {
	return m.weights
}

func (m *goModel) Close() error {
	m.weights = nil
	return nil
}

func (m *goModel) Name() string {
	return m.path
}

func (m *goModel) Backend() BackendType {
	return BackendGo
}
