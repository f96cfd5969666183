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
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/internal/testutil"
	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/checkpoint"
)

func tinyConfig() Config {
	tc := testutil.TinyConfig()
	return Config{
		VocabSize:             len(testutil.VocabTokens),
		HiddenSize:            tc.Hidden,
		NumHiddenLayers:       tc.Layers,
		NumAttentionHeads:     tc.Heads,
		IntermediateSize:      tc.Intermediate,
		MaxPositionEmbeddings: tc.Positions,
		TypeVocabSize:         tc.Types,
		LayerNormEps:          1e-12,
		HiddenAct:             "gelu",
	}
}

func newTinyEncoder(t *testing.T) *Encoder {
	t.Helper()
	sd := testutil.RandomStateDict(testutil.TinyConfig(), 7)
	enc, err := New(EncoderWeights(sd), tinyConfig())
	require.NoError(t, err)
	return enc
}

func padded(ids []int32, length int) (outIDs, mask []int32) {
	outIDs = make([]int32, length)
	mask = make([]int32, length)
	copy(outIDs, ids)
	for i := range ids {
		mask[i] = 1
	}
	return outIDs, mask
}

func TestForward_Shape(t *testing.T) {
	enc := newTinyEncoder(t)

	ids, mask := padded([]int32{2, 5, 6, 3}, 12)
	hidden, seq, err := enc.Forward(context.Background(), ids, mask, make([]int32, 12))
	require.NoError(t, err)

	assert.Equal(t, 4, seq)
	require.Len(t, hidden, 4*8)
	for _, v := range hidden {
		assert.False(t, math.IsNaN(float64(v)) || math.IsInf(float64(v), 0))
	}
}

func TestForward_RightPaddingDoesNotChangeRealTokens(t *testing.T) {
	enc := newTinyEncoder(t)
	ctx := context.Background()
	tokens := []int32{2, 7, 8, 5, 6, 3}

	unpadded, seq, err := enc.Forward(ctx, tokens, nil, nil)
	require.NoError(t, err)
	require.Equal(t, len(tokens), seq)

	for _, length := range []int{6, 10, 32} {
		ids, mask := padded(tokens, length)
		got, seq, err := enc.Forward(ctx, ids, mask, nil)
		require.NoError(t, err)
		require.Equal(t, len(tokens), seq)
		assert.InDeltaSlice(t, unpadded, got, 1e-6, "padded to %d", length)
	}
}

func TestForward_MaskedPositionIsIgnored(t *testing.T) {
	enc := newTinyEncoder(t)
	ctx := context.Background()
	mask := []int32{1, 1, 0, 1, 1}

	a, _, err := enc.Forward(ctx, []int32{2, 5, 9, 6, 3}, mask, nil)
	require.NoError(t, err)
	b, _, err := enc.Forward(ctx, []int32{2, 5, 12, 6, 3}, mask, nil)
	require.NoError(t, err)

	h := enc.Config().HiddenSize
	for _, row := range []int{0, 1, 3, 4} {
		assert.InDeltaSlice(t, a[row*h:(row+1)*h], b[row*h:(row+1)*h], 1e-6, "row %d", row)
	}
}

func TestForward_ConcurrentCallsAgree(t *testing.T) {
	enc := newTinyEncoder(t)
	ids, mask := padded([]int32{2, 14, 8, 13, 16, 3}, 16)

	want, _, err := enc.Forward(context.Background(), ids, mask, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]float32, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _, _ = enc.Forward(context.Background(), ids, mask, nil)
		}()
	}
	wg.Wait()
	for _, got := range results {
		assert.Equal(t, want, got)
	}
}

func TestForward_InvalidInput(t *testing.T) {
	enc := newTinyEncoder(t)
	ctx := context.Background()

	long := make([]int32, 40)
	for i := range long {
		long[i] = 5
	}

	tests := []struct {
		name  string
		ids   []int32
		mask  []int32
		types []int32
	}{
		{name: "empty", ids: nil},
		{name: "unknown id", ids: []int32{2, 99, 3}},
		{name: "negative id", ids: []int32{2, -1, 3}},
		{name: "token type", ids: []int32{2, 5, 3}, types: []int32{0, 2, 0}},
		{name: "mask length", ids: []int32{2, 5, 3}, mask: []int32{1, 1}},
		{name: "type length", ids: []int32{2, 5, 3}, types: []int32{0}},
		{name: "too many positions", ids: long},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := enc.Forward(ctx, tt.ids, tt.mask, tt.types)
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestForward_Cancelled(t *testing.T) {
	enc := newTinyEncoder(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := enc.Forward(ctx, []int32{2, 5, 3}, nil, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNew_LegacyLayerNormNames(t *testing.T) {
	sd := EncoderWeights(testutil.RandomStateDict(testutil.TinyConfig(), 7))
	legacy := make(checkpoint.StateDict, len(sd))
	for name, tensor := range sd {
		name = strings.Replace(name, "LayerNorm.weight", "LayerNorm.gamma", 1)
		name = strings.Replace(name, "LayerNorm.bias", "LayerNorm.beta", 1)
		legacy[name] = tensor
	}

	modern, err := New(sd, tinyConfig())
	require.NoError(t, err)
	old, err := New(legacy, tinyConfig())
	require.NoError(t, err)

	ids := []int32{2, 5, 6, 3}
	want, _, err := modern.Forward(context.Background(), ids, nil, nil)
	require.NoError(t, err)
	got, _, err := old.Forward(context.Background(), ids, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestNew_Errors(t *testing.T) {
	sd := EncoderWeights(testutil.RandomStateDict(testutil.TinyConfig(), 7))

	missing := make(checkpoint.StateDict)
	for name, tensor := range sd {
		if name != "encoder.layer.1.output.dense.bias" {
			missing[name] = tensor
		}
	}
	_, err := New(missing, tinyConfig())
	require.ErrorIs(t, err, checkpoint.ErrNotFound)

	wide := tinyConfig()
	wide.IntermediateSize = 32
	_, err = New(sd, wide)
	require.ErrorIs(t, err, checkpoint.ErrShapeMismatch)

	badHeads := tinyConfig()
	badHeads.NumAttentionHeads = 3
	_, err = New(sd, badHeads)
	require.Error(t, err)

	badAct := tinyConfig()
	badAct.HiddenAct = "swish"
	_, err = New(sd, badAct)
	require.Error(t, err)
}

func TestEncoderWeights(t *testing.T) {
	sd := testutil.RandomStateDict(testutil.TinyConfig(), 1)
	enc := EncoderWeights(sd)
	assert.True(t, enc.HasPrefix("embeddings."))
	assert.False(t, enc.HasPrefix("classifier."))

	// Already unprefixed weights are returned as-is.
	assert.Equal(t, len(enc), len(EncoderWeights(enc)))
}

func TestInferConfig(t *testing.T) {
	sd := EncoderWeights(testutil.RandomStateDict(testutil.TinyConfig(), 1))

	cfg, err := InferConfig(sd)
	require.NoError(t, err)
	assert.Equal(t, len(testutil.VocabTokens), cfg.VocabSize)
	assert.Equal(t, 8, cfg.HiddenSize)
	assert.Equal(t, 2, cfg.NumHiddenLayers)
	assert.Equal(t, 16, cfg.IntermediateSize)
	assert.Equal(t, 32, cfg.MaxPositionEmbeddings)
	assert.Equal(t, 2, cfg.TypeVocabSize)
	assert.Equal(t, 1, cfg.NumAttentionHeads)

	_, err = InferConfig(checkpoint.StateDict{})
	require.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFilename)
	require.NoError(t, os.WriteFile(path, testutil.BertConfigJSON(testutil.TinyConfig()), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, tinyConfig(), cfg)

	require.NoError(t, os.WriteFile(path, []byte(`{"hidden_size": 10, "num_attention_heads": 3}`), 0644))
	_, err = LoadConfig(path)
	require.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestBaseUncasedConfig(t *testing.T) {
	cfg := BaseUncasedConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 768, cfg.HiddenSize)
	assert.Equal(t, 12, cfg.NumAttentionHeads)
	assert.Equal(t, 512, cfg.MaxPositionEmbeddings)
}
