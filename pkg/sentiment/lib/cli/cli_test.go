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

package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/internal/testutil"
	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/checkpoint"
	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/classification"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{231508, "226.1 KB"},
		{440 << 20, "440.0 MB"},
		{3 << 30, "3.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in))
	}
}

func TestProgressLine(t *testing.T) {
	assert.Equal(t, "["+strings.Repeat("=", 15)+strings.Repeat("-", 15)+"] 50.0% (512 B/1.0 KB)", progressLine(512, 1024))
	assert.Equal(t, "["+strings.Repeat("=", 30)+"] 100.0% (1.0 KB/1.0 KB)", progressLine(2048, 1024))
}

func TestConvertCheckpoint(t *testing.T) {
	src := testutil.WriteModel(t, testutil.TinyConfig(), 3)
	want, err := checkpoint.Load(src)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "converted.safetensors")
	result, err := ConvertCheckpoint(src, ConvertOptions{Output: out, ExportHead: true})
	require.NoError(t, err)
	assert.Equal(t, out, result.Output)
	assert.Equal(t, len(want), result.Tensors)
	assert.Equal(t, want.NumParameters(), result.Parameters)

	got, err := checkpoint.LoadSafetensors(out)
	require.NoError(t, err)
	assert.Equal(t, want.Names(), got.Names())
	for _, name := range want.Names() {
		assert.Equal(t, want[name].Data, got[name].Data, name)
	}

	require.Equal(t, filepath.Join(filepath.Dir(out), classification.HeadFilename), result.HeadOutput)
	head, err := checkpoint.LoadSafetensors(result.HeadOutput)
	require.NoError(t, err)
	assert.Len(t, head, 4)
	for _, name := range head.Names() {
		assert.True(t, strings.HasPrefix(name, classification.HeadPrefix), name)
	}
}

func TestConvertCheckpoint_Errors(t *testing.T) {
	src := testutil.WriteModel(t, testutil.TinyConfig(), 3)

	_, err := ConvertCheckpoint(src, ConvertOptions{})
	require.Error(t, err, "default output equals a .safetensors source")

	_, err = ConvertCheckpoint(filepath.Join(t.TempDir(), "missing.pt"), ConvertOptions{})
	require.Error(t, err)

	sd, err := checkpoint.Load(src)
	require.NoError(t, err)
	encoderOnly := make(checkpoint.StateDict)
	for name, tensor := range sd {
		if !strings.HasPrefix(name, classification.HeadPrefix) {
			encoderOnly[name] = tensor
		}
	}
	headless := filepath.Join(t.TempDir(), "encoder.safetensors")
	require.NoError(t, checkpoint.SaveSafetensors(headless, encoderOnly, nil))

	_, err = ConvertCheckpoint(headless, ConvertOptions{
		Output:     filepath.Join(t.TempDir(), "out.safetensors"),
		ExportHead: true,
	})
	require.ErrorIs(t, err, checkpoint.ErrNotFound)
}
