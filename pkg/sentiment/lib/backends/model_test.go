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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelInputs_Validate(t *testing.T) {
	ok := &ModelInputs{
		InputIDs:      [][]int32{{2, 5, 3}},
		AttentionMask: [][]int32{{1, 1, 1}},
	}
	require.NoError(t, ok.Validate())

	tests := []struct {
		name   string
		inputs *ModelInputs
	}{
		{name: "empty", inputs: &ModelInputs{}},
		{name: "mask rows", inputs: &ModelInputs{InputIDs: [][]int32{{2}}, AttentionMask: nil}},
		{name: "mask width", inputs: &ModelInputs{InputIDs: [][]int32{{2, 3}}, AttentionMask: [][]int32{{1}}}},
		{name: "type rows", inputs: &ModelInputs{
			InputIDs: [][]int32{{2}}, AttentionMask: [][]int32{{1}}, TokenTypeIDs: [][]int32{{0}, {0}},
		}},
		{name: "type width", inputs: &ModelInputs{
			InputIDs: [][]int32{{2}}, AttentionMask: [][]int32{{1}}, TokenTypeIDs: [][]int32{{0, 0}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.inputs.Validate())
		})
	}
}

func TestPoolCLS(t *testing.T) {
	hidden := [][][]float32{
		{{1, 10}, {3, -2}, {100, 100}},
		{{-1, 0.5}, {7, 7}},
	}
	assert.Equal(t, [][]float32{{1, 10}, {-1, 0.5}}, PoolCLS(hidden))

	pooled := PoolCLS(hidden)
	pooled[0][0] = 42
	assert.Equal(t, float32(1), hidden[0][0][0])

	assert.Nil(t, PoolCLS(nil))
	assert.Nil(t, PoolCLS([][][]float32{{}}))
}

func TestApplyOptions(t *testing.T) {
	cfg := ApplyOptions()
	assert.Equal(t, "model.onnx", cfg.ONNXFilename)
	assert.Equal(t, 512, cfg.MaxLength)
	assert.Equal(t, GPUModeAuto, cfg.GPUMode)
	assert.Nil(t, cfg.EncoderConfig)

	cfg = ApplyOptions(WithONNXFile("encoder.onnx"), WithMaxLength(64), WithGPUMode(GPUModeOff), WithNumThreads(2))
	assert.Equal(t, "encoder.onnx", cfg.ONNXFilename)
	assert.Equal(t, 64, cfg.MaxLength)
	assert.Equal(t, GPUModeOff, cfg.GPUMode)
	assert.Equal(t, 2, cfg.NumThreads)
}
