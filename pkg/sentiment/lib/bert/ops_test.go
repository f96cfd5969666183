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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/checkpoint"
)

func TestLinear_Forward(t *testing.T) {
	sd := checkpoint.StateDict{
		"l.weight": {Shape: []int{2, 3}, Data: []float32{1, 2, 3, 4, 5, 6}},
		"l.bias":   {Shape: []int{2}, Data: []float32{0.5, -1}},
	}
	l, err := NewLinear(sd, "l", 3, 2)
	require.NoError(t, err)

	y := l.Forward([]float32{1, 0, -1, 2, 1, 0}, 2)
	assert.InDeltaSlice(t, []float32{-1.5, -3, 4.5, 12}, y, 1e-6)
}

func TestNewLinear_InferredSizes(t *testing.T) {
	sd := checkpoint.StateDict{
		"l.weight": checkpoint.NewTensor(50, 8),
		"l.bias":   checkpoint.NewTensor(50),
	}
	l, err := NewLinear(sd, "l", 8, -1)
	require.NoError(t, err)
	assert.Equal(t, 50, l.Out)

	_, err = NewLinear(sd, "l", 8, 2)
	require.ErrorIs(t, err, checkpoint.ErrShapeMismatch)

	sd["l.bias"] = checkpoint.NewTensor(49)
	_, err = NewLinear(sd, "l", 8, -1)
	require.ErrorIs(t, err, checkpoint.ErrShapeMismatch)

	_, err = NewLinear(sd, "missing", 8, -1)
	require.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestLayerNorm(t *testing.T) {
	ln := &layerNorm{gamma: []float32{1, 1, 1, 1}, beta: []float32{0, 0, 0, 0}, eps: 1e-12}
	x := []float32{1, 2, 3, 4, 10, 10, 10, 10}
	ln.apply(x, 2)

	// Population std of 1..4 is sqrt(1.25).
	s := float32(1 / 1.118033988749895)
	assert.InDeltaSlice(t, []float32{-1.5 * s, -0.5 * s, 0.5 * s, 1.5 * s}, x[:4], 1e-5)
	assert.InDeltaSlice(t, []float32{0, 0, 0, 0}, x[4:], 1e-5)
}

func TestActivations(t *testing.T) {
	assert.InDelta(t, 0, gelu(0), 1e-7)
	assert.InDelta(t, 0.8413447, gelu(1), 1e-6)
	assert.InDelta(t, -0.1586553, gelu(-1), 1e-6)
	assert.InDelta(t, 0.841192, geluTanh(1), 1e-5)
	assert.Equal(t, float32(0), relu(-3))
	assert.Equal(t, float32(2), relu(2))

	_, err := activation("tanh")
	require.Error(t, err)
}

func TestSoftmaxInPlace(t *testing.T) {
	scores := []float32{0, 0, 1000, 1, -1e9, 1}
	softmaxInPlace(scores, 2, 3)

	assert.InDeltaSlice(t, []float32{0, 0, 1}, scores[:3], 1e-6)
	assert.InDeltaSlice(t, []float32{0.5, 0, 0.5}, scores[3:], 1e-6)
}
