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

package classification

import (
	"errors"
	"fmt"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/bert"
	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/checkpoint"
)

// NumLabels is the number of sentiment classes: 0 negative, 1 positive.
const NumLabels = 2

// HeadPrefix is the checkpoint prefix of the head's nn.Sequential.
const HeadPrefix = "classifier."

// ErrNumLabels is returned when the head's output layer is not two-wide.
var ErrNumLabels = errors.New("classification head must have exactly 2 outputs")

// Head is Linear(hidden, h) -> ReLU -> Linear(h, 2), the nn.Sequential
// stored under "classifier.0" and "classifier.2".
type Head struct {
	hidden *bert.Linear
	out    *bert.Linear
}

// NewHead builds a head from unprefixed weights ("0.weight", "2.bias", ...).
// A negative hiddenSize takes the input width from the checkpoint.
func NewHead(sd checkpoint.StateDict, hiddenSize int) (*Head, error) {
	hidden, err := bert.NewLinear(sd, "0", hiddenSize, -1)
	if err != nil {
		return nil, fmt.Errorf("head layer 0: %w", err)
	}
	out, err := bert.NewLinear(sd, "2", hidden.Out, -1)
	if err != nil {
		return nil, fmt.Errorf("head layer 2: %w", err)
	}
	if out.Out != NumLabels {
		return nil, fmt.Errorf("%w: got %d", ErrNumLabels, out.Out)
	}
	return &Head{hidden: hidden, out: out}, nil
}

// InputSize is the expected width of the pooled vector.
func (h *Head) InputSize() int {
	return h.hidden.In
}

// NumParameters counts weights and biases of both layers.
func (h *Head) NumParameters() int {
	return h.hidden.In*h.hidden.Out + h.hidden.Out + h.out.In*h.out.Out + h.out.Out
}

// Forward maps pooled [batch, hidden] vectors to [batch, 2] logits.
func (h *Head) Forward(pooled [][]float32) ([][]float32, error) {
	x := make([]float32, 0, len(pooled)*h.hidden.In)
	for i, row := range pooled {
		if len(row) != h.hidden.In {
			return nil, fmt.Errorf("%w: pooled row %d has width %d, head expects %d",
				checkpoint.ErrShapeMismatch, i, len(row), h.hidden.In)
		}
		x = append(x, row...)
	}

	z := h.hidden.Forward(x, len(pooled))
	for i, v := range z {
		if v < 0 {
			z[i] = 0
		}
	}
	y := h.out.Forward(z, len(pooled))

	logits := make([][]float32, len(pooled))
	for i := range logits {
		logits[i] = y[i*NumLabels : (i+1)*NumLabels : (i+1)*NumLabels]
	}
	return logits, nil
}
