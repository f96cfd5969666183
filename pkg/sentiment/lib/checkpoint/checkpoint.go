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

// Package checkpoint reads model weights from PyTorch (torch.save) and
// safetensors files into float32 tensors.
//
// Only inference is supported: every tensor is decoded to float32 once at
// load time and treated as read-only afterwards.
package checkpoint

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when a named tensor is not in the state dict.
	ErrNotFound = errors.New("checkpoint: tensor not found")
	// ErrShapeMismatch is returned when a tensor has an unexpected shape.
	ErrShapeMismatch = errors.New("checkpoint: tensor shape mismatch")
	// ErrUnsupportedFormat is returned for files that are neither torch
	// checkpoints nor safetensors.
	ErrUnsupportedFormat = errors.New("checkpoint: unsupported file format")
	// ErrNoTensors is returned when a checkpoint decodes but holds no tensors.
	ErrNoTensors = errors.New("checkpoint: no tensors found")
)

// Tensor is a dense row-major float32 tensor.
type Tensor struct {
	Shape []int
	Data  []float32
}

// NewTensor allocates a zero tensor of the given shape.
func NewTensor(shape ...int) *Tensor {
	return &Tensor{Shape: slices.Clone(shape), Data: make([]float32, numElements(shape))}
}

// NumElements returns the product of the dimensions (1 for scalars).
func (t *Tensor) NumElements() int {
	return numElements(t.Shape)
}

// Rows returns the first dimension, or 1 for scalars.
func (t *Tensor) Rows() int {
	if len(t.Shape) == 0 {
		return 1
	}
	return t.Shape[0]
}

// Cols returns the product of all dimensions after the first.
func (t *Tensor) Cols() int {
	if len(t.Shape) <= 1 {
		return 1
	}
	return numElements(t.Shape[1:])
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.Shape)
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// StateDict maps parameter names (e.g. "bert.encoder.layer.0.output.dense.weight")
// to tensors.
type StateDict map[string]*Tensor

// Get returns the named tensor.
func (sd StateDict) Get(name string) (*Tensor, error) {
	t, ok := sd[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return t, nil
}

// Expect returns the named tensor after checking its shape.
func (sd StateDict) Expect(name string, shape ...int) (*Tensor, error) {
	t, err := sd.Get(name)
	if err != nil {
		return nil, err
	}
	if !slices.Equal(t.Shape, shape) {
		return nil, fmt.Errorf("%w: %s has shape %v, want %v", ErrShapeMismatch, name, t.Shape, shape)
	}
	return t, nil
}

// WithPrefix returns the tensors whose names start with prefix, with the
// prefix removed. The tensors are shared, not copied.
func (sd StateDict) WithPrefix(prefix string) StateDict {
	out := make(StateDict)
	for name, t := range sd {
		if rest, ok := strings.CutPrefix(name, prefix); ok {
			out[rest] = t
		}
	}
	return out
}

// HasPrefix reports whether any tensor name starts with prefix.
func (sd StateDict) HasPrefix(prefix string) bool {
	for name := range sd {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Names returns the sorted tensor names.
func (sd StateDict) Names() []string {
	names := make([]string, 0, len(sd))
	for name := range sd {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NumParameters returns the total number of scalar parameters.
func (sd StateDict) NumParameters() int {
	n := 0
	for _, t := range sd {
		n += t.NumElements()
	}
	return n
}

// Format identifies a checkpoint file format.
type Format string

const (
	FormatTorch       Format = "torch"
	FormatSafetensors Format = "safetensors"
)

// DetectFormat sniffs the file header. Torch archives are zip files (or a
// bare protocol 2 pickle before torch 1.6); safetensors start with a
// little-endian header length followed by a JSON object.
func DetectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 9)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("reading header of %s: %w", path, err)
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, []byte("PK\x03\x04")):
		return FormatTorch, nil
	case len(head) == 9 && head[8] == '{':
		return FormatSafetensors, nil
	case strings.EqualFold(filepath.Ext(path), ".safetensors"):
		return FormatSafetensors, nil
	case bytes.HasPrefix(head, []byte{0x80, 0x02}):
		return FormatTorch, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Load reads a checkpoint file in either supported format.
func Load(path string) (StateDict, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatSafetensors:
		return LoadSafetensors(path)
	default:
		return LoadTorch(path)
	}
}
