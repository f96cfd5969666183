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

// Package backends provides a unified interface for running the BERT encoder
// with multi-backend support:
//
//   - Go: pure-Go forward pass over a PyTorch or safetensors checkpoint.
//     Always available, CPU only.
//   - ONNX Runtime: an exported encoder (or whole classifier) in ONNX format,
//     requires -tags="onnx,ORT".
//   - GoMLX: the same ONNX export run by the GoMLX simplego engine.
//     Pure Go, no build tags.
//
// Build example:
//
//	go build -tags="onnx,ORT" ./pkg/sentiment/cmd
//
// Backend selection at runtime follows a configurable priority order
// (default: ONNX > GoMLX > Go). Loaders that cannot read a given model path are skipped.
package backends

import "fmt"

// BackendType identifies the inference backend
type BackendType string

const (
	// BackendONNX is the ONNX Runtime backend - fast CPU/GPU inference
	BackendONNX BackendType = "onnx"

	// BackendGoMLX runs ONNX graphs through GoMLX
	BackendGoMLX BackendType = "gomlx"

	// BackendGo is the pure Go backend (no CGO)
	// Always available, reads torch.save checkpoints directly.
	BackendGo BackendType = "go"
)

// DeviceType identifies the hardware device for inference
type DeviceType string

const (
	// DeviceAuto auto-detects the best available device (default)
	DeviceAuto DeviceType = "auto"

	// DeviceCUDA uses NVIDIA CUDA GPU
	DeviceCUDA DeviceType = "cuda"

	// DeviceCPU forces CPU-only inference
	DeviceCPU DeviceType = "cpu"
)

// GPUMode controls how GPU acceleration is enabled.
type GPUMode string

const (
	GPUModeAuto GPUMode = "auto" // Auto-detect GPU availability
	GPUModeCuda GPUMode = "cuda" // Force CUDA
	GPUModeOff  GPUMode = "off"  // CPU only
)

// ToGPUMode converts DeviceType to GPUMode.
func (d DeviceType) ToGPUMode() GPUMode {
	switch d {
	case DeviceCUDA:
		return GPUModeCuda
	case DeviceCPU:
		return GPUModeOff
	default:
		return GPUModeAuto
	}
}

// BackendSpec combines a backend type with a device specification.
// Used for configuring backend priority with device preferences.
type BackendSpec struct {
	Backend BackendType
	Device  DeviceType
}

// String returns the string representation (e.g., "onnx:cuda" or "go")
func (s BackendSpec) String() string {
	if s.Device == DeviceAuto || s.Device == "" {
		return string(s.Backend)
	}
	return string(s.Backend) + ":" + string(s.Device)
}

// GPUInfo contains information about the detected GPU
type GPUInfo struct {
	Available   bool   `json:"available"`
	Type        string `json:"type"` // "cuda", "none"
	DeviceName  string `json:"device_name,omitempty"`
	DriverVer   string `json:"driver_version,omitempty"`
	CUDAVersion string `json:"cuda_version,omitempty"`
}

// ModelInputs contains the tokenized inputs for one forward pass.
type ModelInputs struct {
	InputIDs      [][]int32 // Token IDs [batch, seq]
	AttentionMask [][]int32 // Attention mask [batch, seq]
	TokenTypeIDs  [][]int32 // Optional: token type IDs [batch, seq]
}

// Validate checks that the batch is rectangular per row.
func (in *ModelInputs) Validate() error {
	if len(in.InputIDs) == 0 {
		return fmt.Errorf("empty batch")
	}
	if len(in.AttentionMask) != len(in.InputIDs) {
		return fmt.Errorf("batch of %d ids but %d attention masks", len(in.InputIDs), len(in.AttentionMask))
	}
	if in.TokenTypeIDs != nil && len(in.TokenTypeIDs) != len(in.InputIDs) {
		return fmt.Errorf("batch of %d ids but %d token type rows", len(in.InputIDs), len(in.TokenTypeIDs))
	}
	for i, ids := range in.InputIDs {
		if len(in.AttentionMask[i]) != len(ids) {
			return fmt.Errorf("row %d: %d ids but %d mask values", i, len(ids), len(in.AttentionMask[i]))
		}
		if in.TokenTypeIDs != nil && len(in.TokenTypeIDs[i]) != len(ids) {
			return fmt.Errorf("row %d: %d ids but %d token types", i, len(ids), len(in.TokenTypeIDs[i]))
		}
	}
	return nil
}

// ModelOutput contains the outputs from a forward pass.
// Encoders populate LastHiddenState; full classifier exports populate Logits.
type ModelOutput struct {
	// LastHiddenState is [batch, seq, hidden]. A backend may omit trailing
	// padding rows, so seq can be shorter than the input length.
	LastHiddenState [][][]float32

	// Logits is [batch, num_labels].
	Logits [][]float32
}
