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

//go:build onnx && ORT

package backends

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

func init() {
	RegisterBackend(&onnxBackend{})
}

// onnxBackend implements Backend using ONNX Runtime (Linux/Windows).
//
// Runtime Requirements:
//   - Set LD_LIBRARY_PATH before running:
//     export LD_LIBRARY_PATH=/path/to/onnxruntime/lib
//   - For CUDA: export LD_LIBRARY_PATH=/path/to/onnxruntime/lib:/usr/local/cuda/lib64
//
// Build Requirements:
//   - CGO must be enabled (CGO_ENABLED=1)
//   - ONNX Runtime libraries must be available at link time
type onnxBackend struct {
	gpuMode   GPUMode
	gpuModeMu sync.RWMutex

	cudaEnabled     bool
	cudaEnabledOnce sync.Once

	initializedOnce sync.Once
	initErr         error
}

func (b *onnxBackend) Type() BackendType {
	return BackendONNX
}

func (b *onnxBackend) Name() string {
	if b.useCUDA() {
		return "ONNX Runtime (CUDA)"
	}
	return "ONNX Runtime (CPU)"
}

// Available is always true: the build tags only include this file when
// ONNX Runtime is linked.
func (b *onnxBackend) Available() bool {
	return true
}

func (b *onnxBackend) Priority() int {
	return 10
}

func (b *onnxBackend) Loader() ModelLoader {
	return &ortModelLoader{backend: b}
}

// initONNX initializes the ONNX Runtime library.
func (b *onnxBackend) initONNX() error {
	b.initializedOnce.Do(func() {
		if libPath := getOnnxLibraryPath(); libPath != "" {
			ort.SetSharedLibraryPath(filepath.Join(libPath, getOnnxLibraryName()))
		}
		b.initErr = ort.InitializeEnvironment()
	})
	return b.initErr
}

// getOnnxLibraryPath returns the directory containing libonnxruntime from environment.
// Checks ONNXRUNTIME_ROOT first, then LD_LIBRARY_PATH.
func getOnnxLibraryPath() string {
	platform := runtime.GOOS + "-" + runtime.GOARCH
	libName := getOnnxLibraryName()

	if root := os.Getenv("ONNXRUNTIME_ROOT"); root != "" {
		for _, dir := range []string{filepath.Join(root, platform, "lib"), filepath.Join(root, "lib")} {
			if _, err := os.Stat(filepath.Join(dir, libName)); err == nil {
				return dir
			}
		}
	}

	for _, dir := range filepath.SplitList(os.Getenv("LD_LIBRARY_PATH")) {
		if _, err := os.Stat(filepath.Join(dir, libName)); err == nil {
			return dir
		}
	}
	return ""
}

func getOnnxLibraryName() string {
	if runtime.GOOS == "windows" {
		return "onnxruntime.dll"
	}
	return "libonnxruntime.so"
}

// SetGPUMode sets the GPU mode for this backend.
// Must be called before any sessions are created to take effect.
func (b *onnxBackend) SetGPUMode(mode GPUMode) {
	b.gpuModeMu.Lock()
	defer b.gpuModeMu.Unlock()
	b.gpuMode = mode
}

// GetGPUMode returns the current GPU mode.
func (b *onnxBackend) GetGPUMode() GPUMode {
	b.gpuModeMu.RLock()
	defer b.gpuModeMu.RUnlock()
	if b.gpuMode == "" {
		return GPUModeAuto
	}
	return b.gpuMode
}

func (b *onnxBackend) useCUDA() bool {
	b.cudaEnabledOnce.Do(func() {
		b.cudaEnabled = ShouldUseGPU(b.GetGPUMode())
	})
	return b.cudaEnabled
}

// ortModelLoader implements ModelLoader for ONNX Runtime.
type ortModelLoader struct {
	backend *onnxBackend
}

func (l *ortModelLoader) Load(path string, opts ...LoadOption) (Model, error) {
	if err := l.backend.initONNX(); err != nil {
		return nil, fmt.Errorf("initializing ONNX Runtime: %w", err)
	}

	config := ApplyOptions(opts...)

	onnxPath := onnxFile(path, config)
	if _, err := os.Stat(onnxPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("ONNX model not found: %s", onnxPath)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(onnxPath)
	if err != nil {
		return nil, fmt.Errorf("getting model info: %w", err)
	}

	inputNames := filterInputNames(inputs)
	if len(inputNames) == 0 {
		return nil, fmt.Errorf("no valid input names found in model")
	}

	// Only the first output is read (last_hidden_state or logits).
	if len(outputs) == 0 {
		return nil, fmt.Errorf("no output names found in model")
	}
	outputNames := []string{outputs[0].Name}

	sessionOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("creating session options: %w", err)
	}

	if config.NumThreads > 0 {
		if err := sessionOpts.SetIntraOpNumThreads(config.NumThreads); err != nil {
			sessionOpts.Destroy()
			return nil, fmt.Errorf("setting thread count: %w", err)
		}
	}

	gpuMode := config.GPUMode
	if gpuMode == "" {
		gpuMode = l.backend.GetGPUMode()
	}
	useCUDA := gpuMode == GPUModeCuda || (gpuMode == GPUModeAuto && l.backend.useCUDA())
	if useCUDA {
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err == nil {
			if err := sessionOpts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
				// CUDA not available, fall back to CPU
				cudaOpts.Destroy()
			} else {
				defer cudaOpts.Destroy()
			}
		}
	}

	session, err := ort.NewDynamicAdvancedSession(onnxPath, inputNames, outputNames, sessionOpts)
	if err != nil {
		sessionOpts.Destroy()
		return nil, fmt.Errorf("creating ONNX session: %w", err)
	}

	return &ortModel{
		path:        onnxPath,
		session:     session,
		sessionOpts: sessionOpts,
		inputNames:  inputNames,
	}, nil
}

// filterInputNames keeps the BERT inputs the model declares, in model order.
func filterInputNames(inputs []ort.InputOutputInfo) []string {
	knownInputs := map[string]bool{
		"input_ids":      true,
		"attention_mask": true,
		"token_type_ids": true,
	}

	var names []string
	for _, info := range inputs {
		if knownInputs[info.Name] {
			names = append(names, info.Name)
		}
	}
	return names
}

func (l *ortModelLoader) SupportsModel(path string) bool {
	return hasONNXModel(path)
}

func (l *ortModelLoader) Backend() BackendType {
	return BackendONNX
}

// ortModel implements Model using ONNX Runtime.
type ortModel struct {
	path        string
	session     *ort.DynamicAdvancedSession
	sessionOpts *ort.SessionOptions
	inputNames  []string
}

func (m *ortModel) Forward(ctx context.Context, inputs *ModelInputs) (*ModelOutput, error) {
	if m.session == nil {
		return nil, fmt.Errorf("ONNX session not initialized")
	}
	if err := inputs.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batchSize := len(inputs.InputIDs)
	seqLen := len(inputs.InputIDs[0])
	shape := ort.NewShape(int64(batchSize), int64(seqLen))

	flatten := func(rows [][]int32) []int64 {
		flat := make([]int64, batchSize*seqLen)
		for i, row := range rows {
			for j, v := range row {
				flat[i*seqLen+j] = int64(v)
			}
		}
		return flat
	}

	inputTensors := make([]ort.Value, 0, len(m.inputNames))
	defer func() {
		for _, t := range inputTensors {
			t.Destroy()
		}
	}()
	for _, name := range m.inputNames {
		var rows [][]int32
		switch name {
		case "input_ids":
			rows = inputs.InputIDs
		case "attention_mask":
			rows = inputs.AttentionMask
		case "token_type_ids":
			rows = inputs.TokenTypeIDs // nil means all zeros
		}
		tensor, err := ort.NewTensor(shape, flatten(rows))
		if err != nil {
			return nil, fmt.Errorf("creating %s tensor: %w", name, err)
		}
		inputTensors = append(inputTensors, tensor)
	}

	// nil outputs let the session allocate them
	outputTensors := []ort.Value{nil}
	if err := m.session.Run(inputTensors, outputTensors); err != nil {
		return nil, fmt.Errorf("running ONNX inference: %w", err)
	}
	defer func() {
		for _, t := range outputTensors {
			if t != nil {
				t.Destroy()
			}
		}
	}()
	if outputTensors[0] == nil {
		return nil, fmt.Errorf("no output tensors returned")
	}

	floatTensor, ok := outputTensors[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("output tensor is not float32")
	}
	outputShape := floatTensor.GetShape()
	outputData := floatTensor.GetData()

	switch len(outputShape) {
	case 3:
		// Encoder export: [batch, seq, hidden]
		hiddenSize := int(outputShape[2])
		lastHiddenState := make([][][]float32, batchSize)
		for i := range batchSize {
			lastHiddenState[i] = make([][]float32, seqLen)
			for j := range seqLen {
				base := (i*seqLen + j) * hiddenSize
				lastHiddenState[i][j] = append([]float32(nil), outputData[base:base+hiddenSize]...)
			}
		}
		return &ModelOutput{LastHiddenState: lastHiddenState}, nil

	case 2:
		// Full classifier export: [batch, num_labels]
		dim := int(outputShape[1])
		logits := make([][]float32, batchSize)
		for i := range batchSize {
			logits[i] = append([]float32(nil), outputData[i*dim:(i+1)*dim]...)
		}
		return &ModelOutput{Logits: logits}, nil

	default:
		return nil, fmt.Errorf("unexpected output shape: %v (expected 2D or 3D)", outputShape)
	}
}

func (m *ortModel) Close() error {
	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
	if m.sessionOpts != nil {
		m.sessionOpts.Destroy()
		m.sessionOpts = nil
	}
	return nil
}

func (m *ortModel) Name() string {
	return m.path
}

func (m *ortModel) Backend() BackendType {
	return BackendONNX
}
