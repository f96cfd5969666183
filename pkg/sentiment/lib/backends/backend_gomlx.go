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
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	mlctx "github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/onnx-gomlx/onnx"

	// Import Go engine - always available (pure Go, no CGO)
	_ "github.com/gomlx/gomlx/backends/simplego"
)

// gomlxEngine is the GoMLX engine name registered by simplego.
const gomlxEngine = "go"

func init() {
	RegisterBackend(&gomlxBackend{})
}

// gomlxBackend runs ONNX exports through onnx-gomlx on the GoMLX simplego
// engine. It needs no build tags or shared libraries, so it can serve an
// .onnx model when ONNX Runtime is not linked.
type gomlxBackend struct {
	availableOnce sync.Once
	available     bool

	engineOnce sync.Once
	engine     backends.Backend
	engineErr  error
}

func (b *gomlxBackend) Type() BackendType {
	return BackendGoMLX
}

func (b *gomlxBackend) Name() string {
	return "GoMLX (Go)"
}

// Available reports whether a simplego engine can be created. The result
// is cached.
func (b *gomlxBackend) Available() bool {
	b.availableOnce.Do(func() {
		_, err := b.getEngine()
		b.available = err == nil
	})
	return b.available
}

func (b *gomlxBackend) Priority() int {
	return 50
}

func (b *gomlxBackend) Loader() ModelLoader {
	return &gomlxModelLoader{backend: b}
}

// getEngine returns the shared engine, creating it on first use.
func (b *gomlxBackend) getEngine() (backends.Backend, error) {
	b.engineOnce.Do(func() {
		b.engine, b.engineErr = safeNewBackend(gomlxEngine)
	})
	return b.engine, b.engineErr
}

// safeNewBackend creates a new engine, catching panics from libraries
// that don't handle missing dependencies gracefully.
func safeNewBackend(engineType string) (engine backends.Backend, err error) {
	defer func() {
		if r := recover(); r != nil {
			engine = nil
			err = fmt.Errorf("engine %q panicked during initialization: %v", engineType, r)
		}
	}()
	return backends.NewWithConfig(engineType)
}

// gomlxModelLoader implements ModelLoader for ONNX files.
type gomlxModelLoader struct {
	backend *gomlxBackend
}

func (l *gomlxModelLoader) Load(path string, opts ...LoadOption) (Model, error) {
	config := ApplyOptions(opts...)

	onnxPath := onnxFile(path, config)
	if _, err := os.Stat(onnxPath); os.IsNotExist(err) {
		// Try to find any .onnx file
		matches, _ := filepath.Glob(filepath.Join(path, "*.onnx"))
		if len(matches) == 0 {
			return nil, fmt.Errorf("ONNX model not found: %s", onnxPath)
		}
		onnxPath = matches[0]
	}

	engine, err := l.backend.getEngine()
	if err != nil {
		return nil, fmt.Errorf("creating GoMLX engine: %w", err)
	}

	om, err := onnx.ReadFile(onnxPath)
	if err != nil {
		return nil, fmt.Errorf("loading ONNX model: %w", err)
	}

	inputNames, _ := om.Inputs()
	var names []string
	for _, name := range inputNames {
		switch name {
		case "input_ids", "attention_mask", "token_type_ids":
			names = append(names, name)
		default:
			return nil, fmt.Errorf("unsupported ONNX input %q", name)
		}
	}
	if !slices.Contains(names, "input_ids") {
		return nil, fmt.Errorf("ONNX model has no input_ids input")
	}

	ctx := mlctx.New()
	if err := om.VariablesToContext(ctx); err != nil {
		return nil, fmt.Errorf("loading ONNX variables: %w", err)
	}

	return &gomlxModel{
		path:       onnxPath,
		model:      om,
		ctx:        ctx,
		engine:     engine,
		inputNames: names,
	}, nil
}

func (l *gomlxModelLoader) SupportsModel(path string) bool {
	return hasONNXModel(path)
}

func (l *gomlxModelLoader) Backend() BackendType {
	return BackendGoMLX
}

// gomlxModel implements Model for an ONNX graph executed by GoMLX.
// Executions are serialized: the variable context is shared.
type gomlxModel struct {
	path       string
	model      *onnx.Model
	ctx        *mlctx.Context
	engine     backends.Backend
	inputNames []string

	mu sync.Mutex
}

func (m *gomlxModel) Forward(ctx context.Context, inputs *ModelInputs) (*ModelOutput, error) {
	if err := inputs.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batchSize := len(inputs.InputIDs)
	seqLen := len(inputs.InputIDs[0])

	args := make([]any, len(m.inputNames))
	for i, name := range m.inputNames {
		var rows [][]int32
		switch name {
		case "input_ids":
			rows = inputs.InputIDs
		case "attention_mask":
			rows = inputs.AttentionMask
		case "token_type_ids":
			rows = inputs.TokenTypeIDs // nil means all zeros
		}
		args[i] = int64Tensor(rows, batchSize, seqLen)
	}

	graphFn := func(mlCtx *mlctx.Context, nodes []*graph.Node) []*graph.Node {
		inputMap := make(map[string]*graph.Node, len(nodes))
		for i, name := range m.inputNames {
			inputMap[name] = nodes[i]
		}
		return m.model.CallGraph(mlCtx.Reuse(), nodes[0].Graph(), inputMap)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.model == nil {
		return nil, fmt.Errorf("GoMLX model is closed")
	}
	results, err := mlctx.ExecOnceN(m.engine, m.ctx, graphFn, args...)
	if err != nil {
		return nil, fmt.Errorf("running GoMLX inference: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no output from ONNX model")
	}
	return gomlxOutput(results[0], batchSize)
}

// int64Tensor flattens rows into a [batch, seq] int64 tensor, the dtype
// BERT exports declare for their inputs. Missing rows are zeros.
func int64Tensor(rows [][]int32, batchSize, seqLen int) *tensors.Tensor {
	flat := make([]int64, batchSize*seqLen)
	for i, row := range rows {
		for j, v := range row {
			flat[i*seqLen+j] = int64(v)
		}
	}
	return tensors.FromFlatDataAndDimensions(flat, batchSize, seqLen)
}

// gomlxOutput converts the first graph output to a ModelOutput:
// [batch, seq, hidden] for encoder exports, [batch, num_labels] for
// full classifier exports.
func gomlxOutput(output *tensors.Tensor, batchSize int) (*ModelOutput, error) {
	dims := output.Shape().Dimensions
	switch len(dims) {
	case 3:
		data, ok := output.Value().([][][]float32)
		if !ok || len(data) != batchSize {
			return nil, fmt.Errorf("unexpected hidden state tensor %s", output.Shape())
		}
		return &ModelOutput{LastHiddenState: data}, nil

	case 2:
		data, ok := output.Value().([][]float32)
		if !ok || len(data) != batchSize {
			return nil, fmt.Errorf("unexpected logits tensor %s", output.Shape())
		}
		return &ModelOutput{Logits: data}, nil

	default:
		return nil, fmt.Errorf("unexpected output shape: %v (expected 2D or 3D)", dims)
	}
}

func (m *gomlxModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = nil
	m.ctx = nil
	return nil
}

func (m *gomlxModel) Name() string {
	return m.path
}

func (m *gomlxModel) Backend() BackendType {
	return BackendGoMLX
}
