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
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/checkpoint"
)

// Linear is a torch.nn.Linear: y = x W^T + b with W stored [out, in].
type Linear struct {
	In, Out int
	weight  []float32
	bias    []float32
}

// NewLinear reads "<prefix>.weight" and "<prefix>.bias" from sd.
// A negative in or out accepts whatever the checkpoint holds on that axis.
func NewLinear(sd checkpoint.StateDict, prefix string, in, out int) (*Linear, error) {
	w, err := sd.Get(prefix + ".weight")
	if err != nil {
		return nil, err
	}
	if len(w.Shape) != 2 {
		return nil, fmt.Errorf("%w: %s.weight has shape %v, want 2-D", checkpoint.ErrShapeMismatch, prefix, w.Shape)
	}
	if in < 0 {
		in = w.Shape[1]
	}
	if out < 0 {
		out = w.Shape[0]
	}
	if _, err := sd.Expect(prefix+".weight", out, in); err != nil {
		return nil, err
	}
	b, err := sd.Expect(prefix+".bias", out)
	if err != nil {
		return nil, err
	}
	return &Linear{In: in, Out: out, weight: w.Data, bias: b.Data}, nil
}

// Forward applies the layer to rows row-major inputs of width In.
func (l *Linear) Forward(x []float32, rows int) []float32 {
	y := make([]float32, rows*l.Out)
	for r := range rows {
		copy(y[r*l.Out:(r+1)*l.Out], l.bias)
	}
	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		blas32.General{Rows: rows, Cols: l.In, Stride: l.In, Data: x},
		blas32.General{Rows: l.Out, Cols: l.In, Stride: l.In, Data: l.weight},
		1,
		blas32.General{Rows: rows, Cols: l.Out, Stride: l.Out, Data: y},
	)
	return y
}

// layerNorm normalizes each row over its last dimension.
type layerNorm struct {
	gamma []float32
	beta  []float32
	eps   float64
}

// newLayerNorm accepts both "weight/bias" and the older "gamma/beta" names.
func newLayerNorm(sd checkpoint.StateDict, prefix string, dim int, eps float64) (*layerNorm, error) {
	gamma, err := sd.Expect(prefix+".weight", dim)
	if err != nil {
		var gerr error
		if gamma, gerr = sd.Expect(prefix+".gamma", dim); gerr != nil {
			return nil, err
		}
	}
	beta, err := sd.Expect(prefix+".bias", dim)
	if err != nil {
		var berr error
		if beta, berr = sd.Expect(prefix+".beta", dim); berr != nil {
			return nil, err
		}
	}
	return &layerNorm{gamma: gamma.Data, beta: beta.Data, eps: eps}, nil
}

func (ln *layerNorm) apply(x []float32, rows int) {
	dim := len(ln.gamma)
	for r := range rows {
		row := x[r*dim : (r+1)*dim]
		var mean float64
		for _, v := range row {
			mean += float64(v)
		}
		mean /= float64(dim)
		var variance float64
		for _, v := range row {
			d := float64(v) - mean
			variance += d * d
		}
		variance /= float64(dim)
		inv := 1 / math.Sqrt(variance+ln.eps)
		for i, v := range row {
			row[i] = float32((float64(v)-mean)*inv)*ln.gamma[i] + ln.beta[i]
		}
	}
}

func activation(name string) (func(float32) float32, error) {
	switch name {
	case "gelu", "":
		return gelu, nil
	case "gelu_new", "gelu_pytorch_tanh":
		return geluTanh, nil
	case "relu":
		return relu, nil
	default:
		return nil, fmt.Errorf("unsupported hidden_act %q", name)
	}
}

func gelu(x float32) float32 {
	v := float64(x)
	return float32(0.5 * v * (1 + math.Erf(v/math.Sqrt2)))
}

func geluTanh(x float32) float32 {
	v := float64(x)
	return float32(0.5 * v * (1 + math.Tanh(math.Sqrt(2/math.Pi)*(v+0.044715*v*v*v))))
}

func relu(x float32) float32 {
	return max(x, 0)
}

// softmaxInPlace turns each row of scores into probabilities.
func softmaxInPlace(scores []float32, rows, cols int) {
	for r := range rows {
		row := scores[r*cols : (r+1)*cols]
		m := row[0]
		for _, v := range row[1:] {
			m = max(m, v)
		}
		var sum float64
		for i, v := range row {
			e := math.Exp(float64(v - m))
			row[i] = float32(e)
			sum += e
		}
		for i := range row {
			row[i] = float32(float64(row[i]) / sum)
		}
	}
}
