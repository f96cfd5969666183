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

// Package bert is a CPU implementation of the BERT encoder forward pass over
// weights from a PyTorch or safetensors checkpoint.
package bert

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/checkpoint"
)

// Prefix is the name prefix of encoder weights inside a BertForSequenceClassification-style checkpoint.
const Prefix = "bert."

// ErrInvalidInput is returned for token ids, types or lengths the encoder cannot embed.
var ErrInvalidInput = errors.New("bert: invalid input")

// maskedScore is added to attention scores of padding positions.
const maskedScore = -1e9

type attention struct {
	query, key, value, output *Linear
	norm                      *layerNorm
}

type layer struct {
	attention    attention
	intermediate *Linear
	output       *Linear
	norm         *layerNorm
}

// Encoder runs BERT over one sequence at a time. It is immutable after New
// and safe for concurrent use.
type Encoder struct {
	cfg Config
	act func(float32) float32

	wordEmb []float32
	posEmb  []float32
	typeEmb []float32
	embNorm *layerNorm

	layers []layer
}

// EncoderWeights returns the encoder part of sd with the "bert." prefix
// removed, or sd itself for a bare BertModel checkpoint.
func EncoderWeights(sd checkpoint.StateDict) checkpoint.StateDict {
	if sd.HasPrefix(Prefix + "embeddings.") {
		return sd.WithPrefix(Prefix)
	}
	return sd
}

// New builds an encoder from unprefixed BertModel weights.
func New(sd checkpoint.StateDict, cfg Config) (*Encoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	act, err := activation(cfg.HiddenAct)
	if err != nil {
		return nil, err
	}

	h := cfg.HiddenSize
	e := &Encoder{cfg: cfg, act: act, layers: make([]layer, cfg.NumHiddenLayers)}

	word, err := sd.Expect("embeddings.word_embeddings.weight", cfg.VocabSize, h)
	if err != nil {
		return nil, err
	}
	pos, err := sd.Expect("embeddings.position_embeddings.weight", cfg.MaxPositionEmbeddings, h)
	if err != nil {
		return nil, err
	}
	typ, err := sd.Expect("embeddings.token_type_embeddings.weight", cfg.TypeVocabSize, h)
	if err != nil {
		return nil, err
	}
	e.wordEmb, e.posEmb, e.typeEmb = word.Data, pos.Data, typ.Data
	if e.embNorm, err = newLayerNorm(sd, "embeddings.LayerNorm", h, cfg.LayerNormEps); err != nil {
		return nil, err
	}

	for i := range e.layers {
		p := fmt.Sprintf("encoder.layer.%d.", i)
		l := &e.layers[i]
		if l.attention.query, err = NewLinear(sd, p+"attention.self.query", h, h); err != nil {
			return nil, err
		}
		if l.attention.key, err = NewLinear(sd, p+"attention.self.key", h, h); err != nil {
			return nil, err
		}
		if l.attention.value, err = NewLinear(sd, p+"attention.self.value", h, h); err != nil {
			return nil, err
		}
		if l.attention.output, err = NewLinear(sd, p+"attention.output.dense", h, h); err != nil {
			return nil, err
		}
		if l.attention.norm, err = newLayerNorm(sd, p+"attention.output.LayerNorm", h, cfg.LayerNormEps); err != nil {
			return nil, err
		}
		if l.intermediate, err = NewLinear(sd, p+"intermediate.dense", h, cfg.IntermediateSize); err != nil {
			return nil, err
		}
		if l.output, err = NewLinear(sd, p+"output.dense", cfg.IntermediateSize, h); err != nil {
			return nil, err
		}
		if l.norm, err = newLayerNorm(sd, p+"output.LayerNorm", h, cfg.LayerNormEps); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Config returns the encoder configuration.
func (e *Encoder) Config() Config {
	return e.cfg
}

// Forward returns the last hidden state, row-major [seq, hidden], where seq
// is the position of the last attended token plus one. Right padding beyond
// it is not computed: no attended token can see it, so the hidden states of
// real tokens are the same as for the full padded sequence.
func (e *Encoder) Forward(ctx context.Context, inputIDs, attentionMask, tokenTypeIDs []int32) ([]float32, int, error) {
	if len(inputIDs) == 0 {
		return nil, 0, fmt.Errorf("%w: empty sequence", ErrInvalidInput)
	}
	if attentionMask != nil && len(attentionMask) != len(inputIDs) {
		return nil, 0, fmt.Errorf("%w: %d ids but %d mask values", ErrInvalidInput, len(inputIDs), len(attentionMask))
	}
	if tokenTypeIDs != nil && len(tokenTypeIDs) != len(inputIDs) {
		return nil, 0, fmt.Errorf("%w: %d ids but %d token types", ErrInvalidInput, len(inputIDs), len(tokenTypeIDs))
	}

	seq := len(inputIDs)
	if attentionMask != nil {
		seq = 0
		for i, m := range attentionMask {
			if m != 0 {
				seq = i + 1
			}
		}
		seq = max(seq, 1)
	}
	if seq > e.cfg.MaxPositionEmbeddings {
		return nil, 0, fmt.Errorf("%w: %d tokens exceed %d positions", ErrInvalidInput, seq, e.cfg.MaxPositionEmbeddings)
	}

	x, err := e.embed(inputIDs[:seq], tokenTypeIDs)
	if err != nil {
		return nil, 0, err
	}

	// Additive mask for the kept positions (interior zeros are still honoured).
	mask := make([]float32, seq)
	if attentionMask != nil {
		for i := range seq {
			if attentionMask[i] == 0 {
				mask[i] = maskedScore
			}
		}
	}

	for i := range e.layers {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		if x, err = e.layers[i].forward(ctx, x, seq, mask, e.cfg.NumAttentionHeads, e.act); err != nil {
			return nil, 0, err
		}
	}
	return x, seq, nil
}

func (e *Encoder) embed(ids, types []int32) ([]float32, error) {
	h := e.cfg.HiddenSize
	x := make([]float32, len(ids)*h)
	for i, id := range ids {
		if id < 0 || int(id) >= e.cfg.VocabSize {
			return nil, fmt.Errorf("%w: token id %d outside vocabulary of %d", ErrInvalidInput, id, e.cfg.VocabSize)
		}
		var tt int32
		if types != nil {
			tt = types[i]
		}
		if tt < 0 || int(tt) >= e.cfg.TypeVocabSize {
			return nil, fmt.Errorf("%w: token type %d outside %d types", ErrInvalidInput, tt, e.cfg.TypeVocabSize)
		}
		row := x[i*h : (i+1)*h]
		w := e.wordEmb[int(id)*h:]
		p := e.posEmb[i*h:]
		t := e.typeEmb[int(tt)*h:]
		for j := range row {
			row[j] = w[j] + p[j] + t[j]
		}
	}
	e.embNorm.apply(x, len(ids))
	return x, nil
}

func (l *layer) forward(ctx context.Context, x []float32, seq int, mask []float32, heads int, act func(float32) float32) ([]float32, error) {
	attn, err := l.attention.forward(ctx, x, seq, mask, heads)
	if err != nil {
		return nil, err
	}

	inter := l.intermediate.Forward(attn, seq)
	for i, v := range inter {
		inter[i] = act(v)
	}
	out := l.output.Forward(inter, seq)
	for i := range out {
		out[i] += attn[i]
	}
	l.norm.apply(out, seq)
	return out, nil
}

func (a *attention) forward(ctx context.Context, x []float32, seq int, mask []float32, heads int) ([]float32, error) {
	h := a.query.Out
	d := h / heads
	scale := float32(1 / math.Sqrt(float64(d)))

	q := a.query.Forward(x, seq)
	k := a.key.Forward(x, seq)
	v := a.value.Forward(x, seq)
	merged := make([]float32, seq*h)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for head := range heads {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			off := head * d
			qh := blas32.General{Rows: seq, Cols: d, Stride: h, Data: q[off:]}
			kh := blas32.General{Rows: seq, Cols: d, Stride: h, Data: k[off:]}
			vh := blas32.General{Rows: seq, Cols: d, Stride: h, Data: v[off:]}

			scores := make([]float32, seq*seq)
			for r := range seq {
				copy(scores[r*seq:(r+1)*seq], mask)
			}
			blas32.Gemm(blas.NoTrans, blas.Trans, scale, qh, kh, 1,
				blas32.General{Rows: seq, Cols: seq, Stride: seq, Data: scores})
			softmaxInPlace(scores, seq, seq)

			// Heads write disjoint column ranges of merged.
			blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
				blas32.General{Rows: seq, Cols: seq, Stride: seq, Data: scores}, vh, 0,
				blas32.General{Rows: seq, Cols: d, Stride: h, Data: merged[off:]})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := a.output.Forward(merged, seq)
	for i := range out {
		out[i] += x[i]
	}
	a.norm.apply(out, seq)
	return out, nil
}
