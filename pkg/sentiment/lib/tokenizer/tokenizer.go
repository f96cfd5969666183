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

// Package tokenizer turns raw text into fixed-length BERT model inputs.
package tokenizer

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"github.com/sugarme/tokenizer/util"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxLength matches the maximum position count of bert-base models.
const DefaultMaxLength = 512

const (
	padToken  = "[PAD]"
	unkToken  = "[UNK]"
	clsToken  = "[CLS]"
	sepToken  = "[SEP]"
	maskToken = "[MASK]"
)

var (
	// ErrEmptyVocab is returned when a vocabulary file contains no tokens.
	ErrEmptyVocab = errors.New("tokenizer: empty vocabulary")
	// ErrMissingSpecialToken is returned when the vocabulary lacks [CLS], [SEP] or [UNK].
	ErrMissingSpecialToken = errors.New("tokenizer: special token missing from vocabulary")
)

// Tokenizer converts text into model inputs of a fixed length.
type Tokenizer interface {
	// Encode returns ids, attention mask and token type ids, each exactly MaxLength long.
	Encode(text string) (*Encoding, error)

	// MaxLength returns the fixed sequence length produced by Encode.
	MaxLength() int
}

// Encoding is the fixed-length tokenization of one text.
type Encoding struct {
	InputIDs      []int32
	AttentionMask []int32
	TokenTypeIDs  []int32

	// Tokens holds the real (unpadded) tokens, special tokens included.
	Tokens []string

	// Truncated is true when word pieces were dropped to fit MaxLength.
	Truncated bool
}

// Len returns the number of real tokens, [CLS] and [SEP] included.
func (e *Encoding) Len() int {
	return len(e.Tokens)
}

type options struct {
	maxLength int
	lowercase bool
}

// Option configures a BertWordPieceTokenizer.
type Option func(*options)

// WithMaxLength sets the fixed output length. Values below 2 are raised to 2
// so that [CLS] and [SEP] always fit.
func WithMaxLength(n int) Option {
	return func(o *options) {
		o.maxLength = n
	}
}

// WithLowercase toggles lower-casing and accent stripping (uncased models).
func WithLowercase(lowercase bool) Option {
	return func(o *options) {
		o.lowercase = lowercase
	}
}

// BertWordPieceTokenizer uses BERT's WordPiece tokenization with
// [CLS]/[SEP] framing, truncation and right padding.
type BertWordPieceTokenizer struct {
	tokenizer *tokenizer.Tokenizer
	maxLength int

	padID int32
	clsID int32
	sepID int32
}

var _ Tokenizer = (*BertWordPieceTokenizer)(nil)

// NewBertWordPieceTokenizerFromFile creates a BERT tokenizer from a vocab.txt file.
func NewBertWordPieceTokenizerFromFile(vocabPath string, opts ...Option) (*BertWordPieceTokenizer, error) {
	data, err := os.ReadFile(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("reading vocab %s: %w", vocabPath, err)
	}
	return NewBertWordPieceTokenizer(string(data), opts...)
}

// NewBertWordPieceTokenizer creates a BERT tokenizer from vocabulary text
// (one token per line, ID is the line number).
func NewBertWordPieceTokenizer(vocabText string, opts ...Option) (*BertWordPieceTokenizer, error) {
	o := options{maxLength: DefaultMaxLength, lowercase: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxLength < 2 {
		o.maxLength = 2
	}

	vocab := make(model.Vocab)
	for i, line := range strings.Split(vocabText, "\n") {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			vocab[line] = i
		}
	}
	if len(vocab) == 0 {
		return nil, ErrEmptyVocab
	}
	if _, ok := vocab[unkToken]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingSpecialToken, unkToken)
	}

	wp, err := wordpiece.New(vocab, util.NewParams(map[string]any{
		"unk_token": unkToken,
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create wordpiece model: %w", err)
	}

	tk := tokenizer.NewTokenizer(wp)
	tk.WithNormalizer(normalizer.NewBertNormalizer(true, o.lowercase, true, o.lowercase))
	tk.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())

	sepID, ok := tk.TokenToId(sepToken)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingSpecialToken, sepToken)
	}
	clsID, ok := tk.TokenToId(clsToken)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingSpecialToken, clsToken)
	}
	padID, ok := tk.TokenToId(padToken)
	if !ok {
		padID = 0
	}

	specials := []tokenizer.AddedToken{
		tokenizer.NewAddedToken(sepToken, true),
		tokenizer.NewAddedToken(clsToken, true),
	}
	if _, ok := vocab[maskToken]; ok {
		specials = append(specials, tokenizer.NewAddedToken(maskToken, true))
	}
	tk.AddSpecialTokens(specials)

	return &BertWordPieceTokenizer{
		tokenizer: tk,
		maxLength: o.maxLength,
		padID:     int32(padID),
		clsID:     int32(clsID),
		sepID:     int32(sepID),
	}, nil
}

// MaxLength returns the fixed sequence length.
func (t *BertWordPieceTokenizer) MaxLength() int {
	return t.maxLength
}

// Encode tokenizes text into exactly MaxLength ids. Text that does not fit is
// truncated, never rejected. The underlying library has been seen to panic on
// some inputs (a bounds bug in BertNormalizer.TransformRange); those panics
// are returned as errors.
func (t *BertWordPieceTokenizer) Encode(text string) (enc *Encoding, err error) {
	ids, tokens, err := t.wordPieces(text)
	if err != nil {
		return nil, err
	}

	// Room for [CLS] and [SEP].
	budget := t.maxLength - 2
	truncated := false
	if len(ids) > budget {
		ids = ids[:budget]
		tokens = tokens[:budget]
		truncated = true
	}

	enc = &Encoding{
		InputIDs:      make([]int32, t.maxLength),
		AttentionMask: make([]int32, t.maxLength),
		TokenTypeIDs:  make([]int32, t.maxLength),
		Tokens:        make([]string, 0, len(tokens)+2),
		Truncated:     truncated,
	}

	pos := 0
	put := func(id int32, tok string) {
		enc.InputIDs[pos] = id
		enc.AttentionMask[pos] = 1
		enc.Tokens = append(enc.Tokens, tok)
		pos++
	}
	put(t.clsID, clsToken)
	for i, id := range ids {
		put(id, tokens[i])
	}
	put(t.sepID, sepToken)

	for ; pos < t.maxLength; pos++ {
		enc.InputIDs[pos] = t.padID
	}
	return enc, nil
}

// wordPieces returns the word-piece ids of text without special tokens.
func (t *BertWordPieceTokenizer) wordPieces(text string) (ids []int32, tokens []string, err error) {
	text = norm.NFC.String(text)
	if strings.TrimSpace(text) == "" {
		return nil, nil, nil
	}

	defer func() {
		if r := recover(); r != nil {
			ids, tokens = nil, nil
			err = fmt.Errorf("tokenizer panic: %v", r)
		}
	}()

	out, err := t.tokenizer.EncodeSingle(text, false)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding text: %w", err)
	}

	ids = make([]int32, len(out.Ids))
	for i, id := range out.Ids {
		ids[i] = int32(id)
	}
	return ids, out.Tokens, nil
}
