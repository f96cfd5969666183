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

package checkpoint

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

// Pickle opcodes used by torch.save.
const (
	opMark       = '('
	opStop       = '.'
	opBinInt     = 'J'
	opBinInt1    = 'K'
	opBinPersID  = 'Q'
	opReduce     = 'R'
	opBinUnicode = 'X'
	opGlobal     = 'c'
	opEmptyDict  = '}'
	opSetItem    = 's'
	opTuple      = 't'
	opEmptyTuple = ')'
	opProto      = 0x80
	opNewFalse   = 0x89
)

// pickleBuilder emits the subset of protocol 2 that torch.save produces.
type pickleBuilder struct {
	bytes.Buffer
}

func newPickle() *pickleBuilder {
	p := &pickleBuilder{}
	return p.op(opProto, 2)
}

func (p *pickleBuilder) op(ops ...byte) *pickleBuilder {
	p.Write(ops)
	return p
}

func (p *pickleBuilder) str(s string) *pickleBuilder {
	p.WriteByte(opBinUnicode)
	_ = binary.Write(&p.Buffer, binary.LittleEndian, uint32(len(s)))
	p.WriteString(s)
	return p
}

func (p *pickleBuilder) global(module, name string) *pickleBuilder {
	p.WriteByte(opGlobal)
	p.WriteString(module + "\n" + name + "\n")
	return p
}

func (p *pickleBuilder) integer(n int) *pickleBuilder {
	if n >= 0 && n < 256 {
		return p.op(opBinInt1, byte(n))
	}
	p.WriteByte(opBinInt)
	_ = binary.Write(&p.Buffer, binary.LittleEndian, int32(n))
	return p
}

func (p *pickleBuilder) ints(ns ...int) *pickleBuilder {
	p.op(opMark)
	for _, n := range ns {
		p.integer(n)
	}
	return p.op(opTuple)
}

func (p *pickleBuilder) orderedDict() *pickleBuilder {
	return p.global("collections", "OrderedDict").op(opEmptyTuple, opReduce)
}

// tensor pushes _rebuild_tensor_v2(storage, offset, size, stride, False, OrderedDict()).
func (p *pickleBuilder) tensor(storageType, key string, numel, offset int, size, stride []int) *pickleBuilder {
	p.global("torch._utils", "_rebuild_tensor_v2").op(opMark)
	p.op(opMark).str("storage").global("torch", storageType).str(key).str("cpu").integer(numel).op(opTuple, opBinPersID)
	p.integer(offset).ints(size...).ints(stride...).op(opNewFalse).orderedDict()
	return p.op(opTuple, opReduce)
}

func float32Bytes(vs ...float32) []byte {
	b := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func writeTorchArchive(t *testing.T, pkl []byte, storages map[string][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.pt")
	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	put := func(name string, data []byte) {
		w, err := zw.Create("model/" + name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	put("data.pkl", pkl)
	put("byteorder", []byte("little"))
	for key, data := range storages {
		put("data/"+key, data)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestLoadTorch_TrainingCheckpoint(t *testing.T) {
	p := newPickle().op(opEmptyDict)
	p.str("epoch").integer(3).op(opSetItem)
	p.str("model_state_dict").orderedDict()
	p.str("bert.weight").tensor("FloatStorage", "0", 8, 0, []int{2, 3}, []int{3, 1}).op(opSetItem)
	p.str("bert.bias").tensor("FloatStorage", "0", 8, 6, []int{2}, []int{1}).op(opSetItem)
	p.str("classifier.transposed").tensor("FloatStorage", "0", 8, 0, []int{3, 2}, []int{1, 3}).op(opSetItem)
	p.str("classifier.count").tensor("LongStorage", "1", 1, 0, nil, nil).op(opSetItem)
	p.op(opSetItem, opStop)

	long := make([]byte, 8)
	binary.LittleEndian.PutUint64(long, 42)
	path := writeTorchArchive(t, p.Bytes(), map[string][]byte{
		"0": float32Bytes(1, 2, 3, 4, 5, 6, 7, 8),
		"1": long,
	})

	format, err := DetectFormat(path)
	require.NoError(t, err)
	assert.Equal(t, FormatTorch, format)

	sd, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"bert.bias", "bert.weight", "classifier.count", "classifier.transposed"}, sd.Names())

	w, err := sd.Expect("bert.weight", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, w.Data)

	b, err := sd.Expect("bert.bias", 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{7, 8}, b.Data)

	tr, err := sd.Expect("classifier.transposed", 3, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, tr.Data)

	count, err := sd.Get("classifier.count")
	require.NoError(t, err)
	assert.Empty(t, count.Shape)
	assert.Equal(t, []float32{42}, count.Data)

	assert.Equal(t, 6+2+6+1, sd.NumParameters())
}

func TestLoadTorch_BareStateDictHalf(t *testing.T) {
	p := newPickle().orderedDict()
	p.str("half").tensor("HalfStorage", "0", 2, 0, []int{2}, []int{1}).op(opSetItem)
	p.str("mask").tensor("BoolStorage", "1", 2, 0, []int{2}, []int{1}).op(opSetItem)
	p.op(opStop)

	half := make([]byte, 4)
	binary.LittleEndian.PutUint16(half[0:], float16.Fromfloat32(1.5).Bits())
	binary.LittleEndian.PutUint16(half[2:], float16.Fromfloat32(-0.25).Bits())

	path := writeTorchArchive(t, p.Bytes(), map[string][]byte{"0": half, "1": {1, 0}})

	sd, err := LoadTorch(path)
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, -0.25}, sd["half"].Data)
	assert.Equal(t, []float32{1, 0}, sd["mask"].Data)
}

func TestLoadTorch_NoTensors(t *testing.T) {
	p := newPickle().op(opEmptyDict).str("epoch").integer(1).op(opSetItem, opStop)
	path := writeTorchArchive(t, p.Bytes(), nil)

	_, err := LoadTorch(path)
	require.ErrorIs(t, err, ErrNoTensors)
}

func TestLoadTorch_ViewOutsideStorage(t *testing.T) {
	p := newPickle().orderedDict()
	p.str("w").tensor("FloatStorage", "0", 2, 1, []int{4}, []int{1}).op(opSetItem, opStop)
	path := writeTorchArchive(t, p.Bytes(), map[string][]byte{"0": float32Bytes(1, 2)})

	_, err := LoadTorch(path)
	require.Error(t, err)
}

func TestLoad_LegacyAndUnknownFormats(t *testing.T) {
	dir := t.TempDir()

	legacy := filepath.Join(dir, "legacy.pt")
	require.NoError(t, os.WriteFile(legacy, []byte{0x80, 0x02, 0x8a, 0x0a, 0x6c, 0xfc, 0x9c}, 0644))
	format, err := DetectFormat(legacy)
	require.NoError(t, err)
	assert.Equal(t, FormatTorch, format)
	// Truncated after the magic number.
	_, err = Load(legacy)
	require.Error(t, err)

	text := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(text, []byte("hello world"), 0644))
	_, err = Load(text)
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load(filepath.Join(dir, "missing.pt"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSafetensors_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "head", "classifier_head.safetensors")
	sd := StateDict{
		"classifier.0.weight": {Shape: []int{2, 2}, Data: []float32{1, -2, 3.5, 0}},
		"classifier.0.bias":   {Shape: []int{2}, Data: []float32{0.25, -0.5}},
	}
	require.NoError(t, SaveSafetensors(path, sd, map[string]string{"format": "pt"}))

	format, err := DetectFormat(path)
	require.NoError(t, err)
	assert.Equal(t, FormatSafetensors, format)

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, sd, got)
}

func TestSaveSafetensors_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.safetensors")

	require.ErrorIs(t, SaveSafetensors(path, StateDict{}, nil), ErrNoTensors)

	bad := StateDict{"w": {Shape: []int{3}, Data: []float32{1}}}
	require.ErrorIs(t, SaveSafetensors(path, bad, nil), ErrShapeMismatch)
}

func TestLoadSafetensors_CorruptOffsets(t *testing.T) {
	header := []byte(`{"w":{"dtype":"F32","shape":[4],"data_offsets":[0,16]}}`)
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(len(header))))
	buf.Write(header)
	buf.Write(float32Bytes(1, 2))

	path := filepath.Join(t.TempDir(), "short.safetensors")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	_, err := LoadSafetensors(path)
	require.Error(t, err)
}

func TestStateDict_Lookups(t *testing.T) {
	sd := StateDict{
		"bert.embeddings.word_embeddings.weight": NewTensor(4, 2),
		"classifier.0.bias":                      NewTensor(3),
	}

	_, err := sd.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = sd.Expect("classifier.0.bias", 2)
	require.ErrorIs(t, err, ErrShapeMismatch)

	bert := sd.WithPrefix("bert.")
	assert.Equal(t, []string{"embeddings.word_embeddings.weight"}, bert.Names())
	assert.Same(t, sd["bert.embeddings.word_embeddings.weight"], bert["embeddings.word_embeddings.weight"])

	assert.True(t, sd.HasPrefix("classifier."))
	assert.False(t, sd.HasPrefix("pooler."))

	w := sd["bert.embeddings.word_embeddings.weight"]
	assert.Equal(t, 4, w.Rows())
	assert.Equal(t, 2, w.Cols())
	assert.Equal(t, "Tensor[4 2]", w.String())
}
