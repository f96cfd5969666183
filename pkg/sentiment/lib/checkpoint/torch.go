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
	"fmt"
	"slices"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
)

// StateDictKeys are the wrapper keys searched, in order, when a checkpoint
// stores the weights next to training metadata (epoch, optimizer, ...).
var StateDictKeys = []string{"model_state_dict", "state_dict", "model"}

// LoadTorch reads a torch.save file and returns its state dict. Checkpoints
// that wrap the weights in a dict with training metadata are unwrapped using
// StateDictKeys. Non-tensor entries are skipped.
func LoadTorch(path string) (StateDict, error) {
	root, err := pytorch.Load(path)
	if err != nil {
		if _, ferr := DetectFormat(path); ferr != nil {
			return nil, ferr
		}
		return nil, fmt.Errorf("reading torch checkpoint %s: %w", path, err)
	}

	entries, ok := dictEntries(root)
	if !ok {
		return nil, fmt.Errorf("%w in %s: top-level object is %T", ErrNoTensors, path, root)
	}
	entries = unwrapStateDict(entries)

	sd := make(StateDict, len(entries))
	for _, e := range entries {
		name, ok := e.key.(string)
		if !ok {
			continue
		}
		pt, ok := e.value.(*pytorch.Tensor)
		if !ok {
			continue
		}
		t, err := fromTorch(pt)
		if err != nil {
			return nil, fmt.Errorf("tensor %s in %s: %w", name, path, err)
		}
		sd[name] = t
	}
	if len(sd) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoTensors, path)
	}
	return sd, nil
}

type dictEntry struct {
	key   any
	value any
}

// dictEntries lists the items of an unpickled dict or OrderedDict in order.
func dictEntries(v any) ([]dictEntry, bool) {
	switch d := v.(type) {
	case *types.OrderedDict:
		out := make([]dictEntry, 0, d.Len())
		for el := d.List.Front(); el != nil; el = el.Next() {
			kv := el.Value.(*types.OrderedDictEntry)
			out = append(out, dictEntry{key: kv.Key, value: kv.Value})
		}
		return out, true
	case *types.Dict:
		out := make([]dictEntry, 0, d.Len())
		for _, kv := range *d {
			out = append(out, dictEntry{key: kv.Key, value: kv.Value})
		}
		return out, true
	default:
		return nil, false
	}
}

func unwrapStateDict(entries []dictEntry) []dictEntry {
	for _, key := range StateDictKeys {
		for _, e := range entries {
			if e.key != key {
				continue
			}
			if inner, ok := dictEntries(e.value); ok {
				return inner
			}
		}
	}
	return entries
}

// fromTorch materializes a (possibly strided) view of a torch storage.
func fromTorch(pt *pytorch.Tensor) (*Tensor, error) {
	data, err := storageData(pt.Source)
	if err != nil {
		return nil, err
	}
	shape := slices.Clone(pt.Size)
	stride := pt.Stride
	offset := pt.StorageOffset
	if len(shape) != len(stride) {
		return nil, fmt.Errorf("size %v and stride %v differ in rank", shape, stride)
	}

	n := numElements(shape)
	if n == 0 {
		return &Tensor{Shape: shape, Data: []float32{}}, nil
	}

	// Highest flat index touched by this view.
	last := offset
	for i, d := range shape {
		last += (d - 1) * stride[i]
	}
	if offset < 0 || last >= len(data) {
		return nil, fmt.Errorf("view %v/%v at offset %d exceeds storage of %d elements",
			shape, stride, offset, len(data))
	}

	if isContiguous(shape, stride) {
		return &Tensor{Shape: shape, Data: data[offset : offset+n]}, nil
	}

	out := make([]float32, n)
	idx := make([]int, len(shape))
	for flat := range n {
		src := offset
		for i, v := range idx {
			src += v * stride[i]
		}
		out[flat] = data[src]
		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return &Tensor{Shape: shape, Data: out}, nil
}

func isContiguous(shape, stride []int) bool {
	expect := 1
	for i := len(shape) - 1; i >= 0; i-- {
		if shape[i] != 1 && stride[i] != expect {
			return false
		}
		expect *= shape[i]
	}
	return true
}

// storageData returns the storage contents as float32. Float storages are
// shared, the rest are converted.
func storageData(s pytorch.StorageInterface) ([]float32, error) {
	switch s := s.(type) {
	case *pytorch.FloatStorage:
		return s.Data, nil
	case *pytorch.HalfStorage:
		return s.Data, nil
	case *pytorch.DoubleStorage:
		return toFloat32(s.Data), nil
	case *pytorch.LongStorage:
		return toFloat32(s.Data), nil
	case *pytorch.IntStorage:
		return toFloat32(s.Data), nil
	case *pytorch.ShortStorage:
		return toFloat32(s.Data), nil
	case *pytorch.CharStorage:
		return toFloat32(s.Data), nil
	case *pytorch.ByteStorage:
		return toFloat32(s.Data), nil
	case *pytorch.BoolStorage:
		out := make([]float32, len(s.Data))
		for i, b := range s.Data {
			if b {
				out[i] = 1
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: storage %T", ErrUnsupportedFormat, s)
	}
}

func toFloat32[T float64 | int64 | int32 | int16 | int8 | uint8](in []T) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
