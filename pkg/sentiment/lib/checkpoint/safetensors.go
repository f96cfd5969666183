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
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

const (
	metadataKey = "__metadata__"

	// maxHeaderSize guards against reading a garbage length as a header.
	maxHeaderSize = 100 << 20
)

type safetensorsEntry struct {
	DType       DType    `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// LoadSafetensors reads a .safetensors file into a state dict.
func LoadSafetensors(path string) (StateDict, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var headerLen uint64
	if err := binary.Read(f, binary.LittleEndian, &headerLen); err != nil {
		return nil, fmt.Errorf("reading safetensors header length of %s: %w", path, err)
	}
	if headerLen == 0 || headerLen > maxHeaderSize {
		return nil, fmt.Errorf("%w: safetensors header of %d bytes in %s", ErrUnsupportedFormat, headerLen, path)
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, fmt.Errorf("reading safetensors header of %s: %w", path, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(header, &raw); err != nil {
		return nil, fmt.Errorf("%w: parsing safetensors header of %s: %v", ErrUnsupportedFormat, path, err)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading safetensors data of %s: %w", path, err)
	}

	sd := make(StateDict, len(raw))
	for name, msg := range raw {
		if name == metadataKey {
			continue
		}
		var e safetensorsEntry
		if err := json.Unmarshal(msg, &e); err != nil {
			return nil, fmt.Errorf("parsing header entry %s: %w", name, err)
		}
		begin, end := e.DataOffsets[0], e.DataOffsets[1]
		if begin < 0 || end < begin || end > int64(len(data)) {
			return nil, fmt.Errorf("tensor %s: data offsets [%d, %d) outside %d bytes", name, begin, end, len(data))
		}
		n := numElements(e.Shape)
		if int64(n*e.DType.Size()) != end-begin {
			return nil, fmt.Errorf("tensor %s: %d bytes do not hold %v of %s", name, end-begin, e.Shape, e.DType)
		}
		values, err := decodeElements(data[begin:end], e.DType, n)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		shape := e.Shape
		if shape == nil {
			shape = []int{}
		}
		sd[name] = &Tensor{Shape: shape, Data: values}
	}

	if len(sd) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoTensors, path)
	}
	return sd, nil
}

// SaveSafetensors writes sd as F32 safetensors, tensors ordered by name.
// metadata may be nil.
func SaveSafetensors(path string, sd StateDict, metadata map[string]string) error {
	if len(sd) == 0 {
		return ErrNoTensors
	}

	header := make(map[string]any, len(sd)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}
	names := sd.Names()
	var offset int64
	for _, name := range names {
		t := sd[name]
		if len(t.Data) != t.NumElements() {
			return fmt.Errorf("%w: %s has %d values for shape %v", ErrShapeMismatch, name, len(t.Data), t.Shape)
		}
		size := int64(len(t.Data) * 4)
		shape := t.Shape
		if shape == nil {
			shape = []int{}
		}
		header[name] = safetensorsEntry{
			DType:       DTypeF32,
			Shape:       shape,
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	hdr, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encoding safetensors header: %w", err)
	}
	// Pad with spaces so the data section starts 8-byte aligned.
	for len(hdr)%8 != 0 {
		hdr = append(hdr, ' ')
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)

	if err := binary.Write(w, binary.LittleEndian, uint64(len(hdr))); err != nil {
		f.Close()
		return err
	}
	if _, err := w.Write(hdr); err != nil {
		f.Close()
		return err
	}
	buf := make([]byte, 4)
	for _, name := range names {
		for _, v := range sd[name].Data {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			if _, err := w.Write(buf); err != nil {
				f.Close()
				return err
			}
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
