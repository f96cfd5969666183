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

package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/bert"
	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/checkpoint"
	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/classification"
)

// ConvertOptions configures ConvertCheckpoint.
type ConvertOptions struct {
	// Output defaults to the source path with a .safetensors extension.
	Output string

	// ExportHead also writes the classification head alone next to Output,
	// for serving an ONNX-exported encoder.
	ExportHead bool
}

// ConvertResult describes the files written by ConvertCheckpoint.
type ConvertResult struct {
	Output     string
	HeadOutput string
	Tensors    int
	Parameters int
}

// ConvertCheckpoint rewrites a checkpoint as F32 safetensors.
func ConvertCheckpoint(src string, opts ConvertOptions) (*ConvertResult, error) {
	out := opts.Output
	if out == "" {
		out = strings.TrimSuffix(src, filepath.Ext(src)) + ".safetensors"
	}
	if filepath.Clean(out) == filepath.Clean(src) {
		return nil, fmt.Errorf("output %s would overwrite the source checkpoint", out)
	}

	sd, err := checkpoint.Load(src)
	if err != nil {
		return nil, err
	}
	// Refuse files that would not load as a classifier afterwards.
	if _, err := bert.InferConfig(bert.EncoderWeights(sd)); err != nil {
		return nil, fmt.Errorf("%s is not a BERT checkpoint: %w", src, err)
	}

	metadata := map[string]string{
		"format": "pt",
		"source": filepath.Base(src),
	}
	if err := checkpoint.SaveSafetensors(out, sd, metadata); err != nil {
		return nil, fmt.Errorf("writing %s: %w", out, err)
	}
	result := &ConvertResult{
		Output:     out,
		Tensors:    len(sd),
		Parameters: sd.NumParameters(),
	}

	if opts.ExportHead {
		head := make(checkpoint.StateDict)
		for name, t := range sd {
			if strings.HasPrefix(name, classification.HeadPrefix) {
				head[name] = t
			}
		}
		if _, err := classification.NewHead(head.WithPrefix(classification.HeadPrefix), -1); err != nil {
			return nil, fmt.Errorf("exporting head: %w", err)
		}
		result.HeadOutput = filepath.Join(filepath.Dir(out), classification.HeadFilename)
		if err := checkpoint.SaveSafetensors(result.HeadOutput, head, metadata); err != nil {
			return nil, fmt.Errorf("writing %s: %w", result.HeadOutput, err)
		}
	}
	return result, nil
}

// PrintConvertResult prints a summary of a conversion.
func PrintConvertResult(r *ConvertResult) {
	fmt.Printf("Tensors:    %d\n", r.Tensors)
	fmt.Printf("Parameters: %d\n", r.Parameters)
	fmt.Printf("\n✓ Wrote %s\n", r.Output)
	if r.HeadOutput != "" {
		fmt.Printf("✓ Wrote %s\n", r.HeadOutput)
	}
}
