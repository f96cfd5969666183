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

package modelregistry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// VocabSource names where a vocabulary may come from, in lookup order.
type VocabSource struct {
	// TokenizerPath is an explicit vocab.txt, or a directory holding one.
	TokenizerPath string
	// ModelPath is the checkpoint file or model directory.
	ModelPath string
	// Repo is downloaded from the hub when nothing local is found.
	Repo string
}

// ResolveVocab returns a local vocab.txt path for src. An explicit
// TokenizerPath must exist; otherwise the file beside the model is used, and
// only then the hub.
func ResolveVocab(ctx context.Context, src VocabSource, client *HuggingFaceClient, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if src.TokenizerPath != "" {
		path := src.TokenizerPath
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			path = filepath.Join(path, VocabFilename)
		}
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("tokenizer path: %w", err)
		}
		return path, nil
	}

	if src.ModelPath != "" {
		dir := src.ModelPath
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			dir = filepath.Dir(dir)
		}
		path := filepath.Join(dir, VocabFilename)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}

	repo := src.Repo
	if repo == "" {
		repo = DefaultRepo
	}
	if client == nil {
		client = NewHuggingFaceClient()
	}
	logger.Info("No local vocabulary, fetching from HuggingFace Hub", zap.String("repo", repo))
	return client.Fetch(ctx, repo, VocabFilename)
}
