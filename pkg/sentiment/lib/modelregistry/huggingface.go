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
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gomlx/go-huggingface/hub"
)

// DefaultRepo is the tokenizer the classifier was fine-tuned with.
const DefaultRepo = "bert-base-uncased"

// VocabFilename is the WordPiece vocabulary, one token per line.
const VocabFilename = "vocab.txt"

// TokenizerFiles are pulled in order; only the vocabulary is required.
var TokenizerFiles = []string{VocabFilename, "config.json", "tokenizer_config.json"}

// ProgressHandler is called to report download progress
type ProgressHandler func(downloaded, total int64, filename string)

// HuggingFaceClient pulls tokenizer files from HuggingFace Hub.
// Downloads go through the hub cache, so repeated calls are local.
type HuggingFaceClient struct {
	token           string
	progressHandler ProgressHandler

	// download returns the local cache path of one repository file.
	download func(repoID, token, fileName string) (string, error)
}

// HFClientOption configures the HuggingFace client
type HFClientOption func(*HuggingFaceClient)

// NewHuggingFaceClient creates a new HuggingFace client
func NewHuggingFaceClient(opts ...HFClientOption) *HuggingFaceClient {
	c := &HuggingFaceClient{download: hubDownload}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithHFToken sets the HuggingFace API token for gated models
func WithHFToken(token string) HFClientOption {
	return func(c *HuggingFaceClient) { c.token = token }
}

// WithHFProgressHandler sets the progress handler for downloads
func WithHFProgressHandler(h ProgressHandler) HFClientOption {
	return func(c *HuggingFaceClient) { c.progressHandler = h }
}

func hubDownload(repoID, token, fileName string) (string, error) {
	repo := hub.New(repoID)
	if token != "" {
		repo = repo.WithAuth(token)
	}
	return repo.DownloadFile(fileName)
}

func validateRepoID(repoID string) error {
	if repoID == "" {
		return fmt.Errorf("empty repository id")
	}
	if strings.Count(repoID, "/") > 1 || strings.HasPrefix(repoID, "/") || strings.HasSuffix(repoID, "/") {
		return fmt.Errorf("invalid repository id %q (want name or owner/name)", repoID)
	}
	return nil
}

// Fetch returns the local (cached) path of one file of repoID.
func (c *HuggingFaceClient) Fetch(ctx context.Context, repoID, fileName string) (string, error) {
	if err := validateRepoID(repoID); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := c.download(repoID, c.token, fileName)
	if err != nil {
		return "", fmt.Errorf("downloading %s from %s: %w", fileName, repoID, err)
	}
	return path, nil
}

// PullTokenizer copies the tokenizer files of repoID into destDir and writes
// a manifest there. Optional files that the repository lacks are skipped.
func (c *HuggingFaceClient) PullTokenizer(ctx context.Context, repoID, destDir string) (*Manifest, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("creating directory: %w", err)
	}

	var pulled []string
	for _, fileName := range TokenizerFiles {
		localPath, err := c.Fetch(ctx, repoID, fileName)
		if err != nil {
			if fileName == VocabFilename || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			continue
		}

		destPath := filepath.Join(destDir, fileName)
		if c.progressHandler != nil {
			c.progressHandler(0, 0, fileName)
		}
		if err := copyFile(localPath, destPath); err != nil {
			return nil, fmt.Errorf("copying %s: %w", fileName, err)
		}
		if c.progressHandler != nil {
			if info, err := os.Stat(destPath); err == nil {
				c.progressHandler(info.Size(), info.Size(), fileName)
			}
		}
		pulled = append(pulled, fileName)
	}

	files, err := ScanFiles(destDir, pulled)
	if err != nil {
		return nil, fmt.Errorf("scanning files: %w", err)
	}
	manifest := &Manifest{
		SchemaVersion: CurrentSchemaVersion,
		Source:        repoID,
		Files:         files,
		Provenance: &Provenance{
			DownloadedFrom: "huggingface",
			DownloadedAt:   time.Now().UTC(),
		},
	}
	if err := manifest.SaveTo(filepath.Join(destDir, ManifestFilename)); err != nil {
		return nil, err
	}
	return manifest, nil
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer func() { _ = srcFile.Close() }()

	dstFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return fmt.Errorf("copying: %w", err)
	}
	return dstFile.Close()
}
