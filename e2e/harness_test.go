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

package e2e

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/modelregistry"
)

// modelPath is the fine-tuned checkpoint under test, from SENTIMENT_E2E_MODEL.
var modelPath string

// tokenizerDir holds the pretrained tokenizer files for all e2e tests
var tokenizerDir string

// downloadMutex ensures the tokenizer is downloaded once
var downloadMutex sync.Mutex

// TestMain sets up the e2e test environment. Tests skip themselves unless
// SENTIMENT_E2E_MODEL points at a checkpoint.
func TestMain(m *testing.M) {
	modelPath = os.Getenv("SENTIMENT_E2E_MODEL")

	tokenizerDir = os.Getenv("SENTIMENT_E2E_TOKENIZER_DIR")
	cleanup := false
	if tokenizerDir == "" {
		var err error
		tokenizerDir, err = os.MkdirTemp("", "sentiment-e2e-tokenizer-*")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create temp tokenizer dir: %v\n", err)
			os.Exit(1)
		}
		cleanup = os.Getenv("KEEP_TEST_MODELS") != "true"
	}

	code := m.Run()
	if cleanup {
		_ = os.RemoveAll(tokenizerDir)
	}
	os.Exit(code)
}

// requireModel skips the test when no checkpoint is configured.
func requireModel(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping E2E test in short mode")
	}
	if modelPath == "" {
		t.Skip("SENTIMENT_E2E_MODEL is not set")
	}
	return modelPath
}

// ensureTokenizer downloads the pretrained tokenizer files if not present.
// Returns the vocab.txt path.
func ensureTokenizer(t *testing.T, repo string) string {
	t.Helper()

	downloadMutex.Lock()
	defer downloadMutex.Unlock()

	vocabPath := filepath.Join(tokenizerDir, modelregistry.VocabFilename)
	if fileExists(vocabPath) {
		t.Logf("Tokenizer already exists at %s", tokenizerDir)
		return vocabPath
	}

	t.Logf("Downloading tokenizer from HuggingFace: %s", repo)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	hfClient := modelregistry.NewHuggingFaceClient(
		modelregistry.WithHFToken(os.Getenv("HF_TOKEN")),
		modelregistry.WithHFProgressHandler(func(downloaded, total int64, filename string) {
			if total > 0 && downloaded == total {
				t.Logf("  %s: done", filename)
			}
		}),
	)
	if _, err := hfClient.PullTokenizer(ctx, repo, tokenizerDir); err != nil {
		t.Fatalf("Failed to pull tokenizer %s: %v", repo, err)
	}
	return vocabPath
}

// findAvailablePort finds an available TCP port
func findAvailablePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("Failed to find available port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
