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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeHub serves files from a directory laid out as <repo>/<file>.
type fakeHub struct {
	root  string
	calls []string
	token string
}

func newFakeHub(t *testing.T, files map[string]string) *fakeHub {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return &fakeHub{root: root}
}

func (h *fakeHub) download(repoID, token, fileName string) (string, error) {
	h.calls = append(h.calls, repoID+"/"+fileName)
	h.token = token
	path := filepath.Join(h.root, repoID, fileName)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("404: %w", err)
	}
	return path, nil
}

func (h *fakeHub) client(opts ...HFClientOption) *HuggingFaceClient {
	c := NewHuggingFaceClient(opts...)
	c.download = h.download
	return c
}

func TestPullTokenizer(t *testing.T) {
	hub := newFakeHub(t, map[string]string{
		"bert-base-uncased/vocab.txt":   "[PAD]\n[UNK]\n[CLS]\n[SEP]\n",
		"bert-base-uncased/config.json": `{"hidden_size": 768}`,
	})

	var progress []string
	c := hub.client(WithHFToken("secret"), WithHFProgressHandler(func(downloaded, total int64, filename string) {
		progress = append(progress, fmt.Sprintf("%s %d/%d", filename, downloaded, total))
	}))

	dest := filepath.Join(t.TempDir(), "tokenizer")
	manifest, err := c.PullTokenizer(context.Background(), DefaultRepo, dest)
	require.NoError(t, err)

	assert.Equal(t, "secret", hub.token)
	assert.Equal(t, DefaultRepo, manifest.Source)
	assert.True(t, manifest.Has(VocabFilename))
	assert.True(t, manifest.Has("config.json"))
	assert.False(t, manifest.Has("tokenizer_config.json"))
	assert.Equal(t, "huggingface", manifest.Provenance.DownloadedFrom)
	assert.Contains(t, progress, "vocab.txt 0/0")
	assert.Contains(t, progress, "vocab.txt 24/24")

	vocab, err := os.ReadFile(filepath.Join(dest, VocabFilename))
	require.NoError(t, err)
	assert.Equal(t, "[PAD]\n[UNK]\n[CLS]\n[SEP]\n", string(vocab))

	saved, err := LoadManifest(dest)
	require.NoError(t, err)
	assert.Equal(t, manifest.Files, saved.Files)
	digest, err := ComputeFileDigest(filepath.Join(dest, VocabFilename))
	require.NoError(t, err)
	assert.Equal(t, digest, saved.Files[0].Digest)
}

func TestPullTokenizer_MissingVocab(t *testing.T) {
	hub := newFakeHub(t, map[string]string{"some/model/config.json": "{}"})

	_, err := hub.client().PullTokenizer(context.Background(), "some/model", t.TempDir())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFetch_Validation(t *testing.T) {
	hub := newFakeHub(t, nil)
	c := hub.client()

	for _, repo := range []string{"", "/x", "x/", "a/b/c"} {
		_, err := c.Fetch(context.Background(), repo, VocabFilename)
		require.Error(t, err, "repo %q", repo)
	}
	assert.Empty(t, hub.calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Fetch(ctx, DefaultRepo, VocabFilename)
	require.ErrorIs(t, err, context.Canceled)
}

func TestResolveVocab(t *testing.T) {
	hub := newFakeHub(t, map[string]string{"bert-base-uncased/vocab.txt": "[CLS]\n"})
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	modelDir := t.TempDir()
	model := filepath.Join(modelDir, "darija_sentiment_model.pt")
	require.NoError(t, os.WriteFile(model, []byte("PK"), 0644))

	// Nothing local: the hub is used.
	path, err := ResolveVocab(ctx, VocabSource{ModelPath: model}, hub.client(), logger)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(hub.root, DefaultRepo, VocabFilename), path)

	// A vocab.txt beside the checkpoint wins over the hub.
	beside := filepath.Join(modelDir, VocabFilename)
	require.NoError(t, os.WriteFile(beside, []byte("[CLS]\n"), 0644))
	path, err = ResolveVocab(ctx, VocabSource{ModelPath: model}, hub.client(), logger)
	require.NoError(t, err)
	assert.Equal(t, beside, path)

	path, err = ResolveVocab(ctx, VocabSource{ModelPath: modelDir}, hub.client(), logger)
	require.NoError(t, err)
	assert.Equal(t, beside, path)

	// An explicit path wins over both, and may name a directory.
	explicitDir := t.TempDir()
	explicit := filepath.Join(explicitDir, VocabFilename)
	require.NoError(t, os.WriteFile(explicit, []byte("[CLS]\n"), 0644))
	path, err = ResolveVocab(ctx, VocabSource{TokenizerPath: explicitDir, ModelPath: model}, hub.client(), logger)
	require.NoError(t, err)
	assert.Equal(t, explicit, path)

	_, err = ResolveVocab(ctx, VocabSource{TokenizerPath: filepath.Join(explicitDir, "nope.txt")}, hub.client(), logger)
	require.ErrorIs(t, err, os.ErrNotExist)

	// Unknown repo on the hub.
	_, err = ResolveVocab(ctx, VocabSource{Repo: "nobody/nothing"}, hub.client(), logger)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
