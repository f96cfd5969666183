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

package backends

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/internal/testutil"
)

func TestSessionManager_LoadModel(t *testing.T) {
	path := testutil.WriteModel(t, testutil.TinyConfig(), 5)

	sm := NewSessionManager()
	defer sm.Close()
	sm.SetPriority([]BackendSpec{{Backend: BackendONNX}, {Backend: BackendGo, Device: DeviceCPU}})

	// No .onnx file, so only the Go loader accepts the checkpoint.
	model, backend, err := sm.LoadModel(path, WithMaxLength(16))
	require.NoError(t, err)
	defer model.Close()
	assert.Equal(t, BackendGo, backend)
}

func TestSessionManager_NoLoader(t *testing.T) {
	sm := NewSessionManager()
	defer sm.Close()

	_, _, err := sm.LoadModel(t.TempDir())
	require.ErrorIs(t, err, ErrNoLoader)
}

func TestSessionManager_LoadErrorsAreReported(t *testing.T) {
	path := testutil.WriteModel(t, testutil.TinyConfig(), 5)

	sm := NewSessionManager()
	defer sm.Close()
	sm.SetPriority([]BackendSpec{{Backend: BackendGo}})

	_, _, err := sm.LoadModel(path) // default max length exceeds 32 positions
	require.ErrorIs(t, err, ErrNoLoader)
	assert.ErrorContains(t, err, "position embeddings")
}

func TestSessionManager_Closed(t *testing.T) {
	sm := NewSessionManager()
	require.NoError(t, sm.Close())
	require.NoError(t, sm.Close())

	_, err := sm.GetLoader(BackendGo)
	require.Error(t, err)

	_, err = sm.GetLoader("tensorflow")
	require.Error(t, err)
}

func TestSessionManager_UnregisteredBackend(t *testing.T) {
	sm := NewSessionManager()
	defer sm.Close()

	_, err := sm.GetLoader("tensorflow")
	require.ErrorContains(t, err, "not registered")
}
