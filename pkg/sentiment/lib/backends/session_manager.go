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
	"errors"
	"fmt"
	"sync"
)

// ErrNoLoader is returned when no available backend can read a model path.
var ErrNoLoader = errors.New("no backend can load model")

// SessionManager manages model loaders across multiple backends.
// It maintains at most one loader per backend type (lazy-created).
//
// Usage:
//
//	manager := backends.NewSessionManager()
//	defer manager.Close()
//
//	manager.SetPriority([]BackendSpec{
//	    {Backend: BackendONNX, Device: DeviceCUDA},
//	    {Backend: BackendGo},
//	})
//
//	model, backend, err := manager.LoadModel("darija_sentiment_model.pt")
type SessionManager struct {
	loaders  map[BackendType]ModelLoader
	priority []BackendSpec
	mu       sync.RWMutex
	closed   bool
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		loaders: make(map[BackendType]ModelLoader),
	}
}

// SetPriority configures the backend priority order with device preferences.
func (sm *SessionManager) SetPriority(priority []BackendSpec) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.priority = make([]BackendSpec, len(priority))
	copy(sm.priority, priority)
}

// getPriority returns the configured priority or the global default.
func (sm *SessionManager) getPriority() []BackendSpec {
	if len(sm.priority) > 0 {
		result := make([]BackendSpec, len(sm.priority))
		copy(result, sm.priority)
		return result
	}

	globalPriority := GetPriority()
	result := make([]BackendSpec, len(globalPriority))
	for i, bt := range globalPriority {
		result[i] = BackendSpec{Backend: bt, Device: DeviceAuto}
	}
	return result
}

// GetLoader returns a model loader for the specified backend.
// Creates a new loader if one doesn't exist for this backend.
// Returns an error if the backend is unavailable.
func (sm *SessionManager) GetLoader(backend BackendType) (ModelLoader, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.closed {
		return nil, fmt.Errorf("session manager is closed")
	}

	if loader, ok := sm.loaders[backend]; ok {
		return loader, nil
	}

	b, ok := GetBackend(backend)
	if !ok {
		return nil, fmt.Errorf("backend %q not registered", backend)
	}
	if !b.Available() {
		return nil, fmt.Errorf("backend %q not available", backend)
	}

	loader := b.Loader()
	sm.loaders[backend] = loader
	return loader, nil
}

// LoadModel loads the model at path with the first backend, in priority order,
// that is available and can read it. A device preference in the priority list
// is passed to the loader as its GPU mode unless opts override it.
// Returns the model and the backend type that was used.
func (sm *SessionManager) LoadModel(path string, opts ...LoadOption) (Model, BackendType, error) {
	sm.mu.RLock()
	priority := sm.getPriority()
	sm.mu.RUnlock()

	var errs []error
	for _, spec := range priority {
		loader, err := sm.GetLoader(spec.Backend)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !loader.SupportsModel(path) {
			continue
		}

		loadOpts := opts
		if spec.Device != DeviceAuto && spec.Device != "" {
			loadOpts = append([]LoadOption{WithGPUMode(spec.Device.ToGPUMode())}, opts...)
		}

		model, err := loader.Load(path, loadOpts...)
		if err != nil {
			errs = append(errs, fmt.Errorf("loading model with %s backend: %w", spec.Backend, err))
			continue
		}
		return model, spec.Backend, nil
	}

	if len(errs) > 0 {
		return nil, "", fmt.Errorf("%w at %s: %w", ErrNoLoader, path, errors.Join(errs...))
	}
	return nil, "", fmt.Errorf("%w at %s", ErrNoLoader, path)
}

// Close releases all managed resources.
// After Close, the SessionManager cannot be reused.
func (sm *SessionManager) Close() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.closed {
		return nil
	}
	sm.loaders = nil
	sm.closed = true
	return nil
}
