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
)

func TestGoBackendRegistered(t *testing.T) {
	b, ok := GetBackend(BackendGo)
	require.True(t, ok)
	assert.True(t, b.Available())
	assert.Equal(t, 100, b.Priority())
	assert.Equal(t, BackendGo, b.Loader().Backend())

	var found bool
	for _, avail := range ListAvailable() {
		if avail.Type() == BackendGo {
			found = true
		}
	}
	assert.True(t, found)
}

func TestPriority(t *testing.T) {
	priority := GetPriority()
	assert.Equal(t, []BackendType{BackendONNX, BackendGoMLX, BackendGo}, priority)
	priority[0] = BackendGo
	assert.Equal(t, BackendONNX, GetPriority()[0])

	// The pure Go fallback always comes last.
	available := ListAvailable()
	require.NotEmpty(t, available)
	assert.Equal(t, BackendGo, available[len(available)-1].Type())
	for i := 1; i < len(available); i++ {
		assert.Less(t, available[i-1].Priority(), available[i].Priority())
	}
}

func TestParseBackendSpec(t *testing.T) {
	tests := []struct {
		in      string
		want    BackendSpec
		wantErr bool
	}{
		{in: "go", want: BackendSpec{Backend: BackendGo, Device: DeviceAuto}},
		{in: "ONNX", want: BackendSpec{Backend: BackendONNX, Device: DeviceAuto}},
		{in: "onnx:cuda", want: BackendSpec{Backend: BackendONNX, Device: DeviceCUDA}},
		{in: "onnx:gpu", want: BackendSpec{Backend: BackendONNX, Device: DeviceCUDA}},
		{in: "go:cpu", want: BackendSpec{Backend: BackendGo, Device: DeviceCPU}},
		{in: "gomlx", want: BackendSpec{Backend: BackendGoMLX, Device: DeviceAuto}},
		{in: "tensorflow", wantErr: true},
		{in: "onnx:tpu", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBackendSpec(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBackendPriority(t *testing.T) {
	specs, err := ParseBackendPriority([]string{"onnx:cuda", "go"})
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "onnx:cuda", specs[0].String())
	assert.Equal(t, "go", specs[1].String())

	_, err = ParseBackendPriority([]string{"go", "tensorflow"})
	require.ErrorContains(t, err, "tensorflow")
}

func TestParseGPUMode(t *testing.T) {
	assert.Equal(t, GPUModeCuda, ParseGPUMode("CUDA"))
	assert.Equal(t, GPUModeOff, ParseGPUMode("cpu"))
	assert.Equal(t, GPUModeAuto, ParseGPUMode(""))
	assert.Equal(t, GPUModeAuto, ParseGPUMode("whatever"))

	assert.Equal(t, GPUModeCuda, DeviceCUDA.ToGPUMode())
	assert.Equal(t, GPUModeOff, DeviceCPU.ToGPUMode())
	assert.Equal(t, GPUModeAuto, DeviceAuto.ToGPUMode())
}

func TestShouldUseGPU(t *testing.T) {
	assert.False(t, ShouldUseGPU(GPUModeOff))
	assert.True(t, ShouldUseGPU(GPUModeCuda))
	assert.Equal(t, DetectGPU().Available, ShouldUseGPU(GPUModeAuto))
}
