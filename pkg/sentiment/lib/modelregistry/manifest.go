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

// Package modelregistry fetches the pretrained tokenizer files that pair with a
// fine-tuned checkpoint, and records what was fetched in a manifest.
package modelregistry

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
)

// ManifestFilename is written next to pulled files.
const ManifestFilename = "tokenizer_manifest.json"

// CurrentSchemaVersion is the manifest schema written by this package.
const CurrentSchemaVersion = 1

// File represents a single file in the manifest
type File struct {
	// Name is the filename (e.g., "vocab.txt")
	Name string `json:"name"`
	// Digest is the SHA256 hash of the file (e.g., "sha256:abc123...")
	Digest string `json:"digest"`
	// Size is the file size in bytes
	Size int64 `json:"size"`
}

// Provenance tracks download metadata
type Provenance struct {
	DownloadedFrom string    `json:"downloadedFrom"`
	DownloadedAt   time.Time `json:"downloadedAt"`
}

// Manifest lists the files pulled from one repository.
type Manifest struct {
	SchemaVersion int         `json:"schemaVersion"`
	Source        string      `json:"source"`
	Files         []File      `json:"files"`
	Provenance    *Provenance `json:"provenance,omitempty"`
}

// Has reports whether the manifest lists a file of that name.
func (m *Manifest) Has(name string) bool {
	for _, f := range m.Files {
		if f.Name == name {
			return true
		}
	}
	return false
}

// SaveTo writes the manifest as indented JSON.
func (m *Manifest) SaveTo(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// LoadManifest reads ManifestFilename from dir.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFilename))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

// ComputeFileDigest computes the SHA256 digest of a file in "sha256:..." format
func ComputeFileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}
	return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
}

// ScanFiles returns entries for the named files in dir.
func ScanFiles(dir string, names []string) ([]File, error) {
	files := make([]File, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		digest, err := ComputeFileDigest(path)
		if err != nil {
			return nil, err
		}
		files = append(files, File{Name: name, Digest: digest, Size: info.Size()})
	}
	return files, nil
}
