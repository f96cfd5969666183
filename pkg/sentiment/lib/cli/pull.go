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

// Package cli holds the terminal-facing helpers behind the sentiment commands.
package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/modelregistry"
)

// PullOptions configures PullTokenizer.
type PullOptions struct {
	DestDir string
	HFToken string
}

// PullTokenizer downloads the tokenizer files of repoID into opts.DestDir and
// prints what was fetched.
func PullTokenizer(ctx context.Context, repoID string, opts PullOptions) error {
	if opts.DestDir == "" {
		return fmt.Errorf("destination directory is required")
	}

	fmt.Printf("Pulling tokenizer from HuggingFace: %s\n", repoID)
	client := modelregistry.NewHuggingFaceClient(
		modelregistry.WithHFToken(opts.HFToken),
		modelregistry.WithHFProgressHandler(PrintProgress),
	)
	manifest, err := client.PullTokenizer(ctx, repoID, opts.DestDir)
	if err != nil {
		return err
	}

	var total int64
	for _, f := range manifest.Files {
		total += f.Size
	}
	fmt.Printf("Files: %d\n", len(manifest.Files))
	fmt.Printf("Total size: %s\n", FormatBytes(total))
	fmt.Printf("\n✓ Tokenizer pulled successfully to %s\n", opts.DestDir)
	return nil
}

// FormatBytes formats bytes as human-readable string
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// PrintProgress prints download progress to stdout
func PrintProgress(downloaded, total int64, filename string) {
	if total <= 0 {
		fmt.Printf("\r  %s: %s", filename, FormatBytes(downloaded))
		return
	}

	fmt.Printf("\r  %s: %s", filename, progressLine(downloaded, total))
	if downloaded >= total {
		fmt.Println()
	}
}

func progressLine(downloaded, total int64) string {
	const barWidth = 30
	if downloaded > total {
		downloaded = total
	}
	filled := int(barWidth * downloaded / total)
	bar := strings.Repeat("=", filled) + strings.Repeat("-", barWidth-filled)
	return fmt.Sprintf("[%s] %.1f%% (%s/%s)",
		bar, float64(downloaded)/float64(total)*100, FormatBytes(downloaded), FormatBytes(total))
}
