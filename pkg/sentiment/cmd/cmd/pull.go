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

package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/cli"
)

var pullCmd = &cobra.Command{
	Use:   "pull [repo]",
	Short: "Download the pretrained tokenizer files",
	Long: `Download vocab.txt and the tokenizer configuration of a HuggingFace repo.

The fine-tuned checkpoint only holds weights; the WordPiece vocabulary comes
from the pretrained model it was trained from (bert-base-uncased by default).
Put the files next to the checkpoint, or point --tokenizer-path at them, to
run without network access.

Examples:
  # Pull bert-base-uncased into ./tokenizer
  darija-sentiment pull

  # Pull next to the checkpoint
  darija-sentiment pull --output ..

  # Pull a gated repo
  darija-sentiment pull --hf-token $HF_TOKEN my-org/darija-bert`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)

	pullCmd.Flags().StringP("output", "o", "tokenizer", "directory to write the files to")
	pullCmd.Flags().String("hf-token", "", "HuggingFace API token for gated repos (or use HF_TOKEN env var)")
}

func runPull(cmd *cobra.Command, args []string) error {
	repo := viper.GetString("pretrained_repo")
	if len(args) == 1 {
		repo = args[0]
	}
	output, _ := cmd.Flags().GetString("output")
	token, _ := cmd.Flags().GetString("hf-token")
	if token == "" {
		token = viper.GetString("hf_token")
	}

	return cli.PullTokenizer(cmd.Context(), repo, cli.PullOptions{
		DestDir: output,
		HFToken: token,
	})
}
