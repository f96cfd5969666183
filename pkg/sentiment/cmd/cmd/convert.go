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

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment/lib/cli"
)

var convertCmd = &cobra.Command{
	Use:   "convert <checkpoint>",
	Short: "Rewrite a checkpoint as safetensors",
	Long: `Read a torch.save checkpoint (or safetensors file) and write its tensors as
float32 safetensors, which load faster and without the pickle reader.

With --export-head the classification head is also written alone as
classifier_head.safetensors, so that an ONNX export of the encoder in the same
directory can be served with the fine-tuned head.

Examples:
  darija-sentiment convert ../darija_sentiment_model.pt
  darija-sentiment convert --output ./onnx/model.safetensors --export-head ../darija_sentiment_model.pt`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringP("output", "o", "", "output path (default: the checkpoint path with a .safetensors extension)")
	convertCmd.Flags().Bool("export-head", false, "also write classifier_head.safetensors next to the output")
}

func runConvert(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	exportHead, _ := cmd.Flags().GetBool("export-head")

	result, err := cli.ConvertCheckpoint(args[0], cli.ConvertOptions{
		Output:     output,
		ExportHead: exportHead,
	})
	if err != nil {
		return err
	}
	cli.PrintConvertResult(result)
	return nil
}
