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
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/faiz-oussama/Darija-sentiment-analysis/pkg/sentiment"
)

// EnvPrefix is prepended to every configuration key read from the environment,
// e.g. SENTIMENT_MODEL_PATH or SENTIMENT_LOG_LEVEL.
const EnvPrefix = "SENTIMENT"

// Build information, set by main.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "darija-sentiment",
	Short: "Sentiment analysis for Moroccan Darija",
	Long: `darija-sentiment classifies short Darija texts (Arabic or Latin script) as
positive or negative with a fine-tuned BERT model.

Configuration is read, in increasing priority, from built-in defaults, a
config file (--config, or ./sentiment.yaml), SENTIMENT_* environment variables
and command-line flags.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	rootCmd.Version = Version
	sentiment.Version = Version
	sentiment.GitCommit = GitCommit
	sentiment.BuildTime = BuildTime

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := sentiment.DefaultConfig()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ./sentiment.yaml)")

	flags.String("model-path", defaults.ModelPath, "fine-tuned checkpoint (.pt, .safetensors or .onnx)")
	flags.String("tokenizer-path", "", "vocab.txt or a directory holding one (default: next to the model, else downloaded)")
	flags.String("pretrained-repo", defaults.PretrainedRepo, "HuggingFace repo the tokenizer is downloaded from")
	flags.Int("max-length", defaults.MaxLength, "tokens per input, [CLS] and [SEP] included")
	flags.Float64("threshold", defaults.Threshold, "positive probability above which a text is positive")
	flags.StringSlice("backend-priority", defaults.BackendPriority, "backends to try in order (onnx, gomlx, go; optionally :cuda or :cpu)")
	flags.String("gpu", defaults.Gpu, "GPU mode: auto, cuda or off")
	flags.Int("num-threads", 0, "ONNX Runtime intra-op threads (0 = runtime default)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-style", "terminal", "log style (terminal, json)")

	mustBindPFlag("model_path", flags.Lookup("model-path"))
	mustBindPFlag("tokenizer_path", flags.Lookup("tokenizer-path"))
	mustBindPFlag("pretrained_repo", flags.Lookup("pretrained-repo"))
	mustBindPFlag("max_length", flags.Lookup("max-length"))
	mustBindPFlag("threshold", flags.Lookup("threshold"))
	mustBindPFlag("backend_priority", flags.Lookup("backend-priority"))
	mustBindPFlag("gpu", flags.Lookup("gpu"))
	mustBindPFlag("num_threads", flags.Lookup("num-threads"))
	mustBindPFlag("log.level", flags.Lookup("log-level"))
	mustBindPFlag("log.style", flags.Lookup("log-style"))

	viper.SetDefault("api_url", defaults.ApiUrl)
	viper.SetDefault("static_dir", defaults.StaticDir)
	viper.SetDefault("cache_ttl", defaults.CacheTTL)
	viper.SetDefault("health_port", 4200)
}

func initConfig() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// The hub token is also honoured under its usual name.
	_ = viper.BindEnv("hf_token", EnvPrefix+"_HF_TOKEN", "HF_TOKEN")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("sentiment")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}
}

func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("binding flag %s to %s: %v", flag.Name, key, err))
	}
}

// configFromViper resolves the server configuration from flags, environment,
// config file and defaults.
func configFromViper() sentiment.Config {
	return sentiment.Config{
		ApiUrl:          viper.GetString("api_url"),
		ModelPath:       viper.GetString("model_path"),
		TokenizerPath:   viper.GetString("tokenizer_path"),
		PretrainedRepo:  viper.GetString("pretrained_repo"),
		HfToken:         viper.GetString("hf_token"),
		MaxLength:       viper.GetInt("max_length"),
		Threshold:       viper.GetFloat64("threshold"),
		BackendPriority: viper.GetStringSlice("backend_priority"),
		Gpu:             viper.GetString("gpu"),
		NumThreads:      viper.GetInt("num_threads"),
		StaticDir:       viper.GetString("static_dir"),
		CacheTTL:        viper.GetDuration("cache_ttl"),
	}
}
