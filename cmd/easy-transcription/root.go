package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/easytranscription/easy-transcription/internal/config"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "easy-transcription"
	serviceVersion    = "1.0.0"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "Upload audio, transcribe it with speaker diarization and name the speakers",
	Long: `Easy Transcription sends an audio file to a speech-to-text provider with
speaker diarization enabled and turns the result into readable speaker blocks.
Speakers can be given names before the transcript is exported.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "force debug logging")
}

// loadConfig reads the config file. A missing file at the default path
// falls back to built-in defaults so the CLI works with only an API key.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("config") {
			return nil, err
		}

		cfg = config.Default()
		cfg.ApplyEnv()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}
