package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := *Default()
	cfg.Transcription.APIKey = "test-key"
	return cfg
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid configuration",
			modify: func(c *Config) {},
		},
		{
			name:        "invalid http port",
			modify:      func(c *Config) { c.HTTP.Port = 70000 },
			expectError: true,
			errorMsg:    "http port must be between 1 and 65535",
		},
		{
			name:        "empty upload dir",
			modify:      func(c *Config) { c.Storage.UploadDir = "" },
			expectError: true,
			errorMsg:    "upload_dir cannot be empty",
		},
		{
			name:        "zero upload limit",
			modify:      func(c *Config) { c.Storage.MaxUploadMB = 0 },
			expectError: true,
			errorMsg:    "max_upload_mb",
		},
		{
			name:        "zero session timeout",
			modify:      func(c *Config) { c.Session.Timeout = 0 },
			expectError: true,
			errorMsg:    "session config",
		},
		{
			name:        "missing api key",
			modify:      func(c *Config) { c.Transcription.APIKey = "" },
			expectError: true,
			errorMsg:    APIKeyEnv,
		},
		{
			name:        "negative retries",
			modify:      func(c *Config) { c.Transcription.MaxRetries = -1 },
			expectError: true,
			errorMsg:    "max_retries cannot be negative",
		},
		{
			name:        "unknown log format",
			modify:      func(c *Config) { c.Logging.Format = "xml" },
			expectError: true,
			errorMsg:    "format must be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv(APIKeyEnv, "")

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
		check       func(t *testing.T, c *Config)
	}{
		{
			name: "valid config file",
			configYAML: `
http:
  port: 9000
  address: "127.0.0.1"
storage:
  upload_dir: "/tmp/uploads"
  max_upload_mb: 50
transcription:
  api_key: "file-key"
  model: "nova-2"
  diarize: true
logging:
  level: "debug"
  format: "json"
  output: "stderr"
`,
			check: func(t *testing.T, c *Config) {
				if c.HTTP.Port != 9000 || c.HTTP.Address != "127.0.0.1" {
					t.Errorf("http = %+v", c.HTTP)
				}
				if c.Transcription.Model != "nova-2" || c.Transcription.APIKey != "file-key" {
					t.Errorf("transcription = %+v", c.Transcription)
				}
				// untouched fields keep their defaults
				if c.Session.Timeout != 3600 || c.Transcription.MaxConcurrent != 4 {
					t.Errorf("defaults lost: session=%+v transcription=%+v", c.Session, c.Transcription)
				}
			},
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
http:
  port: invalid_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "missing api key",
			configYAML: `
http:
  port: 8080
`,
			expectError: true,
			errorMsg:    "api_key cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			tt.check(t, config)
		})
	}
}

func TestConfigLoadEnvOverride(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("transcription:\n  api_key: file-key\n"), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}
	t.Setenv(APIKeyEnv, "env-key")

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if config.Transcription.APIKey != "env-key" {
		t.Errorf("Expected env-key, got %q", config.Transcription.APIKey)
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Fatalf("Expected error for nonexistent file but got none")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()

	if cfg.HTTP.GetReadTimeoutDuration() != 60*time.Second {
		t.Errorf("Expected 60 seconds, got %v", cfg.HTTP.GetReadTimeoutDuration())
	}

	if cfg.Session.GetTimeoutDuration() != time.Hour {
		t.Errorf("Expected 1 hour, got %v", cfg.Session.GetTimeoutDuration())
	}

	if cfg.Session.GetCleanupIntervalDuration() != time.Minute {
		t.Errorf("Expected 1 minute, got %v", cfg.Session.GetCleanupIntervalDuration())
	}

	if cfg.Transcription.GetTimeoutDuration() != 10*time.Minute {
		t.Errorf("Expected 10 minutes, got %v", cfg.Transcription.GetTimeoutDuration())
	}

	storage := StorageConfig{MaxUploadMB: 2}
	if storage.GetMaxUploadBytes() != 2*1024*1024 {
		t.Errorf("Expected 2 MiB, got %d", storage.GetMaxUploadBytes())
	}
}

func TestLoggingConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config LoggingConfig
		valid  bool
	}{
		{"valid json to stdout", LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, true},
		{"valid text to stderr", LoggingConfig{Level: "debug", Format: "text", Output: "stderr"}, true},
		{"auto to file", LoggingConfig{Level: "warn", Format: "auto", Output: "/var/log/et.log"}, true},
		{"invalid log level", LoggingConfig{Level: "trace", Format: "json", Output: "stdout"}, false},
		{"invalid format", LoggingConfig{Level: "info", Format: "xml", Output: "stdout"}, false},
		{"empty output", LoggingConfig{Level: "info", Format: "json"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}
