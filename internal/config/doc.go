// Package config provides configuration loading and validation for the transcription service.
// It reads a YAML file over built-in defaults, applies environment overrides and
// validates every section before the service starts.
package config
