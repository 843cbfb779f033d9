// Package config resolves Confluence credentials and export tunables.
// Precedence: command-line flags -> environment -> .env file -> YAML config.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingConfig is returned when required config values cannot be resolved.
var ErrMissingConfig = errors.New("missing configuration")

// Config holds resolved credentials and defaults for an export run.
type Config struct {
	BaseURL  string
	Username string
	Password string
	LogLevel string
	File     FileConfig
}

// FileConfig is the optional YAML configuration file. All fields are defaults
// that flags may override.
type FileConfig struct {
	BaseURL              string  `yaml:"baseUrl"`
	Username             string  `yaml:"username"`
	OutputDir            string  `yaml:"outputDir"`
	Concurrency          int     `yaml:"concurrency"`
	MaxQueueSize         int     `yaml:"maxQueueSize"`
	MaxRetries           int     `yaml:"maxRetries"`
	RequestsPerSecond    float64 `yaml:"requestsPerSecond"`
	AttachmentThreshold  float64 `yaml:"attachmentThreshold"`
	AllowRestrictedPages *bool   `yaml:"allowRestrictedPages"`
	SkipAttachments      bool    `yaml:"skipAttachments"`
	LogLevel             string  `yaml:"logLevel"`
}

// Load resolves configuration from the environment, an optional .env file,
// and an optional YAML config file. The .env file never overrides variables
// already set in the environment.
func Load(configPath, dotEnvPath string) (*Config, error) {
	if dotEnvPath != "" {
		if _, err := os.Stat(dotEnvPath); err == nil {
			_ = godotenv.Load(dotEnvPath)
		}
	}

	var file FileConfig
	if configPath != "" {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	}

	baseURL := firstNonEmpty(os.Getenv("CONFLUENCE_BASE_URL"), file.BaseURL)
	username := firstNonEmpty(os.Getenv("CONFLUENCE_USERNAME"), file.Username)
	password := os.Getenv("CONFLUENCE_PASSWORD")
	logLevel := firstNonEmpty(os.Getenv("LOG_LEVEL"), file.LogLevel, "info")

	var missing []string
	if baseURL == "" {
		missing = append(missing, "CONFLUENCE_BASE_URL")
	}
	if username == "" {
		missing = append(missing, "CONFLUENCE_USERNAME")
	}
	if password == "" {
		missing = append(missing, "CONFLUENCE_PASSWORD")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}

	return &Config{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Username: username,
		Password: password,
		LogLevel: logLevel,
		File:     file,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
