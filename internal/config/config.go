// Package config handles reading and writing ~/.medchat/config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level structure for .medchat/config.yaml.
type Config struct {
	APIBase string        `yaml:"api_base"`
	Request RequestConfig `yaml:"request"`
	Chat    ChatConfig    `yaml:"chat"`
	UI      UIConfig      `yaml:"ui"`
}

// RequestConfig controls outbound HTTP behaviour.
type RequestConfig struct {
	TimeoutMS       int `yaml:"timeout_ms"`        // per-request timeout
	LogoutTimeoutMS int `yaml:"logout_timeout_ms"` // fire-and-forget logout notify
}

// ChatConfig controls chat request parameters and title maintenance.
type ChatConfig struct {
	TopK          int    `yaml:"top_k"`
	Lang          string `yaml:"lang"` // "vi" | "en"
	Trace         bool   `yaml:"trace"`
	BackfillLimit int    `yaml:"backfill_limit"`
}

// UIConfig holds presentation preferences.
type UIConfig struct {
	Theme string `yaml:"theme"` // "dark" | "light"
	TTS   bool   `yaml:"tts"`   // speak answers to voice-originated questions
}

// configFile is the path relative to the base directory.
const configDir = ".medchat"
const configFile = "config.yaml"

// ReadConfig reads .medchat/config.yaml from the given base directory.
// dir is usually the user's home directory (not .medchat/ itself).
// Returns an error if the file is not found or YAML is malformed.
func ReadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, configDir, configFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &cfg, nil
}

// WriteConfig writes cfg to .medchat/config.yaml in the given base directory.
// Creates the .medchat/ directory if it does not exist.
func WriteConfig(dir string, cfg *Config) error {
	dirPath := filepath.Join(dir, configDir)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	path := filepath.Join(dirPath, configFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		APIBase: "http://127.0.0.1:8000",
		Request: RequestConfig{
			TimeoutMS:       60000,
			LogoutTimeoutMS: 400,
		},
		Chat: ChatConfig{
			TopK:          6,
			Lang:          "vi",
			Trace:         true,
			BackfillLimit: 10,
		},
		UI: UIConfig{
			Theme: "dark",
			TTS:   false,
		},
	}
}

// StateDir returns the .medchat directory inside dir, creating it if needed.
func StateDir(dir string) (string, error) {
	dirPath := filepath.Join(dir, configDir)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("creating state directory: %w", err)
	}
	return dirPath, nil
}
