// Package config holds the application configuration and the per-request chat
// settings. Settings are loaded from YAML, clamped on load, and handed to the
// engine as an immutable value per request.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the static application configuration.
type Config struct {
	// StorePath is the SQLite file holding summaries, metadata and originals.
	StorePath string `yaml:"store_path"`

	// SettingsPath is the chat settings file watched for changes.
	SettingsPath string `yaml:"settings_path"`

	// Folder scopes store reads, mirroring the user-owned folder handle.
	Folder string `yaml:"folder"`

	// CallTimeout bounds each upstream store/LLM call, e.g. "60s".
	CallTimeout string `yaml:"call_timeout"`

	Debug bool `yaml:"debug"`
}

// DefaultConfig returns the default application configuration.
func DefaultConfig() *Config {
	return &Config{
		StorePath:    "data/timelined.db",
		SettingsPath: "settings.yaml",
		Folder:       "default",
		CallTimeout:  "60s",
	}
}

// ChatSettings are the admin-configured knobs read once per request.
type ChatSettings struct {
	Provider        string  `yaml:"provider" json:"provider"`
	Model           string  `yaml:"model" json:"model"`
	Temperature     float64 `yaml:"temperature" json:"temperature"`
	SystemPrompt    string  `yaml:"system_prompt" json:"system_prompt"`
	MaxContextItems int     `yaml:"max_context_items" json:"max_context_items"`
	MaxContextChars int     `yaml:"max_context_chars" json:"max_context_chars"`
}

// DefaultChatSettings returns the settings used when no settings file exists.
func DefaultChatSettings() ChatSettings {
	return ChatSettings{
		Provider:        "gemini",
		Model:           "gemini-2.0-flash",
		Temperature:     0.3,
		MaxContextItems: 8,
		MaxContextChars: 12000,
	}
}

// Normalize clamps settings to their allowed ranges. MaxContextItems is held
// to [1,20]; zero values fall back to defaults.
func (s ChatSettings) Normalize() ChatSettings {
	d := DefaultChatSettings()
	if s.Provider == "" {
		s.Provider = d.Provider
	}
	if s.Model == "" {
		s.Model = d.Model
	}
	if s.Temperature < 0 {
		s.Temperature = 0
	}
	if s.Temperature > 2 {
		s.Temperature = 2
	}
	if s.MaxContextItems <= 0 {
		s.MaxContextItems = d.MaxContextItems
	}
	if s.MaxContextItems > 20 {
		s.MaxContextItems = 20
	}
	if s.MaxContextChars <= 0 {
		s.MaxContextChars = d.MaxContextChars
	}
	return s
}

// Load reads the application config from path, filling defaults for missing
// fields. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.StorePath == "" {
		cfg.StorePath = DefaultConfig().StorePath
	}
	if cfg.SettingsPath == "" {
		cfg.SettingsPath = DefaultConfig().SettingsPath
	}
	return cfg, nil
}

// LoadChatSettings reads and normalizes the chat settings file. A missing file
// yields defaults.
func LoadChatSettings(path string) (ChatSettings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultChatSettings(), nil
	}
	if err != nil {
		return ChatSettings{}, fmt.Errorf("failed to read settings: %w", err)
	}
	var s ChatSettings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return ChatSettings{}, fmt.Errorf("failed to parse settings: %w", err)
	}
	return s.Normalize(), nil
}
