package config

import (
	"errors"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/fakeyudi/snaptrace/tracer"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config holds all configurable snaptrace settings.
type Config struct {
	LogPath       string `json:"log_path"`
	MaxDepth      int    `json:"max_depth"`
	Addr          string `json:"addr"`           // listen address for serve
	LogLevel      string `json:"log_level"`      // "debug" | "info" | "warn" | "error"
	DefaultFormat string `json:"default_format"` // "markdown" | "json" | "yaml"
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		LogPath:       tracer.DefaultLogPath(),
		MaxDepth:      tracer.DefaultMaxDepth,
		Addr:          "localhost:5000",
		LogLevel:      "warn",
		DefaultFormat: "markdown",
	}
}

// GlobalPath is the location of the per-user config file.
func GlobalPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "snaptrace", "config.json"), nil
}

// LoadGlobal reads ~/.config/snaptrace/config.json.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	path, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return loadFile(path, true)
}

// LoadProject reads .snaptraceconfig in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(".snaptraceconfig", false)
}

// Load reads both layers and merges them.
func Load() (Config, error) {
	global, err := LoadGlobal()
	if err != nil {
		return Defaults(), err
	}
	project, err := LoadProject()
	if err != nil {
		return Defaults(), err
	}
	return Merge(global, project), nil
}

func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge layers project over global over defaults. Zero values fall through.
func Merge(global, project *Config) Config {
	result := Defaults()
	for _, layer := range []*Config{global, project} {
		if layer == nil {
			continue
		}
		if layer.LogPath != "" {
			result.LogPath = layer.LogPath
		}
		if layer.MaxDepth > 0 {
			result.MaxDepth = layer.MaxDepth
		}
		if layer.Addr != "" {
			result.Addr = layer.Addr
		}
		if layer.LogLevel != "" {
			result.LogLevel = layer.LogLevel
		}
		if layer.DefaultFormat != "" {
			result.DefaultFormat = layer.DefaultFormat
		}
	}
	return result
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Save writes cfg to path as indented JSON, creating parent directories.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
