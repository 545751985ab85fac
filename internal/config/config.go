// Package config loads the match engine's TOML configuration, following the
// teacher repo's flat-struct-plus-TOML-tags convention: a Default() builder,
// a Load() that overlays a file onto the defaults, and a Validate() pass.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config is the core-relevant configuration surface described in the data
// model: cache location, confidence floor, provider selection, and remote
// subtitle service credentials, plus the tunables the domain stack needs.
type Config struct {
	CacheDir      string  `toml:"cache_dir"`
	ShowDir       string  `toml:"show_dir"`
	MinConfidence float64 `toml:"min_confidence"`

	ASRProvider string `toml:"asr_provider"` // "whisper" or "http"
	ASRModel    string `toml:"asr_model"`
	ASRDevice   string `toml:"asr_device"`
	ASRLanguage string `toml:"asr_language"`
	ASRBinary   string `toml:"asr_binary"`   // whisper-cli path, "whisper" backend only
	ASRBaseURL  string `toml:"asr_base_url"` // "http" backend only
	ASRAPIKey   string `toml:"asr_api_key"`  // "http" backend only
	SubProvider string `toml:"sub_provider"` // "local" or "remote"

	RemoteAPIKey    string   `toml:"remote_api_key"`
	RemoteUserAgent string   `toml:"remote_user_agent"`
	RemoteBaseURL   string   `toml:"remote_base_url"`
	RemoteLanguages []string `toml:"remote_languages"`

	CacheMaxItems       int `toml:"cache_max_items"`
	CacheMaxMemoryBytes int64 `toml:"cache_max_memory_bytes"`

	LogFormat string `toml:"log_format"`
	LogLevel  string `toml:"log_level"`
}

const (
	defaultCacheDir            = "~/.cache/mkvmatch"
	defaultMinConfidence       = 0.7
	defaultASRProvider         = "whisper"
	defaultASRModel            = "base"
	defaultASRDevice           = "cpu"
	defaultASRLanguage         = "en"
	defaultSubProvider         = "local"
	defaultRemoteBaseURL       = "https://api.opensubtitles.com/api/v1"
	defaultRemoteUserAgent     = "mkvmatch/dev"
	defaultCacheMaxItems       = 100
	defaultCacheMaxMemoryBytes = 512 * 1024 * 1024
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		CacheDir:            defaultCacheDir,
		MinConfidence:       defaultMinConfidence,
		ASRProvider:         defaultASRProvider,
		ASRModel:            defaultASRModel,
		ASRDevice:           defaultASRDevice,
		ASRLanguage:         defaultASRLanguage,
		SubProvider:         defaultSubProvider,
		RemoteBaseURL:       defaultRemoteBaseURL,
		RemoteUserAgent:     defaultRemoteUserAgent,
		RemoteLanguages:     []string{"en"},
		CacheMaxItems:       defaultCacheMaxItems,
		CacheMaxMemoryBytes: defaultCacheMaxMemoryBytes,
		LogFormat:           defaultLogFormat,
		LogLevel:            defaultLogLevel,
	}
}

// Load locates, parses, normalizes and validates a configuration file. When
// path is empty or does not exist, the defaults go through the same
// normalization and validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		file, err := os.Open(expanded)
		switch {
		case err == nil:
			defer file.Close()
			if decodeErr := toml.NewDecoder(file).Decode(&cfg); decodeErr != nil {
				return nil, fmt.Errorf("parse config: %w", decodeErr)
			}
		case errors.Is(err, fs.ErrNotExist):
			// fall through with defaults
		default:
			return nil, fmt.Errorf("open config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	var err error
	if c.CacheDir, err = ExpandPath(c.CacheDir); err != nil {
		return fmt.Errorf("cache_dir: %w", err)
	}
	if strings.TrimSpace(c.ShowDir) != "" {
		if c.ShowDir, err = ExpandPath(c.ShowDir); err != nil {
			return fmt.Errorf("show_dir: %w", err)
		}
	}
	c.ASRProvider = strings.ToLower(strings.TrimSpace(c.ASRProvider))
	if c.ASRProvider == "" {
		c.ASRProvider = defaultASRProvider
	}
	c.ASRModel = strings.TrimSpace(c.ASRModel)
	if c.ASRModel == "" {
		c.ASRModel = defaultASRModel
	}
	c.ASRDevice = strings.TrimSpace(c.ASRDevice)
	if c.ASRDevice == "" {
		c.ASRDevice = defaultASRDevice
	}
	c.ASRLanguage = strings.TrimSpace(c.ASRLanguage)
	if c.ASRLanguage == "" {
		c.ASRLanguage = defaultASRLanguage
	}
	if c.ASRAPIKey == "" {
		if v, ok := os.LookupEnv("MKVMATCH_ASR_API_KEY"); ok {
			c.ASRAPIKey = v
		}
	}
	c.SubProvider = strings.ToLower(strings.TrimSpace(c.SubProvider))
	if c.SubProvider == "" {
		c.SubProvider = defaultSubProvider
	}
	c.RemoteBaseURL = strings.TrimSpace(c.RemoteBaseURL)
	if c.RemoteBaseURL == "" {
		c.RemoteBaseURL = defaultRemoteBaseURL
	}
	c.RemoteUserAgent = strings.TrimSpace(c.RemoteUserAgent)
	if c.RemoteUserAgent == "" {
		c.RemoteUserAgent = defaultRemoteUserAgent
	}
	if c.RemoteAPIKey == "" {
		if v, ok := os.LookupEnv("MKVMATCH_REMOTE_API_KEY"); ok {
			c.RemoteAPIKey = v
		}
	}
	if len(c.RemoteLanguages) == 0 {
		c.RemoteLanguages = []string{"en"}
	}
	if c.CacheMaxItems <= 0 {
		c.CacheMaxItems = defaultCacheMaxItems
	}
	if c.CacheMaxMemoryBytes <= 0 {
		c.CacheMaxMemoryBytes = defaultCacheMaxMemoryBytes
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat == "" {
		c.LogFormat = defaultLogFormat
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	return nil
}

// Validate ensures the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return errors.New("min_confidence must be between 0 and 1")
	}
	switch c.SubProvider {
	case "local", "remote":
	default:
		return fmt.Errorf("sub_provider: unsupported value %q", c.SubProvider)
	}
	if c.SubProvider == "remote" && strings.TrimSpace(c.RemoteAPIKey) == "" {
		return errors.New("remote_api_key is required when sub_provider is \"remote\"")
	}
	switch c.ASRProvider {
	case "whisper", "http":
	default:
		return fmt.Errorf("asr_provider: unsupported value %q", c.ASRProvider)
	}
	if c.ASRProvider == "http" && strings.TrimSpace(c.ASRBaseURL) == "" {
		return errors.New("asr_base_url is required when asr_provider is \"http\"")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format: unsupported value %q", c.LogFormat)
	}
	if c.CacheMaxItems <= 0 {
		return errors.New("cache_max_items must be positive")
	}
	if c.CacheMaxMemoryBytes <= 0 {
		return errors.New("cache_max_memory_bytes must be positive")
	}
	return nil
}

// ExpandPath resolves a leading "~" to the user's home directory and
// returns a cleaned absolute path.
func ExpandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
