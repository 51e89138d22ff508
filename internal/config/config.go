package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type ProviderConfig struct {
	Endpoint          string `toml:"endpoint"`
	HTTPTimeoutSecs   int    `toml:"http_timeout_seconds"`
	PrimaryModel      string `toml:"primary_model"`
	FallbackModel     string `toml:"fallback_model"`
	MaxRetries        int    `toml:"max_retries"`
	RetryDelaySecs    int    `toml:"retry_delay_seconds"`
	OverloadThreshold int    `toml:"overload_threshold"`
}

type RendererConfig struct {
	Endpoint    string `toml:"endpoint"`
	TimeoutSecs int    `toml:"timeout_seconds"`
}

type GenerationConfig struct {
	TargetPages        int `toml:"target_pages"`
	AutoFixAttempts    int `toml:"autofix_attempts"`
	ProcessingTimeoutM int `toml:"processing_timeout_minutes"`
	StaleGraceM        int `toml:"stale_grace_minutes"`
}

type QuotaConfig struct {
	DefaultBudget int `toml:"default_budget"`
	CacheSize     int `toml:"cache_size"`
	CacheTTLSecs  int `toml:"cache_ttl_seconds"`
}

type DebugConfig struct {
	LogRequests  bool   `toml:"log_requests"`
	LogResponses bool   `toml:"log_responses"`
	LogDirectory string `toml:"log_directory"`
}

type Config struct {
	Bind       string           `toml:"bind"`
	DataDir    string           `toml:"data_dir"`
	Provider   ProviderConfig   `toml:"provider"`
	Renderer   RendererConfig   `toml:"renderer"`
	Generation GenerationConfig `toml:"generation"`
	Quota      QuotaConfig      `toml:"quota"`
	Debug      DebugConfig      `toml:"debug"`
}

func Default() Config {
	dataDir := defaultDataDir()
	return Config{
		Bind:    ":8700",
		DataDir: dataDir,
		Provider: ProviderConfig{
			Endpoint:          "http://127.0.0.1:8080",
			HTTPTimeoutSecs:   300,
			PrimaryModel:      "default",
			FallbackModel:     "default-mini",
			MaxRetries:        4,
			RetryDelaySecs:    2,
			OverloadThreshold: 3,
		},
		Renderer: RendererConfig{
			Endpoint:    "http://127.0.0.1:8090",
			TimeoutSecs: 120,
		},
		Generation: GenerationConfig{
			TargetPages:        2,
			AutoFixAttempts:    3,
			ProcessingTimeoutM: 45,
			StaleGraceM:        2,
		},
		Quota: QuotaConfig{
			DefaultBudget: 50,
			CacheSize:     256,
			CacheTTLSecs:  30,
		},
		Debug: DebugConfig{
			LogRequests:  false,
			LogResponses: false,
			LogDirectory: filepath.Join(dataDir, "debug"),
		},
	}
}

// LoadOrCreate reads the config at path, writing the default file first if
// none exists yet.
func LoadOrCreate(path string) (Config, error) {
	config := Default()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return config, err
			}

			configData, err := toml.Marshal(config)
			if err != nil {
				return config, err
			}

			if err := os.WriteFile(path, configData, 0o644); err != nil {
				return config, err
			}

			return config, nil
		}

		return config, err
	}

	configData, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	if err := toml.Unmarshal(configData, &config); err != nil {
		return config, err
	}

	config.DataDir = expandPath(config.DataDir)
	config.Provider.Endpoint = strings.TrimSpace(config.Provider.Endpoint)
	config.Renderer.Endpoint = strings.TrimSpace(config.Renderer.Endpoint)
	config.Bind = strings.TrimSpace(config.Bind)

	if config.Provider.Endpoint == "" {
		return config, errors.New("provider.endpoint is required")
	}

	if config.Bind == "" {
		config.Bind = ":8700"
	}

	return config, nil
}

func (c Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.HTTPTimeoutSecs) * time.Second
}

func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.Provider.RetryDelaySecs) * time.Second
}

func (c Config) RendererTimeout() time.Duration {
	return time.Duration(c.Renderer.TimeoutSecs) * time.Second
}

func (c Config) ProcessingTimeout() time.Duration {
	return time.Duration(c.Generation.ProcessingTimeoutM) * time.Minute
}

func (c Config) StaleGrace() time.Duration {
	return time.Duration(c.Generation.StaleGraceM) * time.Minute
}

func (c Config) QuotaCacheTTL() time.Duration {
	return time.Duration(c.Quota.CacheTTLSecs) * time.Second
}

func defaultDataDir() string {
	homeDir, _ := os.UserHomeDir()

	if homeDir == "" {
		return ".tailord"
	}

	return filepath.Join(homeDir, ".tailord")
}

func expandPath(path string) string {
	if path == "" {
		return ""
	}

	if strings.HasPrefix(path, "~") {
		homeDir, _ := os.UserHomeDir()

		if homeDir != "" {
			trimmed := strings.TrimPrefix(path, "~")
			trimmed = strings.TrimPrefix(trimmed, string(os.PathSeparator))

			return filepath.Join(homeDir, trimmed)
		}
	}

	return path
}
