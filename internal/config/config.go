package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/kalambet/cvsift/internal/intake"
	"github.com/kalambet/cvsift/internal/results"
)

const (
	keychainService = "cvsift"
	keychainAccount = "api_key"
)

type Config struct {
	Service ServiceConfig
	Intake  IntakeConfig
	Results ResultsConfig
	Log     LogConfig
}

type ServiceConfig struct {
	BaseURL        string
	APIKey         string
	Streaming      bool
	RequestTimeout string
}

type IntakeConfig struct {
	MaxFileSizeMB int
	MaxFiles      int
}

type ResultsConfig struct {
	SortKey  string
	MinMatch float64
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Service: ServiceConfig{
			BaseURL:        "http://localhost:8000",
			Streaming:      true,
			RequestTimeout: "60s",
		},
		Intake: IntakeConfig{
			MaxFileSizeMB: 10,
			MaxFiles:      50,
		},
		Results: ResultsConfig{
			SortKey: string(results.SortOverall),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.cvsift.app) and the API
// key falls back to macOS Keychain.
// Elsewhere the backend is a JSON file at $XDG_CONFIG_HOME/cvsift/config.json
// and the API key falls back to $XDG_DATA_HOME/cvsift/secrets.json.
//
// Environment variables (CVSIFT_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// The service may run without auth, so a missing key is not an error.
	if cfg.Service.APIKey == "" {
		if key, err := kc.Get(keychainService, keychainAccount); err == nil && key != "" {
			cfg.Service.APIKey = key
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.Service.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("service.base_url: %q is not an http(s) URL", c.Service.BaseURL))
	}
	if _, err := c.Timeout(); err != nil {
		errs = append(errs, err)
	}
	if c.Intake.MaxFileSizeMB <= 0 {
		errs = append(errs, fmt.Errorf("intake.max_file_size_mb: must be positive, got %d", c.Intake.MaxFileSizeMB))
	}
	if c.Intake.MaxFiles <= 0 {
		errs = append(errs, fmt.Errorf("intake.max_files: must be positive, got %d", c.Intake.MaxFiles))
	}
	if _, err := results.ParseSortKey(c.Results.SortKey); err != nil {
		errs = append(errs, fmt.Errorf("results.sort_key: %w", err))
	}
	if c.Results.MinMatch < 0 || c.Results.MinMatch > 100 {
		errs = append(errs, fmt.Errorf("results.min_match: must be between 0 and 100, got %v", c.Results.MinMatch))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Timeout is the per-request deadline for non-streaming calls. Zero keeps
// the client default.
func (c Config) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Service.RequestTimeout)
	if err != nil {
		return 0, fmt.Errorf("service.request_timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("service.request_timeout: must not be negative, got %s", d)
	}
	return d, nil
}

func (c Config) IntakeOptions() intake.Options {
	return intake.Options{
		MaxFileSize: int64(c.Intake.MaxFileSizeMB) << 20,
		MaxFiles:    c.Intake.MaxFiles,
	}
}

// SortKey falls back to overall match for an unparsable value.
func (c Config) SortKey() results.SortKey {
	k, err := results.ParseSortKey(c.Results.SortKey)
	if err != nil {
		return results.SortOverall
	}
	return k
}

func (c Config) Filter() results.Filter {
	return results.Filter{MinOverallMatch: c.Results.MinMatch}
}

func (c Config) LogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
