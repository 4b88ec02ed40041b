package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "service.base_url", typ: kString, env: "CVSIFT_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Service.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Service.BaseURL },
	},
	{
		key: "service.api_key", typ: kString, env: "CVSIFT_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Service.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Service.APIKey },
	},
	{
		key: "service.streaming", typ: kBool, env: "CVSIFT_STREAMING",
		apply:   func(cfg *Config, v any) { cfg.Service.Streaming = v.(bool) },
		extract: func(cfg Config) any { return cfg.Service.Streaming },
	},
	{
		key: "service.request_timeout", typ: kString, env: "CVSIFT_REQUEST_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Service.RequestTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Service.RequestTimeout },
	},
	{
		key: "intake.max_file_size_mb", typ: kInt, env: "CVSIFT_MAX_FILE_SIZE_MB",
		apply:   func(cfg *Config, v any) { cfg.Intake.MaxFileSizeMB = v.(int) },
		extract: func(cfg Config) any { return cfg.Intake.MaxFileSizeMB },
	},
	{
		key: "intake.max_files", typ: kInt, env: "CVSIFT_MAX_FILES",
		apply:   func(cfg *Config, v any) { cfg.Intake.MaxFiles = v.(int) },
		extract: func(cfg Config) any { return cfg.Intake.MaxFiles },
	},
	{
		key: "results.sort_key", typ: kString, env: "CVSIFT_SORT_KEY",
		apply:   func(cfg *Config, v any) { cfg.Results.SortKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Results.SortKey },
	},
	{
		key: "results.min_match", typ: kFloat, env: "CVSIFT_MIN_MATCH",
		apply:   func(cfg *Config, v any) { cfg.Results.MinMatch = v.(float64) },
		extract: func(cfg Config) any { return cfg.Results.MinMatch },
	},
	{
		key: "log.level", typ: kString, env: "CVSIFT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func lookup(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
