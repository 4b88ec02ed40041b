package config

import (
	"fmt"
	"strconv"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	Secret bool
}

// ShowAll returns all config key/value pairs from the current config.
// Secret values are masked.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		info := KeyInfo{Key: s.key, EnvVar: s.env, Secret: s.secret}
		if s.secret {
			info.Value = "(not set)"
			if s.extract(cfg).(string) != "" {
				info.Value = "(set)"
			}
		} else {
			info.Value = fmt.Sprintf("%v", s.extract(cfg))
		}
		result = append(result, info)
	}
	return result
}

// SecretSource names where the API key is read from besides the environment.
func SecretSource() string {
	return "environment variable CVSIFT_API_KEY" + secretHint()
}

// SetKey validates value and writes it to the platform backend, or to the
// secret store for secret keys.
func SetKey(key, value string) error {
	return setKeyWith(newPlatformBackend(), keychainSet, key, value)
}

func setKeyWith(b ConfigBackend, setSecret func(service, account, value string) error, key, value string) error {
	s, ok := lookup(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	v, err := parseValue(s, value)
	if err != nil {
		return err
	}
	check := defaults()
	s.apply(&check, v)
	if err := check.Validate(); err != nil {
		return err
	}

	if s.secret {
		return setSecret(keychainService, keychainAccount, value)
	}
	switch s.typ {
	case kInt:
		return b.SetInt(key, v.(int))
	default:
		return b.SetString(key, value)
	}
}

func parseValue(s keySpec, raw string) (any, error) {
	switch s.typ {
	case kInt:
		i, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid integer value for %s: %w", s.key, err)
		}
		return i, nil
	case kBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid bool value for %s: %w", s.key, err)
		}
		return b, nil
	case kFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number value for %s: %w", s.key, err)
		}
		return f, nil
	}
	return raw, nil
}

// ValidKeys returns the list of valid config key names.
func ValidKeys() []string {
	keys := make([]string, 0, len(specs))
	for _, s := range specs {
		keys = append(keys, s.key)
	}
	return keys
}
