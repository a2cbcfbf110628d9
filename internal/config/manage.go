package config

import (
	"fmt"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	Secret bool
}

// ShowAll lists every key with its effective value. Secret values are
// masked; only whether they are set is shown.
func ShowAll(cfg Config) []KeyInfo {
	result := make([]KeyInfo, 0, len(specs))
	for _, s := range specs {
		info := KeyInfo{Key: s.key, EnvVar: s.env, Secret: s.secret}
		v := fmt.Sprintf("%v", s.extract(cfg))
		switch {
		case !s.secret:
			info.Value = v
		case v != "":
			info.Value = "(set)"
		default:
			info.Value = "(unset)"
		}
		result = append(result, info)
	}
	return result
}

// SetKey validates value against the key's type and writes it to the
// config file.
func SetKey(key, value string) error {
	f, err := openConfigFile(configFilePath())
	if err != nil {
		return err
	}
	return setKey(f, key, value)
}

// UnsetKey removes key from the config file so its default applies again.
func UnsetKey(key string) error {
	f, err := openConfigFile(configFilePath())
	if err != nil {
		return err
	}
	return unsetKey(f, key)
}

func settable(key string) (keySpec, error) {
	s, ok := lookupSpec(key)
	if !ok {
		return keySpec{}, fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret {
		return keySpec{}, fmt.Errorf("cannot set secret %q via config; use environment variable %s", key, s.env)
	}
	return s, nil
}

func setKey(b backend, key, value string) error {
	s, err := settable(key)
	if err != nil {
		return err
	}
	v, err := s.parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s value for %s: %w", s.typ, key, err)
	}
	return b.set(s, v)
}

func unsetKey(b backend, key string) error {
	if _, err := settable(key); err != nil {
		return err
	}
	return b.unset(key)
}

// ValidKeys returns the list of settable config key names.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
