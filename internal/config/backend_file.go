package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
)

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "uqmarks")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "uqmarks-data"
	}
	return filepath.Join(home, ".local", "share", "uqmarks")
}

func configFilePath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "uqmarks", "config.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("uqmarks", "config.json")
	}
	return filepath.Join(home, ".config", "uqmarks", "config.json")
}

// configFile is a flat JSON object keyed by dotted key names, e.g.
// {"server.port": 9090, "scrape.auto_discover": true, "cache.ttl": "12h"}.
// Numbers and booleans are stored as JSON numbers and booleans. Hand-edited
// string forms ("9090", "true") are accepted on read.
type configFile struct {
	path   string
	values map[string]json.RawMessage
}

// openConfigFile reads path. A missing file is an empty config.
func openConfigFile(path string) (*configFile, error) {
	f := &configFile{path: path, values: make(map[string]json.RawMessage)}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := json.Unmarshal(data, &f.values); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return f, nil
}

func (f *configFile) value(s keySpec) (any, bool, error) {
	raw, ok := f.values[s.key]
	if !ok {
		return nil, false, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, true, fmt.Errorf("%s: %w", s.key, err)
	}

	switch x := v.(type) {
	case nil:
		return nil, false, nil
	case string:
		if x == "" && s.typ != kString {
			return nil, false, nil
		}
		pv, err := s.parse(x)
		if err != nil {
			return nil, true, fmt.Errorf("%s in %s: %w", s.key, f.path, err)
		}
		return pv, true, nil
	case float64:
		switch s.typ {
		case kFloat:
			return x, true, nil
		case kInt:
			if x != math.Trunc(x) || x < math.MinInt || x > math.MaxInt {
				return nil, true, fmt.Errorf("%s in %s: %v is not an integer", s.key, f.path, x)
			}
			return int(x), true, nil
		}
	case bool:
		if s.typ == kBool {
			return x, true, nil
		}
	}
	return nil, true, fmt.Errorf("%s in %s: %s is not a %s", s.key, f.path, raw, s.typ)
}

func (f *configFile) set(s keySpec, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", s.key, err)
	}
	f.values[s.key] = raw
	return f.save()
}

func (f *configFile) unset(key string) error {
	if _, ok := f.values[key]; !ok {
		return nil
	}
	delete(f.values, key)
	return f.save()
}

// save replaces the file through a rename so readers never see a partial write.
func (f *configFile) save() error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}
