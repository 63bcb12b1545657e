package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Reader reads the json config file.
type Reader struct {
	file *os.File
}

// NewReader opens the config file at configPath.
func NewReader(configPath string) (*Reader, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, err
	}
	return &Reader{file}, nil
}

// Close closes the config file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Read parses the file over the defaults, so the file only needs
// the fields it changes.
func (r *Reader) Read() (*Config, error) {
	return Decode(r.file)
}

// Decode parses json from rd over Default.
func Decode(rd io.Reader) (*Config, error) {
	configFileByte, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}

	config := Default()
	if err := json.Unmarshal(configFileByte, config); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, err)
	}

	return config, nil
}

// Load reads the file at path (if any) and applies the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		r, err := NewReader(path)
		if err != nil {
			return nil, err
		}
		defer r.Close()

		cfg, err = r.Read()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UnmarshalJSON accepts "1m30s" or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value * float64(time.Second)))
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", b)
	}
	return nil
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
