// Package config holds the settings of the index server.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultPort is the port the server listens on when nothing else is set.
	DefaultPort = 8000
	// DefaultFile is the file served on "/".
	DefaultFile = "./index.html"
	// DefaultCacheControl makes clients revalidate on every request.
	DefaultCacheControl = "no-cache"

	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	envPort = "INDEXSERV_PORT"
	envFile = "INDEXSERV_FILE"
)

// ErrInvalid is returned by Validate for any rejected field.
var ErrInvalid = errors.New("invalid config")

// Duration is a time.Duration that is read from JSON as a string
// like "5s" or as a number of seconds.
type Duration time.Duration

// Config is parsed from the json config file.
// Every field has a default, see Default.
type Config struct {
	Host            string   `json:"host"`
	Port            int      `json:"port" validate:"min=1,max=65535"`
	File            string   `json:"file" validate:"required"`
	CacheControl    string   `json:"cache_control"`
	CertFile        string   `json:"cert_file" validate:"required_with=KeyFile"`
	KeyFile         string   `json:"key_file" validate:"required_with=CertFile"`
	ReadTimeout     Duration `json:"read_timeout" validate:"min=0"`
	WriteTimeout    Duration `json:"write_timeout" validate:"min=0"`
	IdleTimeout     Duration `json:"idle_timeout" validate:"min=0"`
	ShutdownTimeout Duration `json:"shutdown_timeout" validate:"min=0"`
	MetricsPort     int      `json:"metrics_port" validate:"min=0,max=65535,nefield=Port"`
	LogLevel        string   `json:"log_level" validate:"oneof=debug info warn error"`
}

// Default returns the configuration matching the behaviour of the
// original script: port 8000 and ./index.html.
func Default() *Config {
	return &Config{
		Port:            DefaultPort,
		File:            DefaultFile,
		CacheControl:    DefaultCacheControl,
		ReadTimeout:     Duration(defaultReadTimeout),
		WriteTimeout:    Duration(defaultWriteTimeout),
		IdleTimeout:     Duration(defaultIdleTimeout),
		ShutdownTimeout: Duration(defaultShutdownTimeout),
		LogLevel:        "info",
	}
}

// ApplyEnv overrides the port and the file from the environment.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(envPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, envPort, v)
		}
		c.Port = port
	}
	if v := os.Getenv(envFile); v != "" {
		c.File = v
	}
	return nil
}

var validate = validator.New()

// Validate checks the ranges of the ports, that a file is set
// and that TLS settings come in pairs.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		return fmt.Errorf("%w: field %s failed on %q (value %v)", ErrInvalid, e.Field(), e.Tag(), e.Value())
	}
	return fmt.Errorf("%w: %s", ErrInvalid, err)
}

// Address is the listen address of the file server.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// MetricsAddress is the listen address of the metrics endpoint.
// It is empty when metrics are switched off.
func (c *Config) MetricsAddress() string {
	if c.MetricsPort == 0 {
		return ""
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.MetricsPort))
}

// TLS reports whether both the certificate and the key are set.
func (c *Config) TLS() bool {
	return c.CertFile != "" && c.KeyFile != ""
}
