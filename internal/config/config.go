// Package config holds the gridwire service configuration: defaults,
// validation, strict TOML loading and the commented template written by
// configgen.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/danmuck/gridwire/internal/circuit"
	"github.com/danmuck/gridwire/internal/logging"
	"github.com/danmuck/gridwire/internal/protocol"
	"github.com/pelletier/go-toml/v2"
)

const minReadBuffer = 1024

// ServiceConfig is the flat key set of a gridwire config.toml.
type ServiceConfig struct {
	Node            string   `toml:"node"`
	ListenAddr      string   `toml:"listen_addr"`
	AdminAddr       string   `toml:"admin_addr"`
	CorsOrigins     []string `toml:"cors_origins"`
	TemplatePath    string   `toml:"template_path"`
	MaxDatagramSize int      `toml:"max_datagram_size"`
	MaxExpandedSize int      `toml:"max_expanded_size"`
	ReadBufferSize  int      `toml:"read_buffer_size"`
	WriteTimeoutMS  int      `toml:"write_timeout_ms"`
	PeerIdleMS      int      `toml:"peer_idle_ms"`
	RespondToPings  bool     `toml:"respond_to_pings"`
	CapturePath     string   `toml:"capture_path"`
	CaptureBucket   string   `toml:"capture_bucket"`
	LogLevel        string   `toml:"log_level"`
}

func DefaultServiceConfig() ServiceConfig {
	limits := protocol.DefaultLimits()
	c := circuit.DefaultConfig()
	return ServiceConfig{
		Node:            "gridwire",
		ListenAddr:      c.ListenAddr,
		AdminAddr:       "127.0.0.1:9180",
		CorsOrigins:     []string{"http://localhost:3000"},
		MaxDatagramSize: limits.MaxDatagramSize,
		MaxExpandedSize: limits.MaxExpandedSize,
		ReadBufferSize:  c.ReadBufferSize,
		WriteTimeoutMS:  int(c.WriteTimeout / time.Millisecond),
		PeerIdleMS:      int(c.PeerIdleAfter / time.Millisecond),
		RespondToPings:  c.RespondToPings,
		CaptureBucket:   "circuit",
		LogLevel:        "info",
	}
}

func (c ServiceConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Node) == "" {
		errs = append(errs, errors.New("node is required"))
	}
	if err := checkAddr("listen_addr", c.ListenAddr); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.AdminAddr) != "" {
		if err := checkAddr("admin_addr", c.AdminAddr); err != nil {
			errs = append(errs, err)
		}
	}
	if c.MaxDatagramSize < 0 || c.MaxExpandedSize < 0 {
		errs = append(errs, errors.New("size limits must not be negative"))
	}
	if c.MaxExpandedSize > 0 && c.MaxDatagramSize > c.MaxExpandedSize {
		errs = append(errs, errors.New("max_expanded_size must be >= max_datagram_size"))
	}
	if c.ReadBufferSize < minReadBuffer {
		errs = append(errs, fmt.Errorf("read_buffer_size must be >= %d", minReadBuffer))
	}
	if c.WriteTimeoutMS < 0 || c.PeerIdleMS < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if strings.TrimSpace(c.CapturePath) != "" && strings.TrimSpace(c.CaptureBucket) == "" {
		errs = append(errs, errors.New("capture_bucket is required when capture_path is set"))
	}
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config invalid: %w", errors.Join(errs...))
	}
	return nil
}

func checkAddr(key, addr string) error {
	if _, _, err := net.SplitHostPort(strings.TrimSpace(addr)); err != nil {
		return fmt.Errorf("%s %q: %w", key, addr, err)
	}
	return nil
}

// Limits returns the codec limits this config selects.
func (c ServiceConfig) Limits() protocol.Limits {
	return protocol.Limits{
		MaxDatagramSize: c.MaxDatagramSize,
		MaxExpandedSize: c.MaxExpandedSize,
	}
}

// Circuit maps the config onto endpoint settings. Backoff keeps its defaults.
func (c ServiceConfig) Circuit() circuit.Config {
	out := circuit.DefaultConfig()
	out.ListenAddr = c.ListenAddr
	out.ReadBufferSize = c.ReadBufferSize
	out.WriteTimeout = time.Duration(c.WriteTimeoutMS) * time.Millisecond
	out.PeerIdleAfter = time.Duration(c.PeerIdleMS) * time.Millisecond
	out.RespondToPings = c.RespondToPings
	return out
}

// Load reads path over the defaults. Unknown keys are rejected.
func Load(path string) (ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ServiceConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg := DefaultServiceConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return ServiceConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return ServiceConfig{}, err
	}
	return cfg, nil
}

const templateHeader = `# gridwire service config.
# template_path empty uses the embedded message template.
# capture_path empty disables datagram capture.
`

// Template renders the defaults as TOML.
func Template() (string, error) {
	body, err := toml.Marshal(DefaultServiceConfig())
	if err != nil {
		return "", fmt.Errorf("render config template: %w", err)
	}
	return templateHeader + "\n" + string(body), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
