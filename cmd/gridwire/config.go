package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/gridwire/internal/config"
	"github.com/danmuck/gridwire/internal/protocol"
	"github.com/danmuck/gridwire/internal/protocol/catalog"
	"github.com/rs/zerolog/log"
)

// config.toml key mapping onto config.ServiceConfig.
type fileConfig struct {
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

// loadServiceConfig overlays the keys present in path onto the defaults.
// An empty path yields the defaults.
func loadServiceConfig(path string) (config.ServiceConfig, error) {
	cfg := config.DefaultServiceConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config.ServiceConfig{}, fmt.Errorf("load gridwire config: %w", err)
	}
	for _, key := range meta.Undecoded() {
		log.Warn().Str("key", key.String()).Str("path", path).Msg("unknown config key ignored")
	}

	if meta.IsDefined("node") {
		cfg.Node = strings.TrimSpace(raw.Node)
	}
	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("template_path") {
		cfg.TemplatePath = strings.TrimSpace(raw.TemplatePath)
	}
	if meta.IsDefined("max_datagram_size") {
		cfg.MaxDatagramSize = raw.MaxDatagramSize
	}
	if meta.IsDefined("max_expanded_size") {
		cfg.MaxExpandedSize = raw.MaxExpandedSize
	}
	if meta.IsDefined("read_buffer_size") {
		cfg.ReadBufferSize = raw.ReadBufferSize
	}
	if meta.IsDefined("write_timeout_ms") {
		cfg.WriteTimeoutMS = raw.WriteTimeoutMS
	}
	if meta.IsDefined("peer_idle_ms") {
		cfg.PeerIdleMS = raw.PeerIdleMS
	}
	if meta.IsDefined("respond_to_pings") {
		cfg.RespondToPings = raw.RespondToPings
	}
	if meta.IsDefined("capture_path") {
		cfg.CapturePath = strings.TrimSpace(raw.CapturePath)
	}
	if meta.IsDefined("capture_bucket") {
		cfg.CaptureBucket = strings.TrimSpace(raw.CaptureBucket)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if err := cfg.Validate(); err != nil {
		return config.ServiceConfig{}, fmt.Errorf("load gridwire config: %w", err)
	}
	return cfg, nil
}

// loadCodec builds the codec selected by the config at path.
func loadCodec(path string) (config.ServiceConfig, *protocol.Codec, error) {
	cfg, err := loadServiceConfig(path)
	if err != nil {
		return config.ServiceConfig{}, nil, err
	}
	reg, err := catalog.Open(os.ReadFile, cfg.TemplatePath)
	if err != nil {
		return config.ServiceConfig{}, nil, err
	}
	return cfg, protocol.NewCodec(reg, cfg.Limits()), nil
}
