// Package config loads server settings from a TOML or YAML file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	server "github.com/bhoriuchi/graphql-ws-server"
	"github.com/bhoriuchi/graphql-ws-server/auth"
	"github.com/bhoriuchi/graphql-ws-server/logger"
	"github.com/bhoriuchi/graphql-ws-server/ws/connection"
	"github.com/bhoriuchi/graphql-ws-server/ws/protocol"
	"github.com/bhoriuchi/graphql-ws-server/ws/protocol/graphqltransportws"
	"github.com/bhoriuchi/graphql-ws-server/ws/protocol/graphqlws"
	"github.com/bhoriuchi/graphql-ws-server/ws/transport"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	TransportGorilla = "gorilla"
	TransportNhooyr  = "nhooyr"

	LogFormatConsole = "console"
	LogFormatJSON    = "json"
	LogFormatLogfmt  = "logfmt"
)

type Config struct {
	Addr                      string     `toml:"addr" yaml:"addr"`
	Path                      string     `toml:"path" yaml:"path"`
	LogLevel                  string     `toml:"log_level" yaml:"log_level"`
	LogFormat                 string     `toml:"log_format" yaml:"log_format"`
	Protocols                 []string   `toml:"protocols" yaml:"protocols"`
	InitTimeout               string     `toml:"init_timeout" yaml:"init_timeout"`
	KeepAlive                 string     `toml:"keep_alive" yaml:"keep_alive"`
	KeepAliveMode             string     `toml:"keep_alive_mode" yaml:"keep_alive_mode"`
	CloseTimeout              string     `toml:"close_timeout" yaml:"close_timeout"`
	DisconnectAfterAnyError   bool       `toml:"disconnect_after_any_error" yaml:"disconnect_after_any_error"`
	DisconnectAfterErrorEvent bool       `toml:"disconnect_after_error_event" yaml:"disconnect_after_error_event"`
	AllowOverwrite            bool       `toml:"allow_overwrite" yaml:"allow_overwrite"`
	ReceiveBufferSize         int        `toml:"receive_buffer_size" yaml:"receive_buffer_size"`
	MaxMessageSize            int        `toml:"max_message_size" yaml:"max_message_size"`
	Transport                 string     `toml:"transport" yaml:"transport"`
	Auth                      AuthConfig `toml:"auth" yaml:"auth"`
}

type AuthConfig struct {
	// FernetKeys enables fernet token authorization, the first key signs
	FernetKeys []string `toml:"fernet_keys" yaml:"fernet_keys"`
	TokenTTL   string   `toml:"token_ttl" yaml:"token_ttl"`
}

// Default returns the default configuration
func Default() Config {
	return Config{
		Addr:          ":8080",
		Path:          "/graphql",
		LogLevel:      "info",
		LogFormat:     LogFormatConsole,
		Protocols:     []string{graphqltransportws.Subprotocol, graphqlws.Subprotocol},
		InitTimeout:   "10s",
		KeepAliveMode: string(protocol.KeepAlivePong),
		CloseTimeout:  "5s",
		Transport:     TransportGorilla,
	}
}

// Load reads a .toml, .yaml or .yml file over the defaults
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("%w: unsupported config file type %q", ErrInvalidConfig, filepath.Ext(path))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func invalid(format string, v ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, v...))
}

func parseDuration(name, value string) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, invalid("parse %s: %s", name, err)
	}
	return d, nil
}

// Validate checks every field
func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return invalid("addr is required")
	}

	if !strings.HasPrefix(c.Path, "/") {
		return invalid("path must start with /")
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return invalid("%s", err)
	}

	switch c.LogFormat {
	case LogFormatConsole, LogFormatJSON, LogFormatLogfmt:
	default:
		return invalid("unsupported log_format %q", c.LogFormat)
	}

	if len(c.Protocols) == 0 {
		return invalid("at least one protocol is required")
	}

	for _, p := range c.Protocols {
		if p != graphqltransportws.Subprotocol && p != graphqlws.Subprotocol {
			return invalid("unsupported protocol %q", p)
		}
	}

	for name, value := range map[string]string{
		"init_timeout":  c.InitTimeout,
		"keep_alive":    c.KeepAlive,
		"close_timeout": c.CloseTimeout,
		"token_ttl":     c.Auth.TokenTTL,
	} {
		d, err := parseDuration(name, value)
		if err != nil {
			return err
		}
		if d < 0 && name != "token_ttl" {
			return invalid("%s cannot be negative", name)
		}
	}

	switch protocol.KeepAliveMode(c.KeepAliveMode) {
	case protocol.KeepAlivePong, protocol.KeepAlivePing:
	default:
		return invalid("unsupported keep_alive_mode %q", c.KeepAliveMode)
	}

	switch c.Transport {
	case TransportGorilla, TransportNhooyr:
	default:
		return invalid("unsupported transport %q", c.Transport)
	}

	if c.ReceiveBufferSize < 0 || c.MaxMessageSize < 0 {
		return invalid("buffer sizes cannot be negative")
	}

	return nil
}

// Level returns the parsed log level
func (c Config) Level() logger.Level {
	level, err := logger.ParseLevel(c.LogLevel)
	if err != nil {
		return logger.InfoLevel
	}
	return level
}

// LogFunc builds the log sink described by LogFormat and LogLevel
func (c Config) LogFunc(w io.Writer) logger.LogFunc {
	level := c.Level()

	switch c.LogFormat {
	case LogFormatLogfmt:
		return logger.NewLogfmtFunc(w, level)
	case LogFormatJSON:
		return logger.NewZerologFunc(zerolog.New(w).
			Level(logger.ZerologLevel(level)).
			With().Timestamp().Logger())
	}

	return logger.NewZerologFunc(zerolog.New(zerolog.ConsoleWriter{Out: w}).
		Level(logger.ZerologLevel(level)).
		With().Timestamp().Logger())
}

// Options converts the config into server options
func (c Config) Options() ([]server.Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	initTimeout, _ := parseDuration("init_timeout", c.InitTimeout)
	keepAlive, _ := parseDuration("keep_alive", c.KeepAlive)
	closeTimeout, _ := parseDuration("close_timeout", c.CloseTimeout)

	opts := []server.Option{
		server.WithProtocols(c.Protocols...),
		server.WithKeepAlive(keepAlive),
		server.WithKeepAliveMode(protocol.KeepAliveMode(c.KeepAliveMode)),
	}

	if initTimeout > 0 {
		opts = append(opts, server.WithInitTimeout(initTimeout))
	}

	if closeTimeout > 0 {
		opts = append(opts, server.WithCloseTimeout(closeTimeout))
	}

	if c.DisconnectAfterAnyError {
		opts = append(opts, server.WithDisconnectAfterAnyError())
	}

	if c.DisconnectAfterErrorEvent {
		opts = append(opts, server.WithDisconnectAfterErrorEvent())
	}

	if c.AllowOverwrite {
		opts = append(opts, server.WithAllowOverwrite())
	}

	if c.ReceiveBufferSize > 0 {
		opts = append(opts, server.WithReceiveBufferSize(c.ReceiveBufferSize))
	}

	if c.MaxMessageSize > 0 {
		opts = append(opts, server.WithMaxMessageSize(c.MaxMessageSize))
	}

	if c.Transport == TransportNhooyr {
		// the connection enforces the message limit, keep the library from closing first
		limit := c.MaxMessageSize
		if limit <= 0 {
			limit = connection.DefaultMaxMessageSize
		}
		opts = append(opts, server.WithAcceptor(&transport.NhooyrAcceptor{
			ReadLimit:          int64(limit) + 1,
			InsecureSkipVerify: true,
		}))
	}

	if len(c.Auth.FernetKeys) > 0 {
		ttl := time.Duration(-1)
		if c.Auth.TokenTTL != "" {
			ttl, _ = parseDuration("token_ttl", c.Auth.TokenTTL)
		}

		authorizer, err := auth.NewFernetAuthorizer(ttl, c.Auth.FernetKeys...)
		if err != nil {
			return nil, invalid("%s", err)
		}
		opts = append(opts, server.WithAuthorizer(authorizer))
	}

	return opts, nil
}
