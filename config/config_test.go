package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	server "github.com/bhoriuchi/graphql-ws-server"
	"github.com/bhoriuchi/graphql-ws-server/config"
	"github.com/bhoriuchi/graphql-ws-server/logger"
	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadToml(t *testing.T) {
	path := writeFile(t, "server.toml", `
addr = ":9090"
log_level = "debug"
protocols = ["graphql-transport-ws"]
keep_alive = "15s"
keep_alive_mode = "ping"
allow_overwrite = true

[auth]
token_ttl = "1h"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "/graphql", cfg.Path)
	assert.Equal(t, logger.DebugLevel, cfg.Level())
	assert.Equal(t, []string{"graphql-transport-ws"}, cfg.Protocols)
	assert.Equal(t, "15s", cfg.KeepAlive)
	assert.Equal(t, "ping", cfg.KeepAliveMode)
	assert.True(t, cfg.AllowOverwrite)
	assert.Equal(t, "1h", cfg.Auth.TokenTTL)
	assert.Equal(t, config.TransportGorilla, cfg.Transport)
}

func TestLoadYaml(t *testing.T) {
	path := writeFile(t, "server.yml", `
path: /subscriptions
transport: nhooyr
disconnect_after_any_error: true
max_message_size: 2048
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "/subscriptions", cfg.Path)
	assert.Equal(t, config.TransportNhooyr, cfg.Transport)
	assert.True(t, cfg.DisconnectAfterAnyError)
	assert.Equal(t, 2048, cfg.MaxMessageSize)
	assert.Len(t, cfg.Protocols, 2)
}

func TestLoadErrors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = config.Load(writeFile(t, "server.json", `{}`))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = config.Load(writeFile(t, "server.toml", `addr = `))
	assert.Error(t, err)

	_, err = config.Load(writeFile(t, "server.toml", `keep_alive = "soon"`))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *config.Config)
	}{
		{"empty addr", func(c *config.Config) { c.Addr = "" }},
		{"relative path", func(c *config.Config) { c.Path = "graphql" }},
		{"log level", func(c *config.Config) { c.LogLevel = "loud" }},
		{"log format", func(c *config.Config) { c.LogFormat = "xml" }},
		{"no protocols", func(c *config.Config) { c.Protocols = nil }},
		{"unknown protocol", func(c *config.Config) { c.Protocols = []string{"graphql-sse"} }},
		{"negative timeout", func(c *config.Config) { c.InitTimeout = "-1s" }},
		{"keep alive mode", func(c *config.Config) { c.KeepAliveMode = "both" }},
		{"transport", func(c *config.Config) { c.Transport = "quic" }},
		{"buffer size", func(c *config.Config) { c.ReceiveBufferSize = -1 }},
	}

	assert.NoError(t, config.Default().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.modify(&cfg)
			assert.ErrorIs(t, cfg.Validate(), config.ErrInvalidConfig)
		})
	}
}

func TestOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Protocols = []string{"graphql-ws"}
	cfg.Transport = config.TransportNhooyr
	cfg.Auth.FernetKeys = []string{testKey(t)}

	opts, err := cfg.Options()
	require.NoError(t, err)

	s := server.New(opts...)
	assert.Equal(t, []string{"graphql-ws"}, s.Protocols())

	cfg.Auth.FernetKeys = []string{"not a key"}
	_, err = cfg.Options()
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func testKey(t *testing.T) string {
	t.Helper()
	var k fernet.Key
	require.NoError(t, k.Generate())
	return k.Encode()
}

func TestLogFunc(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "warn"

	for format, expect := range map[string]string{
		config.LogFormatLogfmt:  `level="error" msg="failed"`,
		config.LogFormatJSON:    `"message":"failed"`,
		config.LogFormatConsole: "failed",
	} {
		t.Run(format, func(t *testing.T) {
			buf := &bytes.Buffer{}
			cfg.LogFormat = format
			l := logger.NewLogWrapper(cfg.LogFunc(buf), nil)

			l.Infof("filtered")
			assert.Zero(t, buf.Len())

			l.Errorf("failed")
			assert.Contains(t, buf.String(), expect)
		})
	}
}
