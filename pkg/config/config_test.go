package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadLayers(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "livequeue.yaml", `
log_level: debug
api:
  base_url: https://chat.example.com
  user_id: u1
queue:
  transport: redis
  pool_max_incoming: 3
  fetch_timeout: 5s
redis:
  addr: redis:6379
`)
	envPath := writeFile(t, dir, ".env", "LIVEQUEUE_QUEUE_POOL_MAX_INCOMING=7\nLIVEQUEUE_API_TOKEN=secret\n")
	t.Setenv("LIVEQUEUE_API_TOKEN", "from-env")

	cfg, err := Load(cfgPath, envPath, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "text", cfg.LogFormat)
	require.Equal(t, "https://chat.example.com", cfg.API.BaseURL)
	require.Equal(t, "from-env", cfg.API.Token)
	require.Equal(t, TransportRedis, cfg.Queue.Transport)
	require.Equal(t, 7, cfg.Queue.PoolMaxIncoming)
	require.Equal(t, 5*time.Second, cfg.Queue.FetchTimeout)
	require.Equal(t, "redis:6379", cfg.Redis.Addr)
	require.Equal(t, "livechat:inquiry:", cfg.Redis.ChannelPrefix)
	require.Equal(t, "livechat.inquiries", cfg.RabbitMQ.Exchange)

	_, set := os.LookupEnv("LIVEQUEUE_QUEUE_POOL_MAX_INCOMING")
	require.False(t, set, "env files must not leak into the process environment")
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "nope.yaml"))
	require.ErrorContains(t, err, "read config")

	bad := writeFile(t, dir, "bad.yaml", "queue: [")
	_, err = Load(bad)
	require.ErrorContains(t, err, "parse config")

	amqpNoURL := writeFile(t, dir, "amqp.yaml", "queue:\n  transport: amqp\n")
	_, err = Load(amqpNoURL)
	require.ErrorContains(t, err, "rabbitmq.url is required")

	t.Setenv("LIVEQUEUE_QUEUE_FETCH_TIMEOUT", "soon")
	_, err = Load("")
	require.ErrorContains(t, err, "LIVEQUEUE_QUEUE_FETCH_TIMEOUT")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{"memory ok", func(c *Config) { c.Queue.Transport = TransportMemory }, ""},
		{"unknown transport", func(c *Config) { c.Queue.Transport = "carrier-pigeon" }, "unknown queue.transport"},
		{"ws without url", func(c *Config) { c.Queue.Transport = TransportWS }, "websocket.url is required"},
		{"redis without addr", func(c *Config) { c.Queue.Transport = TransportRedis; c.Redis.Addr = "" }, "redis.addr is required"},
		{"amqp sink without url", func(c *Config) { c.Queue.Transport = TransportMemory; c.Sound.Sink = "amqp" }, "amqp sound sink"},
		{"negative cap", func(c *Config) { c.Queue.Transport = TransportMemory; c.Queue.PoolMaxIncoming = -1 }, "pool_max_incoming"},
		{"bad log format", func(c *Config) { c.Queue.Transport = TransportMemory; c.LogFormat = "xml" }, "log_format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mut(&c)
			err := c.Validate()
			if tc.want == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c := Default()
	require.NoError(t, c.ApplyEnv(map[string]string{
		"LIVEQUEUE_SOUND_PREFERENCES_FROM_REDIS": "true",
		"LIVEQUEUE_REDIS_DB":                     "2",
		"UNRELATED":                              "x",
	}))
	require.True(t, c.Sound.PreferencesFromRedis)
	require.Equal(t, 2, c.Redis.DB)

	require.ErrorContains(t, c.ApplyEnv(map[string]string{"LIVEQUEUE_REDIS_DB": "two"}), "LIVEQUEUE_REDIS_DB")
}
