// Package config loads livequeue settings from a YAML file, optional .env
// files and LIVEQUEUE_* environment variables, in that order of precedence
// (later wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "LIVEQUEUE_"

const (
	TransportMemory = "memory"
	TransportAMQP   = "amqp"
	TransportRedis  = "redis"
	TransportWS     = "ws"
)

type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text | json
	Producer  string `yaml:"producer"`

	API       APIConfig       `yaml:"api"`
	Queue     QueueConfig     `yaml:"queue"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Redis     RedisConfig     `yaml:"redis"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Sound     SoundConfig     `yaml:"sound"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	UserID  string        `yaml:"user_id"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type QueueConfig struct {
	Transport       string        `yaml:"transport"`
	PoolMaxIncoming int           `yaml:"pool_max_incoming"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
}

type RabbitMQConfig struct {
	URL                  string        `yaml:"url"`
	Exchange             string        `yaml:"exchange"`
	RoutingPrefix        string        `yaml:"routing_prefix"`
	Prefetch             int           `yaml:"prefetch"`
	RetryAttempts        int           `yaml:"retry_attempts"`
	RetryDelay           time.Duration `yaml:"retry_delay"`
	NotificationExchange string        `yaml:"notification_exchange"`
	DeadLetterExchange   string        `yaml:"dead_letter_exchange"`
	DeadLetterQueue      string        `yaml:"dead_letter_queue"`
}

type RedisConfig struct {
	Addr              string `yaml:"addr"`
	Password          string `yaml:"password"`
	DB                int    `yaml:"db"`
	ChannelPrefix     string `yaml:"channel_prefix"`
	PreferencesPrefix string `yaml:"preferences_prefix"`
}

type WebSocketConfig struct {
	URL string `yaml:"url"`
}

// SoundConfig chooses where new-inquiry sounds go and the preference
// fallbacks used when the agent has none stored.
type SoundConfig struct {
	Sink                 string `yaml:"sink"` // log | amqp
	DefaultSound         string `yaml:"default_sound"`
	DefaultVolume        string `yaml:"default_volume"`
	PreferencesFromRedis bool   `yaml:"preferences_from_redis"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Producer:  "livequeue",
		API:       APIConfig{Timeout: 15 * time.Second},
		Queue: QueueConfig{
			Transport:    TransportAMQP,
			FetchTimeout: 10 * time.Second,
		},
		RabbitMQ: RabbitMQConfig{
			Exchange:             "livechat.inquiries",
			RoutingPrefix:        "inquiry",
			Prefetch:             32,
			RetryAttempts:        5,
			RetryDelay:           2 * time.Second,
			NotificationExchange: "notification.internal",
		},
		Redis: RedisConfig{
			Addr:              "localhost:6379",
			ChannelPrefix:     "livechat:inquiry:",
			PreferencesPrefix: "livechat:prefs:",
		},
		Sound: SoundConfig{Sink: "log"},
	}
}

// Load reads path (optional) over the defaults, then applies LIVEQUEUE_*
// variables from envFiles and finally from the process environment.
// Missing env files are skipped.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	env := map[string]string{}
	for _, f := range envFiles {
		vars, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return cfg, fmt.Errorf("read env file %s: %w", f, err)
		}
		for k, v := range vars {
			env[k] = v
		}
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, EnvPrefix) {
			env[k] = v
		}
	}
	if err := cfg.ApplyEnv(env); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from LIVEQUEUE_* keys in env.
func (c *Config) ApplyEnv(env map[string]string) error {
	for key, set := range c.bindings() {
		v, ok := env[EnvPrefix+key]
		if !ok {
			continue
		}
		if err := set(v); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
	}
	return nil
}

func (c *Config) bindings() map[string]func(string) error {
	return map[string]func(string) error{
		"LOG_LEVEL":                      str(&c.LogLevel),
		"LOG_FORMAT":                     str(&c.LogFormat),
		"PRODUCER":                       str(&c.Producer),
		"API_BASE_URL":                   str(&c.API.BaseURL),
		"API_USER_ID":                    str(&c.API.UserID),
		"API_TOKEN":                      str(&c.API.Token),
		"API_TIMEOUT":                    duration(&c.API.Timeout),
		"QUEUE_TRANSPORT":                str(&c.Queue.Transport),
		"QUEUE_POOL_MAX_INCOMING":        integer(&c.Queue.PoolMaxIncoming),
		"QUEUE_FETCH_TIMEOUT":            duration(&c.Queue.FetchTimeout),
		"RABBITMQ_URL":                   str(&c.RabbitMQ.URL),
		"RABBITMQ_EXCHANGE":              str(&c.RabbitMQ.Exchange),
		"RABBITMQ_ROUTING_PREFIX":        str(&c.RabbitMQ.RoutingPrefix),
		"RABBITMQ_PREFETCH":              integer(&c.RabbitMQ.Prefetch),
		"RABBITMQ_RETRY_ATTEMPTS":        integer(&c.RabbitMQ.RetryAttempts),
		"RABBITMQ_RETRY_DELAY":           duration(&c.RabbitMQ.RetryDelay),
		"RABBITMQ_NOTIFICATION_EXCHANGE": str(&c.RabbitMQ.NotificationExchange),
		"RABBITMQ_DEAD_LETTER_EXCHANGE":  str(&c.RabbitMQ.DeadLetterExchange),
		"RABBITMQ_DEAD_LETTER_QUEUE":     str(&c.RabbitMQ.DeadLetterQueue),
		"REDIS_ADDR":                     str(&c.Redis.Addr),
		"REDIS_PASSWORD":                 str(&c.Redis.Password),
		"REDIS_DB":                       integer(&c.Redis.DB),
		"REDIS_CHANNEL_PREFIX":           str(&c.Redis.ChannelPrefix),
		"REDIS_PREFERENCES_PREFIX":       str(&c.Redis.PreferencesPrefix),
		"WEBSOCKET_URL":                  str(&c.WebSocket.URL),
		"SOUND_SINK":                     str(&c.Sound.Sink),
		"SOUND_DEFAULT_SOUND":            str(&c.Sound.DefaultSound),
		"SOUND_DEFAULT_VOLUME":           str(&c.Sound.DefaultVolume),
		"SOUND_PREFERENCES_FROM_REDIS":   boolean(&c.Sound.PreferencesFromRedis),
		"METRICS_ADDR":                   str(&c.Metrics.Addr),
	}
}

func str(p *string) func(string) error {
	return func(v string) error { *p = v; return nil }
}

func integer(p *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*p = n
		return nil
	}
}

func duration(p *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*p = d
		return nil
	}
}

func boolean(p *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*p = b
		return nil
	}
}

// Validate checks the settings needed by the selected transport and sink.
func (c Config) Validate() error {
	var errs []error
	switch c.Queue.Transport {
	case TransportMemory:
	case TransportAMQP:
		if c.RabbitMQ.URL == "" {
			errs = append(errs, errors.New("rabbitmq.url is required for the amqp transport"))
		}
	case TransportRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis transport"))
		}
	case TransportWS:
		if c.WebSocket.URL == "" {
			errs = append(errs, errors.New("websocket.url is required for the ws transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown queue.transport %q", c.Queue.Transport))
	}
	switch c.Sound.Sink {
	case "log":
	case "amqp":
		if c.RabbitMQ.URL == "" {
			errs = append(errs, errors.New("rabbitmq.url is required for the amqp sound sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown sound.sink %q", c.Sound.Sink))
	}
	if c.Queue.PoolMaxIncoming < 0 {
		errs = append(errs, errors.New("queue.pool_max_incoming must not be negative"))
	}
	if c.Queue.FetchTimeout < 0 {
		errs = append(errs, errors.New("queue.fetch_timeout must not be negative"))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log_format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
