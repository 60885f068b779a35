package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `json:"server"`
	State    StateConfig    `json:"state"`
	Stream   StreamConfig   `json:"stream"`
	Database DatabaseConfig `json:"database"`
}

type ServerConfig struct {
	GRPCAddr             string `json:"grpc_addr" env:"CORE_GRPC_ADDR"`
	HTTPAddr             string `json:"http_addr" env:"CORE_HTTP_ADDR"`
	LogLevel             string `json:"log_level" env:"CORE_LOG_LEVEL"`
	MaxConcurrentStreams uint32 `json:"max_concurrent_streams" env:"CORE_MAX_CONCURRENT_STREAMS"`
}

type StateConfig struct {
	Path string `json:"path" env:"CORE_STATE_PATH"`
}

type StreamConfig struct {
	Keepalive Duration `json:"keepalive" env:"CORE_STREAM_KEEPALIVE"`
	Buffer    int      `json:"buffer" env:"CORE_STREAM_BUFFER"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
}

// PostgresConfig enables the snapshot archive when DSN is set. An empty
// Migrations uses the schema embedded in the binary.
type PostgresConfig struct {
	DSN        string `json:"dsn" env:"CORE_POSTGRES_DSN"`
	Migrations string `json:"migrations" env:"CORE_POSTGRES_MIGRATIONS"`
}

// RedisConfig enables the update mirror when URL is set.
type RedisConfig struct {
	URL    string `json:"url" env:"CORE_REDIS_URL"`
	Stream string `json:"stream" env:"CORE_REDIS_STREAM"`
	MaxLen int64  `json:"max_len" env:"CORE_REDIS_MAX_LEN"`
}

// Duration is a time.Duration written as "90s" or "1h" in JSON and env.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCAddr:             ":50051",
			HTTPAddr:             ":8080",
			LogLevel:             "info",
			MaxConcurrentStreams: 10,
		},
		State: StateConfig{
			Path: "data/cognitive_core.json",
		},
		Stream: StreamConfig{
			Keepalive: Duration(time.Hour),
			Buffer:    16,
		},
		Database: DatabaseConfig{
			Redis: RedisConfig{Stream: "cognitive:updates", MaxLen: 10000},
		},
	}
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file over the defaults, substituting environment
// variable references, then applies CORE_* overrides. A missing file is not
// an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		// Substitute ${VAR} and ${VAR:default} with environment values.
		resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
			parts := envVarRe.FindStringSubmatch(match)
			name := parts[1]
			defaultVal := parts[2]
			if v := os.Getenv(name); v != "" {
				return v
			}
			return defaultVal
		})
		if err := json.Unmarshal([]byte(resolved), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
