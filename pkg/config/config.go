// Package config loads service configuration from defaults, an optional YAML
// file, a .env file and MESAI_* environment variables, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key, e.g. MESAI_QDRANT_ADDR.
const EnvPrefix = "MESAI"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Ollama    OllamaConfig    `mapstructure:"ollama"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Neo4j     Neo4jConfig     `mapstructure:"neo4j"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	History   HistoryConfig   `mapstructure:"history"`
	Export    ExportConfig    `mapstructure:"export"`
	OTel      OTelConfig      `mapstructure:"otel"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	CORSOrigin   string        `mapstructure:"cors_origin"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// MaxUploadMB bounds multipart uploads.
	MaxUploadMB int64 `mapstructure:"max_upload_mb"`
}

type QdrantConfig struct {
	Addr       string `mapstructure:"addr"`
	Collection string `mapstructure:"collection"`
}

type OllamaConfig struct {
	URL          string        `mapstructure:"url"`
	EmbedModel   string        `mapstructure:"embed_model"`
	ChatModel    string        `mapstructure:"chat_model"`
	EmbedTimeout time.Duration `mapstructure:"embed_timeout"`
	ChatTimeout  time.Duration `mapstructure:"chat_timeout"`
}

type EmbeddingConfig struct {
	Dims int `mapstructure:"dims"`
}

type RetrievalConfig struct {
	Threshold float32 `mapstructure:"threshold"`
	Limit     int     `mapstructure:"limit"`
	ListLimit int     `mapstructure:"list_limit"`
	UseGraph  bool    `mapstructure:"use_graph"`
}

// Neo4jConfig is optional; an empty URL disables the graph projection.
type Neo4jConfig struct {
	URL      string `mapstructure:"url"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

func (c Neo4jConfig) Enabled() bool { return c.URL != "" }

// NATSConfig is optional; an empty URL keeps ingestion in-process.
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

func (c NATSConfig) Enabled() bool { return c.URL != "" }

type IngestConfig struct {
	// RatePerSecond throttles embedding calls during bulk loads; 0 disables.
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
	// Async hands uploads to the NATS consumer instead of loading inline.
	Async bool `mapstructure:"async"`
}

type HistoryConfig struct {
	Path string `mapstructure:"path"`
}

type ExportConfig struct {
	Path string `mapstructure:"path"`
}

type OTelConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SlogLevel maps Level to a slog level, defaulting to Info.
func (c LogConfig) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origin", "*")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.max_upload_mb", 32)

	v.SetDefault("qdrant.addr", "localhost:6334")
	v.SetDefault("qdrant.collection", "mesai")

	v.SetDefault("ollama.url", "http://localhost:11434")
	v.SetDefault("ollama.embed_model", "all-minilm")
	v.SetDefault("ollama.chat_model", "llama3")
	v.SetDefault("ollama.embed_timeout", 30*time.Second)
	v.SetDefault("ollama.chat_timeout", 60*time.Second)

	v.SetDefault("embedding.dims", 384)

	v.SetDefault("retrieval.threshold", 0.7)
	v.SetDefault("retrieval.limit", 10)
	v.SetDefault("retrieval.list_limit", 100)
	v.SetDefault("retrieval.use_graph", true)

	v.SetDefault("neo4j.url", "")
	v.SetDefault("neo4j.user", "neo4j")
	v.SetDefault("neo4j.password", "")

	v.SetDefault("nats.url", "")

	v.SetDefault("ingest.rate_per_second", 10.0)
	v.SetDefault("ingest.burst", 1)
	v.SetDefault("ingest.async", false)

	v.SetDefault("history.path", "data/history.db")
	v.SetDefault("export.path", "data/employees.json")

	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.service_name", "mesai-api")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load builds a Config. path names an optional YAML file. envFiles are loaded
// into the process environment first; with none given, ./.env is tried.
// Missing .env files are ignored, variables already set are never replaced.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		warnings = append(warnings, fmt.Sprintf("retrieval threshold %.2f is outside [0, 1]", c.Retrieval.Threshold))
	}
	if c.Retrieval.Limit <= 0 {
		warnings = append(warnings, fmt.Sprintf("retrieval limit %d is not positive", c.Retrieval.Limit))
	}
	if c.Embedding.Dims <= 0 {
		warnings = append(warnings, fmt.Sprintf("embedding dims %d is not positive", c.Embedding.Dims))
	}
	if c.Neo4j.Enabled() && c.Neo4j.Password == "" {
		warnings = append(warnings, "neo4j url is set but password is empty")
	}
	if c.Ingest.Async && !c.NATS.Enabled() {
		warnings = append(warnings, "ingest.async is set without a nats url; uploads run inline")
	}
	if c.Ingest.RatePerSecond < 0 {
		warnings = append(warnings, fmt.Sprintf("ingest rate %.2f is negative", c.Ingest.RatePerSecond))
	}
	return warnings
}
