package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/htmlindex"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix marks environment overrides. A double underscore separates the
// section from the key: RESUMEMATCH_MATCHER__TOP_K sets matcher.top_k.
const EnvPrefix = "RESUMEMATCH_"

type Config struct {
	Matcher  MatcherConfig  `yaml:"matcher" koanf:"matcher"`
	Server   ServerConfig   `yaml:"server" koanf:"server"`
	Database DatabaseConfig `yaml:"database" koanf:"database"`
	Log      LogConfig      `yaml:"log" koanf:"log"`
}

type MatcherConfig struct {
	TopK         int    `yaml:"top_k" koanf:"top_k"`
	Precision    int    `yaml:"precision" koanf:"precision"`
	Scorer       string `yaml:"scorer" koanf:"scorer"`
	Workers      int    `yaml:"workers" koanf:"workers"`
	TextEncoding string `yaml:"text_encoding" koanf:"text_encoding"`
	Stopwords    bool   `yaml:"stopwords" koanf:"stopwords"`
	SublinearTF  bool   `yaml:"sublinear_tf" koanf:"sublinear_tf"`
	MatchedTerms int    `yaml:"matched_terms" koanf:"matched_terms"`
}

type ServerConfig struct {
	Addr               string `yaml:"addr" koanf:"addr"`
	UploadDir          string `yaml:"upload_dir" koanf:"upload_dir"`
	KeepUploads        bool   `yaml:"keep_uploads" koanf:"keep_uploads"`
	MaxUploadMB        int64  `yaml:"max_upload_mb" koanf:"max_upload_mb"`
	RequestTimeoutSecs int    `yaml:"request_timeout_secs" koanf:"request_timeout_secs"`
	AllowAllOrigins    bool   `yaml:"allow_all_origins" koanf:"allow_all_origins"`
}

type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled" koanf:"enabled"`
	Driver  string `yaml:"driver" koanf:"driver"`
	DSN     string `yaml:"dsn" koanf:"dsn"`
	Debug   bool   `yaml:"debug" koanf:"debug"`
}

type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Pretty bool   `yaml:"pretty" koanf:"pretty"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Matcher: MatcherConfig{
			TopK:         3,
			Precision:    2,
			Scorer:       "cosine",
			Workers:      4,
			TextEncoding: "utf-8",
			MatchedTerms: 5,
		},
		Server: ServerConfig{
			Addr:               ":8080",
			UploadDir:          "uploads",
			MaxUploadMB:        32,
			RequestTimeoutSecs: 60,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "file:resume-matcher.db",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// LoadConfig reads the YAML file at path, if it exists, over the defaults and
// then applies RESUMEMATCH_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validScorers = map[string]bool{
	"cosine":  true,
	"chromem": true,
}

var validDrivers = map[string]bool{
	"sqlite":   true,
	"postgres": true,
	"pgdriver": true,
	"pq":       true,
}

func (c *Config) Validate() error {
	m := c.Matcher
	if m.TopK < 1 {
		return fmt.Errorf("matcher.top_k must be at least 1")
	}
	if m.Precision < 0 || m.Precision > 15 {
		return fmt.Errorf("matcher.precision must be between 0 and 15")
	}
	if !validScorers[m.Scorer] {
		return fmt.Errorf("invalid matcher.scorer %q: must be one of cosine, chromem", m.Scorer)
	}
	if m.Workers < 1 {
		return fmt.Errorf("matcher.workers must be at least 1")
	}
	if _, err := htmlindex.Get(m.TextEncoding); err != nil {
		return fmt.Errorf("invalid matcher.text_encoding %q: %w", m.TextEncoding, err)
	}
	if m.MatchedTerms < 0 {
		return fmt.Errorf("matcher.matched_terms must be non-negative")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.UploadDir == "" {
		return fmt.Errorf("server.upload_dir is required")
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.max_upload_mb must be positive")
	}
	if c.Server.RequestTimeoutSecs <= 0 {
		return fmt.Errorf("server.request_timeout_secs must be positive")
	}

	if c.Database.Enabled {
		if !validDrivers[c.Database.Driver] {
			return fmt.Errorf("invalid database.driver %q: must be one of sqlite, postgres, pq", c.Database.Driver)
		}
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required when the database is enabled")
		}
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level %q: %w", c.Log.Level, err)
	}
	return nil
}
