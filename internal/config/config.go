package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration (file + env overrides)
type Config struct {
	Server struct {
		Addr      string `mapstructure:"addr"`
		LogLevel  string `mapstructure:"log_level"`
		LogFormat string `mapstructure:"log_format"` // console | json
	} `mapstructure:"server"`

	Storage struct {
		Backend string `mapstructure:"backend"` // postgres | dynamodb | memory
		Fixture string `mapstructure:"fixture"` // YAML seed for the memory backend
	} `mapstructure:"storage"`

	Postgres struct {
		Host         string `mapstructure:"host"`
		Port         int    `mapstructure:"port"`
		User         string `mapstructure:"user"`
		Password     string `mapstructure:"password"`
		DBName       string `mapstructure:"db_name"`
		SSLMode      string `mapstructure:"ssl_mode"`
		MaxOpenConns int    `mapstructure:"max_open_conns"`
		MaxIdleConns int    `mapstructure:"max_idle_conns"`
	} `mapstructure:"postgres"`

	DynamoDB struct {
		Table    string `mapstructure:"table"`
		Region   string `mapstructure:"region"`
		Endpoint string `mapstructure:"endpoint"`
	} `mapstructure:"dynamodb"`

	Worker struct {
		BaseURL        string `mapstructure:"base_url"`
		Path           string `mapstructure:"path"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"worker"`

	Listener struct {
		Channel          string `mapstructure:"channel"`
		ReconnectSeconds int    `mapstructure:"reconnect_seconds"`
	} `mapstructure:"listener"`

	Cache struct {
		// applies to backends without change notifications
		TTLSeconds int `mapstructure:"ttl_seconds"`
	} `mapstructure:"cache"`
}

const (
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"

	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// keys are bound explicitly so AutomaticEnv can see them without a config file.
var keys = []string{
	"server.addr", "server.log_level", "server.log_format",
	"storage.backend", "storage.fixture",
	"postgres.host", "postgres.port", "postgres.user", "postgres.password",
	"postgres.db_name", "postgres.ssl_mode", "postgres.max_open_conns", "postgres.max_idle_conns",
	"dynamodb.table", "dynamodb.region", "dynamodb.endpoint",
	"worker.base_url", "worker.path", "worker.timeout_seconds",
	"listener.channel", "listener.reconnect_seconds",
	"cache.ttl_seconds",
}

func Load() Config {
	cfg, err := LoadFrom("configs")
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadFrom reads application.yaml from dir (optional) and applies APP_* env overrides.
func LoadFrom(dir string) (Config, error) {
	v := viper.New()
	v.SetConfigName("application")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	_ = v.ReadInConfig() // optional; env can fully configure

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(c *Config) error {
	if c.Server.Addr == "" { c.Server.Addr = ":8080" }
	if c.Storage.Backend == "" { c.Storage.Backend = BackendPostgres }
	if c.Postgres.Port == 0 { c.Postgres.Port = 5432 }
	if c.Postgres.SSLMode == "" { c.Postgres.SSLMode = "disable" }
	if c.Postgres.MaxOpenConns == 0 { c.Postgres.MaxOpenConns = 10 }
	if c.Postgres.MaxIdleConns == 0 { c.Postgres.MaxIdleConns = 10 }
	if c.DynamoDB.Table == "" { c.DynamoDB.Table = "creative-dispatch" }
	if c.Worker.Path == "" { c.Worker.Path = "/api/integration-worker" }
	if c.Worker.TimeoutSeconds <= 0 { c.Worker.TimeoutSeconds = 30 }
	if c.Listener.Channel == "" { c.Listener.Channel = "integration_status_changed" }
	if c.Listener.ReconnectSeconds <= 0 { c.Listener.ReconnectSeconds = 5 }
	if c.Cache.TTLSeconds <= 0 { c.Cache.TTLSeconds = 5 }

	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	switch c.Storage.Backend {
	case BackendPostgres, BackendDynamoDB, BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	c.Server.LogFormat = strings.ToLower(strings.TrimSpace(c.Server.LogFormat))
	switch c.Server.LogFormat {
	case "":
		c.Server.LogFormat = LogFormatConsole
	case LogFormatConsole, LogFormatJSON:
	default:
		return fmt.Errorf("unknown log format %q", c.Server.LogFormat)
	}
	return nil
}

// RequireWorker reports whether worker.base_url names an absolute http(s) URL.
func (c Config) RequireWorker() error {
	if strings.TrimSpace(c.Worker.BaseURL) == "" {
		return errors.New("worker.base_url is not configured")
	}
	u, err := url.Parse(c.Worker.BaseURL)
	if err != nil {
		return fmt.Errorf("worker.base_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("worker.base_url %q is not an absolute http(s) URL", c.Worker.BaseURL)
	}
	return nil
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.DBName,
		c.Postgres.SSLMode,
	)
}

// WorkerURL is the full endpoint the dispatch client posts to.
func (c Config) WorkerURL() string {
	return strings.TrimRight(c.Worker.BaseURL, "/") + "/" + strings.TrimLeft(c.Worker.Path, "/")
}

func (c Config) WorkerTimeout() time.Duration { return time.Duration(c.Worker.TimeoutSeconds) * time.Second }

func (c Config) Backoff() time.Duration { return time.Duration(c.Listener.ReconnectSeconds) * time.Second }

func (c Config) CacheTTL() time.Duration { return time.Duration(c.Cache.TTLSeconds) * time.Second }
