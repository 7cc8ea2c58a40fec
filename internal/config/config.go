package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	DBDSN         string `env:"DB_DSN"`
	HTTPAddr      string `env:"HTTP_ADDR" env-default:":8081"`
	StorageDriver string `env:"STORAGE_DRIVER" env-default:"postgres"`
	LogLevel      string `env:"LOG_LEVEL" env-default:"info"`
	HTTPServer    `env-prefix:"HTTP_"`
	DB            `env-prefix:"DB_"`
	Kafka         `env-prefix:"KAFKA_"`
	RateLimiter   `env-prefix:"RATE_LIMITER_"`
	Producer      `env-prefix:"PRODUCER_"`
	Monitor       `env-prefix:"MONITOR_"`
	Retry         `env-prefix:"RETRY_"`
}

type HTTPServer struct {
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" env-default:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" env-default:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"30s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" env-default:"10s"`
}

type DB struct {
	Host    string `env:"HOST" env-default:"localhost"`
	Port    string `env:"PORT" env-default:"5432"`
	User    string `env:"USER" env-default:"orders_user"`
	Pass    string `env:"PASSWORD" env-default:"orders_password"`
	Name    string `env:"NAME" env-default:"shopping"`
	SSLMode string `env:"SSLMODE" env-default:"disable"`
}

type Kafka struct {
	Enabled       bool          `env:"ENABLED" env-default:"false"`
	Brokers       []string      `env:"BROKERS" env-default:"localhost:9092" env-separator:","`
	Topic         string        `env:"TOPIC" env-default:"orders"`
	GroupID       string        `env:"GROUP_ID" env-default:"fruit-orders"`
	CommitTimeout time.Duration `env:"COMMIT_TIMEOUT" env-default:"10s"`
}

type RateLimiter struct {
	RPS     float64 `env:"RPS" env-default:"10"`
	Burst   int     `env:"BURST" env-default:"20"`
	Enabled bool    `env:"ENABLED" env-default:"true"`
}

type Producer struct {
	Count       int           `env:"COUNT" env-default:"20"`
	InvalidRate float64       `env:"INVALID_RATE" env-default:"0.2"`
	Delay       time.Duration `env:"DELAY" env-default:"2s"`
}

type Monitor struct {
	GoroutinesInterval time.Duration `env:"GOROUTINES_INTERVAL" env-default:"30s"`
	PprofEnabled       bool          `env:"PPROF_ENABLED" env-default:"false"`
	PprofAddr          string        `env:"PPROF_ADDR" env-default:":6060"`
}

// Retry bounds reconnect loops outside the request path: the startup
// database connect and the queue consumer.
type Retry struct {
	MaxElapsedTimeDB      time.Duration `env:"MAX_ELAPSED_TIME_DB" env-default:"30s"`
	MaxElapsedTimeConsume time.Duration `env:"MAX_ELAPSED_TIME_CONSUME" env-default:"1m"`
	InitialInterval       time.Duration `env:"INITIAL_INTERVAL" env-default:"100ms"`
	MaxInterval           time.Duration `env:"MAX_INTERVAL" env-default:"5s"`
}

// DSN returns DB_DSN when set, otherwise a URL assembled from the DB_* parts.
func (c *Config) DSN() string {
	if c.DBDSN != "" {
		return c.DBDSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}

// SlogLevel maps LOG_LEVEL to a slog level. Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.Monitor.GoroutinesInterval <= 0 {
		return fmt.Errorf("MONITOR_GOROUTINES_INTERVAL must be positive, got %s", c.Monitor.GoroutinesInterval)
	}
	if c.Producer.Delay <= 0 {
		return fmt.Errorf("PRODUCER_DELAY must be positive, got %s", c.Producer.Delay)
	}
	return nil
}

// Load reads the environment, with .env as a local override source.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, reading from environment variables")
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		slog.Error("cannot read config from environment", "error", err)
		os.Exit(1)
	}
	return cfg
}
