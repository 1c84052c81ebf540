package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"gsd.app/relay/core/db"
)

type Config struct {
	OTel     OTelConfig
	Queue    QueueConfig
	Dispatch DispatchConfig
	Solver   SolverConfig
	Robot    RobotConfig
	Grid     GridConfig
	Submit   SubmitConfig
	Env      string
	Port     string
	RedisURL string
	DB       db.Config
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

type QueueBackend string

const (
	QueueBackendFile     QueueBackend = "file"
	QueueBackendRedis    QueueBackend = "redis"
	QueueBackendPostgres QueueBackend = "postgres"
)

type QueueConfig struct {
	Backend QueueBackend
	Path    string // file backend: job queue file
	DLQPath string // file backend: dead letter file, empty disables
	Key     string // redis key / postgres table name
	DLQKey  string // redis key / postgres table name for dead letters, empty disables
}

type DispatchConfig struct {
	Interval        time.Duration
	SolverTimeout   time.Duration
	MaxAttempts     int
	SendNullPayload bool
}

type SolverConfig struct {
	Path string
	Args []string
	Dir  string
}

type RobotConfig struct {
	Address      string // serial:///dev/rfcomm0, /dev/rfcomm0 or tcp://host:port
	BaudRate     int
	StatePath    string
	StatusStream string // redis stream for inbound robot payloads, empty disables
}

type GridConfig struct {
	Width  int
	Height int
}

type SubmitConfig struct {
	RateLimit float64 // commands per second, 0 disables
	RateBurst int
}

// Load loads configuration from environment variables.
// In development a .env file is read first when present.
func Load() (Config, error) {
	if getEnv("RELAY_ENV", "development") == "development" {
		_ = godotenv.Load(".env")
	}

	cfg := Config{
		Env:      getEnv("RELAY_ENV", "development"),
		Port:     getEnv("PORT", "3000"),
		RedisURL: getEnv("REDIS_URL", ""),
		DB: db.Config{
			DSN:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt32("DB_MAX_CONNS", 4),
			MinConns: getEnvInt32("DB_MIN_CONNS", 1),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "gsd-relay"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		Queue: QueueConfig{
			Backend: QueueBackend(getEnv("QUEUE_BACKEND", string(QueueBackendFile))),
			Path:    getEnv("QUEUE_PATH", "orders.json"),
			DLQPath: getEnv("QUEUE_DLQ_PATH", "orders_dead.json"),
			Key:     getEnv("QUEUE_KEY", "relay_jobs"),
			DLQKey:  getEnv("QUEUE_DLQ_KEY", "relay_jobs_dead"),
		},
		Dispatch: DispatchConfig{
			Interval:        getEnvDuration("DISPATCH_INTERVAL", 10*time.Second),
			SolverTimeout:   getEnvDuration("SOLVER_TIMEOUT", 60*time.Second),
			MaxAttempts:     getEnvInt("DISPATCH_MAX_ATTEMPTS", 1),
			SendNullPayload: getEnvBool("DISPATCH_NULL_HEARTBEAT", true),
		},
		Solver: SolverConfig{
			Path: getEnv("SOLVER_PATH", "./warehouse"),
			Args: getEnvList("SOLVER_ARGS"),
			Dir:  getEnv("SOLVER_DIR", ""),
		},
		Robot: RobotConfig{
			Address:      getEnv("ROBOT_ADDRESS", ""),
			BaudRate:     getEnvInt("ROBOT_BAUD_RATE", 115200),
			StatePath:    getEnv("ROBOT_STATE_PATH", "robot.json"),
			StatusStream: getEnv("ROBOT_STATUS_STREAM", "robot-status"),
		},
		Grid: GridConfig{
			Width:  getEnvInt("GRID_WIDTH", 7),
			Height: getEnvInt("GRID_HEIGHT", 7),
		},
		Submit: SubmitConfig{
			RateLimit: getEnvFloat("SUBMIT_RATE_LIMIT", 0),
			RateBurst: getEnvInt("SUBMIT_RATE_BURST", 5),
		},
	}

	switch cfg.Queue.Backend {
	case QueueBackendFile:
		if cfg.Queue.Path == "" {
			return Config{}, fmt.Errorf("QUEUE_PATH is required for the file queue backend")
		}
	case QueueBackendRedis:
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL is required for the redis queue backend")
		}
	case QueueBackendPostgres:
		if cfg.DB.DSN == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required for the postgres queue backend")
		}
	default:
		return Config{}, fmt.Errorf("unknown QUEUE_BACKEND %q", cfg.Queue.Backend)
	}

	if cfg.Dispatch.Interval <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_INTERVAL must be positive")
	}
	if cfg.Dispatch.MaxAttempts < 1 {
		cfg.Dispatch.MaxAttempts = 1
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c Config) RedisEnabled() bool {
	return c.RedisURL != ""
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c RobotConfig) Enabled() bool {
	return c.Address != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("10s") or a bare number of seconds ("10").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvList(key string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	return strings.Fields(value)
}
