// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration parsed from environment variables.
// Unknown environment keys are ignored; missing keys fall back to the defaults
// declared here.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"local"`
	Port        int    `env:"PORT" envDefault:"3000"`

	// Worker fleet sizing. SOLVER_NUM_WORKERS overrides SOLVER_WORKER_SIZE
	// when both are set (legacy naming kept for compatibility).
	WorkerSize int `env:"SOLVER_WORKER_SIZE" envDefault:"1"`
	NumWorkers int `env:"SOLVER_NUM_WORKERS" envDefault:"0"`

	// Grace window the supervisor gives workers after a shutdown signal.
	WorkerShutdownGrace time.Duration `env:"SOLVER_SHUTDOWN_GRACE" envDefault:"10s"`

	RabbitMQHost     string `env:"RABBITMQ_HOST" envDefault:"localhost"`
	RabbitMQPort     int    `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUser     string `env:"RABBITMQ_USER" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQPoolSize int    `env:"RABBITMQ_POOL_SIZE" envDefault:"5"`
	// Work queue name: RABBITMQ_PROBLEMS_QUEUE_NAME is current,
	// RABBITMQ_PUZZLE_QUEUE_NAME the historical alias.
	ProblemsQueueName string `env:"RABBITMQ_PROBLEMS_QUEUE_NAME" envDefault:""`
	PuzzleQueueName   string `env:"RABBITMQ_PUZZLE_QUEUE_NAME" envDefault:"puzzle-jobs"`
	ResultQueueName   string `env:"RABBITMQ_RESULT_QUEUE_NAME" envDefault:"puzzle-results"`

	RedisHost           string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort           int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisDB             int    `env:"REDIS_DB" envDefault:"0"`
	RedisMaxConnections int    `env:"REDIS_MAX_CONNECTIONS" envDefault:"10"`

	Timezone string `env:"TIMEZONE" envDefault:"UTC"`

	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile      string `env:"LOG_FILE" envDefault:""`
	LogRotation  string `env:"LOG_ROTATION" envDefault:""`
	LogRetention string `env:"LOG_RETENTION" envDefault:""`

	// Solver back-ends. Time limit is the wall-clock cap per solve.
	SolverTimeLimit time.Duration `env:"SOLVER_TIME_LIMIT" envDefault:"300s"`
	SCIPBin         string        `env:"SCIP_BIN" envDefault:"scip"`
	GlucoseBin      string        `env:"GLUCOSE_BIN" envDefault:"glucose"`

	// Streaming defaults.
	StreamTTL time.Duration `env:"STREAM_TTL" envDefault:"300s"`
	// RedisFanout enables relaying result frames through Redis pubsub so
	// subscribers on other API instances observe them too.
	RedisFanout bool `env:"REDIS_FANOUT" envDefault:"false"`

	// Reconciliation sweep for orphan IN_QUEUE records.
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"0"`
	ReconcileMinAge   time.Duration `env:"RECONCILE_MIN_AGE" envDefault:"5m"`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"puzzler"`

	CORSAllowOrigins string `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	RateLimitPerMin  int    `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`

	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"0"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// WorkerCount resolves the fleet size from the two recognized keys.
func (c Config) WorkerCount() int {
	if c.NumWorkers > 0 {
		return c.NumWorkers
	}
	if c.WorkerSize > 0 {
		return c.WorkerSize
	}
	return 1
}

// WorkQueue resolves the work queue name, preferring the current key.
func (c Config) WorkQueue() string {
	if c.ProblemsQueueName != "" {
		return c.ProblemsQueueName
	}
	return c.PuzzleQueueName
}

// AMQPURL assembles the broker connection string.
func (c Config) AMQPURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", c.RabbitMQUser, c.RabbitMQPassword, c.RabbitMQHost, c.RabbitMQPort)
}

// RedisAddr assembles the KV store address.
func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsLocal reports whether the app runs in the local environment.
func (c Config) IsLocal() bool { return strings.ToLower(c.Environment) == "local" }

// IsProd reports whether the app runs in production.
func (c Config) IsProd() bool { return strings.ToLower(c.Environment) == "prod" }
