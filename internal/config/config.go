// Package config provides configuration structures and validation for the application.
// It handles environment-based configuration for the API gateway and the settlement worker,
// covering server settings, datastores, brokers, bill providers and ledger limits.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the complete application configuration with settings for all components.
// Each field represents a major subsystem's configuration and is validated during startup.
type Config struct {
	Application  ApplicationConfig
	Logging      LoggingConfig
	Server       ServerConfig
	Postgres     PostgresConfig
	MongoDB      MongoDBConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	RabbitMQ     RabbitMQConfig
	Notifier     NotifierConfig
	Auth         AuthConfig
	Gateway      GatewayConfig
	Orchestrator OrchestratorConfig
	Providers    []ProviderConfig
	Limits       LimitsConfig
	Settlement   SettlementConfig
	WorkerPool   WorkerPoolConfig
	Telemetry    TelemetryConfig
	Idempotency  IdempotencyConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// RedisConfig contains Redis configuration used by the idempotency store
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	PoolSize        int
	MinIdleConns    int
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Brokers           string
	NotificationTopic string
	AlertTopic        string // Settlement alerts that need manual reconciliation
	NumPartitions     int    // Number of partitions for topics
	ReplicationFactor int    // Replication factor for topics
	MaxWait           time.Duration
}

// RabbitMQConfig contains RabbitMQ configuration for the notification publisher
type RabbitMQConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// NotifierConfig selects the notification channel
type NotifierConfig struct {
	Driver  string // noop, kafka or rabbitmq
	Timeout time.Duration
}

// AuthConfig contains bearer token verification settings
type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	TokenTTL    time.Duration
}

// GatewayConfig contains payment gateway client settings
type GatewayConfig struct {
	Driver    string // midtrans or none
	BaseURL   string
	ServerKey string
	Timeout   time.Duration
}

// OrchestratorConfig contains provider selection and health monitoring settings
type OrchestratorConfig struct {
	Strategy            string
	AttemptTimeout      time.Duration
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
	DefaultMaxErrors    int
}

// ProviderConfig describes one registered bill provider
type ProviderConfig struct {
	Name          string
	Kind          string // http or sandbox
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Priority      int
	MaxErrors     int
	Categories    []string
	Active        bool
	Timeout       time.Duration
	SandboxPrice  decimal.Decimal
	SandboxFee    decimal.Decimal
}

// LimitsConfig contains ledger amount bounds
type LimitsConfig struct {
	TopUpMin    decimal.Decimal
	TopUpMax    decimal.Decimal
	TransferMax decimal.Decimal
}

// SettlementConfig contains pending settlement sweep settings
type SettlementConfig struct {
	SweepInterval time.Duration
	BatchSize     int
	MaxAttempts   int
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int // Maximum number of workers in the pool
}

// TelemetryConfig contains OpenTelemetry exporter settings.
// An empty endpoint disables exporting.
type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

// IdempotencyConfig contains Idempotency-Key replay settings
type IdempotencyConfig struct {
	TTL time.Duration
}

// validate performs comprehensive validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}

	// Validate Redis config
	if c.Redis.Addr == "" {
		validationErrors = append(validationErrors, "REDIS_ADDR is required")
	}

	// Validate notifier and its broker
	switch c.Notifier.Driver {
	case "noop":
	case "kafka":
		if c.Kafka.Brokers == "" {
			validationErrors = append(validationErrors, "KAFKA_BROKERS is required when NOTIFIER_DRIVER=kafka")
		}
		if c.Kafka.NotificationTopic == "" {
			validationErrors = append(validationErrors, "KAFKA_NOTIFICATION_TOPIC is required when NOTIFIER_DRIVER=kafka")
		}
	case "rabbitmq":
		if c.RabbitMQ.URL == "" {
			validationErrors = append(validationErrors, "RABBITMQ_URL is required when NOTIFIER_DRIVER=rabbitmq")
		}
		if c.RabbitMQ.Exchange == "" {
			validationErrors = append(validationErrors, "RABBITMQ_EXCHANGE is required when NOTIFIER_DRIVER=rabbitmq")
		}
	default:
		validationErrors = append(validationErrors, "NOTIFIER_DRIVER must be one of noop, kafka, rabbitmq")
	}
	if c.Notifier.Timeout <= 0 {
		validationErrors = append(validationErrors, "NOTIFIER_TIMEOUT must be greater than 0")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_MAX_WAIT must be greater than 0")
	}

	// Validate auth config
	if c.Auth.JWTSecret == "" {
		validationErrors = append(validationErrors, "JWT_SECRET is required")
	}

	// Validate gateway config
	switch c.Gateway.Driver {
	case "none":
	case "midtrans":
		if c.Gateway.BaseURL == "" {
			validationErrors = append(validationErrors, "GATEWAY_BASE_URL is required when GATEWAY_DRIVER=midtrans")
		}
		if c.Gateway.ServerKey == "" {
			validationErrors = append(validationErrors, "GATEWAY_SERVER_KEY is required when GATEWAY_DRIVER=midtrans")
		}
	default:
		validationErrors = append(validationErrors, "GATEWAY_DRIVER must be one of none, midtrans")
	}

	// Validate orchestrator config
	switch c.Orchestrator.Strategy {
	case "priority", "round_robin", "least_errors":
	default:
		validationErrors = append(validationErrors, "ORCHESTRATOR_STRATEGY must be one of priority, round_robin, least_errors")
	}
	if c.Orchestrator.AttemptTimeout <= 0 {
		validationErrors = append(validationErrors, "ORCHESTRATOR_ATTEMPT_TIMEOUT must be greater than 0")
	}
	if c.Orchestrator.HealthCheckInterval <= 0 {
		validationErrors = append(validationErrors, "ORCHESTRATOR_HEALTH_CHECK_INTERVAL must be greater than 0")
	}
	if c.Orchestrator.DefaultMaxErrors <= 0 {
		validationErrors = append(validationErrors, "ORCHESTRATOR_DEFAULT_MAX_ERRORS must be greater than 0")
	}

	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if seen[p.Name] {
			validationErrors = append(validationErrors, fmt.Sprintf("provider %q is declared twice", p.Name))
		}
		seen[p.Name] = true
		if p.Kind == "" {
			validationErrors = append(validationErrors, fmt.Sprintf("PROVIDER_%s_KIND is required", strings.ToUpper(p.Name)))
		}
		if len(p.Categories) == 0 {
			validationErrors = append(validationErrors, fmt.Sprintf("PROVIDER_%s_CATEGORIES is required", strings.ToUpper(p.Name)))
		}
	}

	// Validate limits
	if !c.Limits.TopUpMin.IsPositive() {
		validationErrors = append(validationErrors, "LIMITS_TOPUP_MIN must be greater than 0")
	}
	if c.Limits.TopUpMax.LessThan(c.Limits.TopUpMin) {
		validationErrors = append(validationErrors, "LIMITS_TOPUP_MAX must not be lower than LIMITS_TOPUP_MIN")
	}
	if !c.Limits.TransferMax.IsPositive() {
		validationErrors = append(validationErrors, "LIMITS_TRANSFER_MAX must be greater than 0")
	}

	// Validate settlement config
	if c.Settlement.SweepInterval <= 0 {
		validationErrors = append(validationErrors, "SETTLEMENT_SWEEP_INTERVAL must be greater than 0")
	}
	if c.Settlement.BatchSize <= 0 {
		validationErrors = append(validationErrors, "SETTLEMENT_BATCH_SIZE must be greater than 0")
	}
	if c.Settlement.MaxAttempts <= 0 {
		validationErrors = append(validationErrors, "SETTLEMENT_MAX_ATTEMPTS must be greater than 0")
	}

	// Validate WorkerPool config
	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	if c.Idempotency.TTL <= 0 {
		validationErrors = append(validationErrors, "IDEMPOTENCY_TTL must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
