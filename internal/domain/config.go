package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// External collaborators
	Fraud        FraudConfig        `json:"fraud"`
	Payment      PaymentConfig      `json:"payment"`
	Subscription SubscriptionConfig `json:"subscription"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// FraudConfig selects and tunes the fraud-analysis provider.
type FraudConfig struct {
	// Provider is "embedded" (CEL analyzer) or "http" (remote scorer)
	Provider string `json:"provider"`

	// HTTP provider settings
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeoutSeconds"`

	// Embedded analyzer score thresholds (0.0-1.0)
	HighRiskThreshold  float64 `json:"highRiskThreshold"`
	PreferredThreshold float64 `json:"preferredThreshold"`
}

// PaymentConfig selects the payment processor implementation.
type PaymentConfig struct {
	// Mode is "static" (fixed outcome) or "bus" (request-reply over the event bus)
	Mode string `json:"mode"`

	// Static mode outcome
	StaticApprove bool `json:"staticApprove"`

	// Bus mode reply timeout
	TimeoutSeconds int `json:"timeoutSeconds"`
}

// SubscriptionConfig selects the subscription issuer implementation.
type SubscriptionConfig struct {
	// Mode is "static" or "bus"
	Mode string `json:"mode"`

	// Static mode: non-empty to simulate issuer failures
	StaticError string `json:"staticError"`

	// Bus mode reply timeout
	TimeoutSeconds int `json:"timeoutSeconds"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Fraud: FraudConfig{
			Provider:           "embedded",
			TimeoutSeconds:     5,
			HighRiskThreshold:  0.7,
			PreferredThreshold: 0.1,
		},
		Payment: PaymentConfig{
			Mode:           "static",
			StaticApprove:  true,
			TimeoutSeconds: 10,
		},
		Subscription: SubscriptionConfig{
			Mode:           "static",
			TimeoutSeconds: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Payment.Mode = "bus"
	cfg.Subscription.Mode = "bus"
	cfg.Tracing.Enabled = true
	return cfg
}
