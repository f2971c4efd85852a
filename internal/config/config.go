package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Database   DatabaseConfig
	Redis      RedisConfig      `envPrefix:"REDIS_"`
	Kafka      KafkaConfig      `envPrefix:"KAFKA_"`
	Payme      PaymeConfig      `envPrefix:"PAYME_"`
	Click      ClickConfig      `envPrefix:"CLICK_"`
	Redirect   RedirectConfig   `envPrefix:"REDIRECT_"`
	Fiscal     FiscalConfig     `envPrefix:"FISCAL_"`
	Catalog    CatalogConfig    `envPrefix:"CATALOG_"`
	Completion CompletionConfig `envPrefix:"COMPLETION_"`
	Auth       AuthConfig
}

type ServerConfig struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8084"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"45s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type LogConfig struct {
	Dir   string `env:"LOG_DIR" envDefault:"logs"`
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

type DatabaseConfig struct {
	DSN            string        `env:"POSTGRES_DSN"`
	MigrationsDir  string        `env:"MIGRATIONS_DIR" envDefault:"./migrations"`
	AutoMigrate    bool          `env:"AUTO_MIGRATE" envDefault:"true"`
	MaxOpenConns   int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns   int           `env:"DB_MAX_IDLE_CONNS" envDefault:"25"`
	MaxLifetime    time.Duration `env:"DB_MAX_LIFETIME" envDefault:"5m"`
	ConnectRetries int           `env:"DB_CONNECT_RETRIES" envDefault:"5"`
}

type RedisConfig struct {
	Enabled bool          `env:"ENABLED" envDefault:"true"`
	Addr    string        `env:"ADDR" envDefault:"localhost:6379"`
	LockTTL time.Duration `env:"LOCK_TTL" envDefault:"10s"`
}

type KafkaConfig struct {
	Enabled bool     `env:"ENABLED" envDefault:"true"`
	Brokers []string `env:"BROKERS" envDefault:"localhost:9092" envSeparator:","`
	GroupID string   `env:"GROUP_ID" envDefault:"payment-gateway-group"`
	Topics  TopicConfig
}

type TopicConfig struct {
	PaymentCaptured string `env:"TOPIC_CAPTURED" envDefault:"payments.captured"`
	PaymentRefunded string `env:"TOPIC_REFUNDED" envDefault:"payments.refunded"`
	OrderCompleted  string `env:"TOPIC_COMPLETED" envDefault:"orders.completed"`
	OrderStatus     string `env:"TOPIC_ORDER_STATUS" envDefault:"orders.status"`
}

// All returns every topic the service produces to or consumes from.
func (t TopicConfig) All() []string {
	return []string{t.PaymentCaptured, t.PaymentRefunded, t.OrderCompleted, t.OrderStatus}
}

type PaymeConfig struct {
	MerchantID  string        `env:"MERCHANT_ID"`
	Key         string        `env:"KEY"`
	CheckoutURL string        `env:"CHECKOUT_URL" envDefault:"https://checkout.paycom.uz"`
	AccountKey  string        `env:"ACCOUNT_KEY" envDefault:"order_id"`
	TxTimeout   time.Duration `env:"TX_TIMEOUT" envDefault:"12h"`
}

type ClickConfig struct {
	ServiceID  string `env:"SERVICE_ID"`
	MerchantID string `env:"MERCHANT_ID"`
	SecretKey  string `env:"SECRET_KEY"`
	PayURL     string `env:"PAY_URL" envDefault:"https://my.click.uz/services/pay"`
	ReturnURL  string `env:"RETURN_URL"`
}

type RedirectConfig struct {
	SuccessURL   string        `env:"SUCCESS_URL" envDefault:"/checkout/success"`
	FailureURL   string        `env:"FAILURE_URL" envDefault:"/checkout/failed"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"500ms"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

type FiscalConfig struct {
	Policy    string `env:"POLICY" envDefault:"block"`
	Tolerance int64  `env:"TOLERANCE" envDefault:"1"`
}

type CatalogConfig struct {
	BaseURL      string        `env:"BASE_URL"`
	TokenURL     string        `env:"TOKEN_URL"`
	ClientID     string        `env:"CLIENT_ID"`
	ClientSecret string        `env:"CLIENT_SECRET"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"3s"`
	RatePerSec   float64       `env:"RATE_PER_SEC" envDefault:"20"`
}

// Enabled reports whether fiscal codes can be looked up remotely.
func (c CatalogConfig) Enabled() bool {
	return c.BaseURL != "" && c.TokenURL != ""
}

type CompletionConfig struct {
	Delay         time.Duration `env:"DELAY" envDefault:"30s"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	Concurrency   int           `env:"CONCURRENCY" envDefault:"8"`
}

type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET"`
}

// Load parses the process environment. Call godotenv.Load first if a .env
// file should be honoured.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("POSTGRES_DSN not set"))
	}
	if c.Payme.MerchantID == "" || c.Payme.Key == "" {
		errs = append(errs, errors.New("PAYME_MERCHANT_ID and PAYME_KEY must be set"))
	}
	if c.Click.ServiceID == "" || c.Click.SecretKey == "" {
		errs = append(errs, errors.New("CLICK_SERVICE_ID and CLICK_SECRET_KEY must be set"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET not set"))
	}
	switch c.Fiscal.Policy {
	case "block", "warn":
	default:
		errs = append(errs, fmt.Errorf("FISCAL_POLICY must be block or warn, got %q", c.Fiscal.Policy))
	}
	if c.Redirect.PollInterval <= 0 || c.Redirect.Timeout < c.Redirect.PollInterval {
		errs = append(errs, errors.New("REDIRECT_POLL_INTERVAL must be positive and not exceed REDIRECT_TIMEOUT"))
	}
	return errors.Join(errs...)
}
