package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PostgresConfig struct {
	DSN             string        `env:"PG_DSN"`
	MaxOpenConns    int           `env:"PG_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `env:"PG_MAX_IDLE_CONNS" default:"10"`
	ConnMaxIdleTime time.Duration `env:"PG_CONN_MAX_IDLE_TIME" default:"5m"`
	ConnMaxLifetime time.Duration `env:"PG_CONN_MAX_LIFETIME" default:"30m"`
	// LockTimeout bounds how long a wallet row lock is waited for.
	LockTimeout time.Duration `env:"PG_LOCK_TIMEOUT" default:"3s"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" default:""`
	Password string `env:"REDIS_PASSWORD" default:""`
	DB       int    `env:"REDIS_DB" default:"0"`
	// Channel prefix for change-feed topics, e.g. "retailpay" -> "retailpay:order".
	ChannelPrefix string `env:"REDIS_CHANNEL_PREFIX" default:"retailpay"`
}

// RetryConfig bounds the retries done by provider clients on transient failures.
type RetryConfig struct {
	MaxAttempts     uint64        `env:"PROVIDER_RETRY_MAX_ATTEMPTS" default:"3"`
	InitialInterval time.Duration `env:"PROVIDER_RETRY_INITIAL_INTERVAL" default:"200ms"`
	MaxInterval     time.Duration `env:"PROVIDER_RETRY_MAX_INTERVAL" default:"2s"`
}

type RechargeProviderConfig struct {
	BaseURL  string        `env:"RECHARGE_API_URL"`
	APIKey   string        `env:"RECHARGE_API_KEY"`
	Timeout  time.Duration `env:"RECHARGE_API_TIMEOUT" default:"20s"`
	PlanTTL  time.Duration `env:"RECHARGE_PLAN_CACHE_TTL" default:"15m"`
	PlanSize int           `env:"RECHARGE_PLAN_CACHE_SIZE" default:"256"`
}

type GatewayConfig struct {
	BaseURL   string        `env:"GATEWAY_API_URL"`
	KeyID     string        `env:"GATEWAY_KEY_ID"`
	KeySecret string        `env:"GATEWAY_KEY_SECRET"`
	Timeout   time.Duration `env:"GATEWAY_API_TIMEOUT" default:"15s"`
}

type ReconcileConfig struct {
	// Interval of 0 disables the background worker; admins can still reconcile on demand.
	Interval  time.Duration `env:"RECONCILE_INTERVAL" default:"1m"`
	BatchSize int           `env:"RECONCILE_BATCH_SIZE" default:"50"`
	MinAge    time.Duration `env:"RECONCILE_MIN_AGE" default:"2m"`
}

type RegistrationFeeConfig struct {
	Base       string          `env:"REGISTRATION_FEE_BASE" default:"422.88"`
	TaxPercent decimal.Decimal `env:"REGISTRATION_FEE_TAX_PERCENT" default:"18"`
}

type HTTPConfig struct {
	Port uint16 `env:"HTTP_PORT" default:"8080"`
	// WriteTimeout must cover a provider call with all its retries.
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" default:"90s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" default:"60s"`
	CORSOrigins     []string      `env:"HTTP_CORS_ORIGINS" default:"*"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" default:"20s"`
}

// ErrMinAgeTooShort rejects a reconcile age that could catch a recharge call
// still in flight.
var ErrMinAgeTooShort = errors.New("RECONCILE_MIN_AGE must exceed the longest provider call")

// CallBudget is the longest a provider call with timeout can take with all
// its retries: every attempt times out and every backoff waits MaxInterval.
func (r RetryConfig) CallBudget(timeout time.Duration) time.Duration {
	attempts := max(r.MaxAttempts, 1)

	return timeout*time.Duration(attempts) + r.MaxInterval*time.Duration(attempts-1)
}

// Validate checks that orders are only treated as stale once the recharge
// call that created them must have returned.
func (c ReconcileConfig) Validate(recharge RechargeProviderConfig, retry RetryConfig) error {
	budget := retry.CallBudget(recharge.Timeout)
	if c.MinAge <= budget {
		return fmt.Errorf("%w: min age %s, call budget %s", ErrMinAgeTooShort, c.MinAge, budget)
	}

	return nil
}
