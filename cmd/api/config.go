package main

import (
	"log/slog"
	"time"

	"github.com/fastprodman/retailpay/internal/config"
)

type apiConfig struct {
	LogLevel slog.Level `env:"APP_LOG_LEVEL" default:"INFO"`
	// BillTTL bounds how long a fetched bill may back a payment.
	BillTTL time.Duration `env:"BILL_FETCH_TTL" default:"30m"`

	HTTP      config.HTTPConfig
	Postgres  config.PostgresConfig
	Redis     config.RedisConfig
	Retry     config.RetryConfig
	Recharge  config.RechargeProviderConfig
	Gateway   config.GatewayConfig
	Reconcile config.ReconcileConfig
	Fee       config.RegistrationFeeConfig
}
