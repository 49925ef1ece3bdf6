package api

import (
	"log"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/fastprodman/retailpay/internal/config"
)

// NewServer wraps the API router in an *http.Server with the configured
// timeouts.
func NewServer(cfg config.HTTPConfig, deps Deps) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(int(cfg.Port))),
		Handler:           NewRouter(deps),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: min(cfg.ReadTimeout, 5*time.Second),
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    64 << 10,
		ErrorLog:          slogErrorLog(deps.Logger),
	}
}

// slogErrorLog routes net/http's internal errors (TLS handshakes, hijack
// failures) through slog.
func slogErrorLog(l *slog.Logger) *log.Logger {
	if l == nil {
		l = slog.Default()
	}

	return slog.NewLogLogger(l.Handler(), slog.LevelWarn)
}
