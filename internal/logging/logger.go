package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/edvin/tenancy/internal/config"
)

// NewLogger creates a structured zerolog.Logger with observability context
// fields from the config.
func NewLogger(cfg *config.Config) zerolog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg *config.Config) zerolog.Logger {
	ctx := zerolog.New(w).With().Timestamp()

	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}
	if cfg.ConnectionProvider != "" {
		ctx = ctx.Str("connection_provider", cfg.ConnectionProvider)
	}
	if !cfg.MultiTenancyEnabled {
		ctx = ctx.Str("global_tenant", cfg.GlobalTenantID)
	}

	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
