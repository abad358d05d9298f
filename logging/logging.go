// Package logging provides structured logging configuration.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration options.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|console
}

// New creates a new configured zap logger.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
			return nil, err
		}
	}

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "console"
	}

	var zcfg zap.Config
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.LevelKey = "level"
	zcfg.EncoderConfig.MessageKey = "msg"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}

	return logger.With(zap.String("service", "harlytics")), nil
}

// Sync flushes any buffered log entries.
func Sync(logger *zap.Logger) {
	_ = logger.Sync()
}

// Component returns a zap field for the component name.
func Component(name string) zap.Field { return zap.String("component", name) }

// Site returns a zap field for the visited site domain.
func Site(domain string) zap.Field { return zap.String("site", domain) }

// Mode returns a zap field for the crawl mode.
func Mode(mode string) zap.Field { return zap.String("mode", mode) }

// VisitID returns a zap field for a visit identifier.
func VisitID(id string) zap.Field { return zap.String("visit_id", id) }

// Host returns a zap field for a hostname.
func Host(host string) zap.Field { return zap.String("host", host) }

// Domain returns a zap field for a registrable domain.
func Domain(domain string) zap.Field { return zap.String("domain", domain) }

// Entity returns a zap field for an entity name.
func Entity(name string) zap.Field { return zap.String("entity", name) }

// Path returns a zap field for a filesystem path.
func Path(path string) zap.Field { return zap.String("path", path) }

// Count returns a zap field for a generic count.
func Count(n int) zap.Field { return zap.Int("count", n) }
