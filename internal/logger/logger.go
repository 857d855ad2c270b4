package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"loandocs/internal/config"
)

// New builds the process logger from configuration.
func New(cfg *config.AppConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Log.Format {
	case "console":
		zapCfg.Encoding = "console"
	default:
		zapCfg.Encoding = "json"
	}

	if cfg.Log.Level != "" {
		if err := zapCfg.Level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		}
	}

	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zapCfg.Build()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// GooseAdapter routes goose migration output through zap.
type GooseAdapter struct {
	S *zap.SugaredLogger
}

func (g GooseAdapter) Printf(format string, v ...interface{}) { g.S.Infof(format, v...) }
func (g GooseAdapter) Fatalf(format string, v ...interface{}) { g.S.Fatalf(format, v...) }
