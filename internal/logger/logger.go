package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a zap logger with configurable level.
// Levels: "debug", "info", "warn", "error" (case-insensitive).
// With a logPath the output is production JSON in that file; without one it
// is a console encoder on stderr. Invalid levels fall back to info.
func NewLogger(logPath, logLevel string) (*zap.SugaredLogger, error) {
	var level zap.AtomicLevel
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	var config zap.Config
	if logPath == "" {
		config = zap.NewDevelopmentConfig()
		config.Development = false
		config.OutputPaths = []string{"stderr"}
		config.ErrorOutputPaths = []string{"stderr"}
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.OutputPaths = []string{logPath}
		config.ErrorOutputPaths = []string{logPath}
		config.EncoderConfig = zap.NewProductionEncoderConfig()
	}
	config.Level = level
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return logger.Sugar(), nil
}
