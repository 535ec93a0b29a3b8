package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const productionEnvironment = "production"

// New creates the process logger. Production uses JSON output at info level; every other
// environment gets a colored console encoder at debug level. Each entry carries the service name.
func New(environment, service string) (*zap.Logger, error) {
	var config zap.Config

	if environment == productionEnvironment {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	config.InitialFields = map[string]interface{}{
		"service":     service,
		"environment": environment,
	}

	return config.Build(zap.AddCaller())
}
