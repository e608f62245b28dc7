// internal/infra/logger/logger.go
package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"ombudsman_deadline_notifier/internal/infra/config"
)

// Log is the global logger instance
var Log = logrus.New()

// Init initializes the global logger based on application configuration.
func Init(cfg *config.AppConfig) *logrus.Logger {
	Log.SetOutput(os.Stdout)
	Configure(Log, cfg.LogLevel, cfg.Environment)

	Log.Debugf("Log level set to: %s", Log.GetLevel().String())
	Log.Debugf("Log format set for environment: %s", cfg.Environment)
	return Log
}

// Configure applies level and formatter to l.
func Configure(l *logrus.Logger, level, environment string) {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		l.Warnf("Invalid log level '%s', defaulting to 'info'. Error: %v", level, err)
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	switch strings.ToLower(environment) {
	case "production", "staging":
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00", // ISO8601
		})
	default:
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
}
