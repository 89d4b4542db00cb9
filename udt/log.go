package udt

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the root logrus logger for a Socket from cfg's LogLevel
// and LogFile. An empty LogFile logs to stderr. Per-component loggers
// (connection, socket) are derived from this one with
// WithField("component", ...).
func NewLogger(cfg *Config) (logrus.FieldLogger, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level := cfg.LogLevel
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(parsed)

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		log.SetOutput(f)
	}

	return log, nil
}
