// Package logging constructs the process logger from configuration. The
// logger is built once at startup and passed into every component; no
// package in this module logs through global state.
package logging

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sonyccd/rarsms/internal/config"
)

// New builds a logrus logger from the logging configuration. Unknown levels
// fall back to info.
func New(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	}

	return log
}
