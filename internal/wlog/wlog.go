// Package wlog wires the core's structured logging. Every package logs
// through the single logrus logger returned by L, tagged with contextual
// fields (fs, path, kind) rather than ad-hoc fmt.Printf calls.
package wlog

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	once   sync.Once
	logger *logrus.Logger
)

// L returns the package-level logger, created lazily with sensible
// defaults (text formatter, Info level, stderr output).
func L() *logrus.Logger {
	once.Do(func() {
		logger = logrus.New()
		logger.SetOutput(os.Stderr)
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	})
	return logger
}

// SetLevel adjusts the verbosity of L().
func SetLevel(level logrus.Level) {
	L().SetLevel(level)
}
