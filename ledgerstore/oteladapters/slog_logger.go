package oteladapters

import (
	"log/slog"

	"github.com/openshelf/circulation-ledger-go/ledgerstore"
)

// SlogLogger implements the plain ledgerstore.Logger interface over log/slog,
// for callers who do not need context-aware trace correlation.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a plain logger over an existing slog.Logger.
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{logger: logger}
}

// Debug logs a debug message.
func (l *SlogLogger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

// Info logs an info message.
func (l *SlogLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Warn logs a warning message.
func (l *SlogLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

// Error logs an error message.
func (l *SlogLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// Ensure SlogLogger implements ledgerstore.Logger.
var _ ledgerstore.Logger = (*SlogLogger)(nil)
