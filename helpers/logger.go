package helpers

import (
	"fmt"
	"os"
	"sync"
	"time"

	"sjsage522/farewatch/logger"
)

// LoggerInterface defines the interface for logger implementations
type LoggerInterface interface {
	LogError(route string, err error)
	LogInfo(format string, args ...interface{})
}

// Logger appends errors to a file and sends info messages to the structured logger
type Logger struct {
	mu        sync.Mutex
	errorFile string
	log       *logger.Logger
}

// NewLogger creates a new logger instance
func NewLogger(errorFile string) *Logger {
	return &Logger{
		errorFile: errorFile,
		log:       logger.ForWorker(),
	}
}

// LogError logs an error to a file with the route key and timestamp
func (l *Logger) LogError(route string, err error) {
	l.log.Error().Str("route", route).Err(err).Msg("Route failed")

	l.mu.Lock()
	defer l.mu.Unlock()

	f, fileErr := os.OpenFile(l.errorFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if fileErr != nil {
		l.log.Warn().Err(fileErr).Str("file", l.errorFile).Msg("Failed to open error log")
		return
	}
	defer f.Close()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(f, "[%s] [%s] %s\n", timestamp, route, err.Error())
}

// LogInfo logs an informational message
func (l *Logger) LogInfo(format string, args ...interface{}) {
	l.log.Info().Msgf(format, args...)
}
