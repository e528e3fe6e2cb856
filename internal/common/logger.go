package common

import (
	"strings"

	"go.uber.org/zap"
)

// NewLogger builds the process logger. "production" (the default) logs JSON
// at info level; anything starting with "dev" logs human-readable at debug.
func NewLogger(env string) (*zap.Logger, error) {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(env)), "dev") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// OrNop lets components accept a nil logger.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
