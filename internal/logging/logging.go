// Package logging builds the zap logger used across jgit.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LevelInfo  = "info"
	LevelDebug = "debug"
	// LevelNone disables logging entirely.
	LevelNone = "none"
)

// New returns a production zap logger at the given level.
func New(level string) (*zap.Logger, error) {
	if level == LevelNone || level == "" {
		return zap.NewNop(), nil
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "json"
	return cfg.Build()
}

// Mask hides all but the first and last two characters of a secret.
func Mask(secret string) string {
	if len(secret) <= 4 {
		return "......"
	}
	return secret[:2] + "......" + secret[len(secret)-2:]
}
