package utils

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name       string
		debug      bool
		debugLevel bool
	}{
		{"debug mode logs at debug level", true, true},
		{"production mode starts at info", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.debug)
			if err != nil {
				t.Fatalf("NewLogger(%v) error: %v", tt.debug, err)
			}
			if logger == nil {
				t.Fatalf("NewLogger(%v) returned nil logger", tt.debug)
			}
			if got := logger.Core().Enabled(zapcore.DebugLevel); got != tt.debugLevel {
				t.Errorf("debug enabled = %v, want %v", got, tt.debugLevel)
			}
			_ = logger.Sync()
		})
	}
}
