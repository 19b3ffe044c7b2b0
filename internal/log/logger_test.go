package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		env       string
		wantDebug bool
	}{
		{"prod", false},
		{"staging", false},
		{"dev", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run("env "+tt.env, func(t *testing.T) {
			logger, err := NewLogger(tt.env)
			require.NoError(t, err)
			defer logger.Sync()
			assert.Equal(t, tt.wantDebug, logger.Core().Enabled(zapcore.DebugLevel))
			assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
		})
	}
}

func TestNewSugar(t *testing.T) {
	sugar, err := NewSugar("dev")
	require.NoError(t, err)
	assert.NotNil(t, sugar)
}
