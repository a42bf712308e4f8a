package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: &Config{
				Level:       "info",
				Format:      "json",
				Output:      "stdout",
				ServiceName: "test-service",
				Version:     "1.0.0",
			},
			wantErr: false,
		},
		{
			name: "invalid log level",
			config: &Config{
				Level:  "invalid",
				Format: "json",
				Output: "stdout",
			},
			wantErr: true,
		},
		{
			name: "invalid format",
			config: &Config{
				Level:  "info",
				Format: "invalid",
				Output: "stdout",
			},
			wantErr: true,
		},
		{
			name:    "nil config uses defaults",
			config:  nil,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, logger)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, logger)
			}
		})
	}
}

func newBufferLogger(t *testing.T) (*Logger, *bytes.Buffer) {
	t.Helper()

	logger, err := NewLogger(&Config{
		Level:       "debug",
		Format:      "json",
		Output:      "stdout",
		ServiceName: "test-service",
		Version:     "1.0.0",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	return logger, &buf
}

func TestLogger_WithContext(t *testing.T) {
	logger, buf := newBufferLogger(t)

	ctx := WithCorrelationID(context.Background(), "test-correlation-id")
	ctx = WithConfigID(ctx, "cfg-123")

	logger.WithContext(ctx).Info("test message")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))

	assert.Equal(t, "test-correlation-id", logEntry["correlation_id"])
	assert.Equal(t, "cfg-123", logEntry["config_id"])
	assert.Equal(t, "test-service", logEntry["service"])
	assert.Equal(t, "test message", logEntry["message"])
}

func TestLogger_KeyValuePairs(t *testing.T) {
	logger, buf := newBufferLogger(t)

	logger.Info("breaker tripped", "category", "scraper:ptt", "failures", 5)

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))

	assert.Equal(t, "scraper:ptt", logEntry["category"])
	assert.Equal(t, float64(5), logEntry["failures"])
}

func TestLogger_LogJobEvent(t *testing.T) {
	logger, buf := newBufferLogger(t)

	logger.LogJobEvent(context.Background(), "job_completed", "cfg-1", "tech news watch", logrus.Fields{
		"articles_found": 3,
	})

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))

	assert.Equal(t, "job_completed", logEntry["event"])
	assert.Equal(t, "cfg-1", logEntry["config_id"])
	assert.Equal(t, "tech news watch", logEntry["config_name"])
	assert.Equal(t, float64(3), logEntry["articles_found"])
}

func TestGetCorrelationID(t *testing.T) {
	assert.Equal(t, "", GetCorrelationID(context.Background()))

	ctx := WithCorrelationID(context.Background(), "abc")
	assert.Equal(t, "abc", GetCorrelationID(ctx))

	assert.NotEmpty(t, NewCorrelationID())
	assert.NotEqual(t, NewCorrelationID(), NewCorrelationID())
}
