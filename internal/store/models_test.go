package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *WatchConfig {
	return &WatchConfig{
		Name:      "tech jobs",
		Board:     "Tech_Job",
		Keywords:  []string{"golang", "backend"},
		PostCount: 10,
		ChatID:    "123456",
		Schedule:  Schedule{Type: ScheduleHourly},
	}
}

func TestWatchConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*WatchConfig)
		wantErr bool
	}{
		{"valid hourly", func(c *WatchConfig) {}, false},
		{"valid daily", func(c *WatchConfig) {
			c.Schedule = Schedule{Type: ScheduleDaily, Time: "09:30"}
		}, false},
		{"valid custom", func(c *WatchConfig) {
			c.Schedule = Schedule{Type: ScheduleCustom, IntervalMinutes: 15}
		}, false},
		{"missing name", func(c *WatchConfig) { c.Name = "" }, true},
		{"missing board", func(c *WatchConfig) { c.Board = "" }, true},
		{"no keywords", func(c *WatchConfig) { c.Keywords = nil }, true},
		{"zero post count", func(c *WatchConfig) { c.PostCount = 0 }, true},
		{"missing chat id", func(c *WatchConfig) { c.ChatID = "" }, true},
		{"daily without time", func(c *WatchConfig) {
			c.Schedule = Schedule{Type: ScheduleDaily}
		}, true},
		{"daily with bad time", func(c *WatchConfig) {
			c.Schedule = Schedule{Type: ScheduleDaily, Time: "25:99"}
		}, true},
		{"custom without interval", func(c *WatchConfig) {
			c.Schedule = Schedule{Type: ScheduleCustom}
		}, true},
		{"unknown schedule type", func(c *WatchConfig) {
			c.Schedule = Schedule{Type: "weekly"}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSchedule_ScanRoundTrip(t *testing.T) {
	original := Schedule{Type: ScheduleDaily, Time: "08:00"}

	value, err := original.Value()
	require.NoError(t, err)

	var decoded Schedule
	require.NoError(t, decoded.Scan(value))
	assert.Equal(t, original, decoded)

	var empty Schedule
	require.NoError(t, empty.Scan(nil))
	assert.Equal(t, Schedule{}, empty)

	assert.Error(t, decoded.Scan(42))
}
