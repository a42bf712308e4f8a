package store

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/boardwatch/boardwatch/pkg/errors"
)

// Schedule types supported by watch configurations
const (
	ScheduleHourly = "hourly"
	ScheduleDaily  = "daily"
	ScheduleCustom = "custom"
)

// Execution statuses recorded after each run
const (
	StatusSuccess    = "success"
	StatusNoArticles = "no_articles"
	StatusError      = "error"
)

// Schedule describes when a watch configuration should run.
// Daily schedules carry a local "HH:MM" time, custom schedules an
// interval in minutes.
type Schedule struct {
	Type            string `json:"type"`
	Time            string `json:"time,omitempty"`
	IntervalMinutes int    `json:"interval_minutes,omitempty"`
}

// Value implements driver.Valuer so schedules persist as JSONB
func (s Schedule) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner
func (s *Schedule) Scan(value interface{}) error {
	if value == nil {
		*s = Schedule{}
		return nil
	}

	data, ok := value.([]byte)
	if !ok {
		return errors.NewInternalError("unexpected schedule column type")
	}
	return json.Unmarshal(data, s)
}

// WatchConfig is a board-watching configuration: which board to scan,
// which keywords to match, and where to deliver matches.
type WatchConfig struct {
	ID                   uuid.UUID      `json:"id" db:"id"`
	Name                 string         `json:"name" db:"name"`
	Board                string         `json:"board" db:"board"`
	Keywords             pq.StringArray `json:"keywords" db:"keywords"`
	PostCount            int            `json:"post_count" db:"post_count"`
	ChatID               string         `json:"chat_id" db:"chat_id"`
	Schedule             Schedule       `json:"schedule" db:"schedule"`
	IsActive             bool           `json:"is_active" db:"is_active"`
	LastExecutedAt       *time.Time     `json:"last_executed_at,omitempty" db:"last_executed_at"`
	LastExecutionStatus  *string        `json:"last_execution_status,omitempty" db:"last_execution_status"`
	LastExecutionMessage *string        `json:"last_execution_message,omitempty" db:"last_execution_message"`
	CreatedAt            time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at" db:"updated_at"`
}

// Validate checks configuration invariants before persistence
func (c *WatchConfig) Validate() error {
	if c.Name == "" {
		return errors.NewValidationError("configuration name is required")
	}
	if c.Board == "" {
		return errors.NewValidationError("board is required")
	}
	if len(c.Keywords) == 0 {
		return errors.NewValidationError("at least one keyword is required")
	}
	if c.PostCount <= 0 {
		return errors.NewValidationError("post count must be positive")
	}
	if c.ChatID == "" {
		return errors.NewValidationError("chat ID is required")
	}

	switch c.Schedule.Type {
	case ScheduleHourly:
	case ScheduleDaily:
		if _, err := time.Parse("15:04", c.Schedule.Time); err != nil {
			return errors.NewValidationError("daily schedule requires a valid HH:MM time")
		}
	case ScheduleCustom:
		if c.Schedule.IntervalMinutes <= 0 {
			return errors.NewValidationError("custom schedule requires a positive interval")
		}
	default:
		return errors.NewValidationError("unknown schedule type: " + c.Schedule.Type)
	}

	return nil
}

// ExecutionRecord captures the outcome of one scheduled run of a
// watch configuration.
type ExecutionRecord struct {
	ID              uuid.UUID `json:"id" db:"id"`
	ConfigID        uuid.UUID `json:"config_id" db:"config_id"`
	ExecutedAt      time.Time `json:"executed_at" db:"executed_at"`
	Status          string    `json:"status" db:"status"`
	ArticlesFound   int       `json:"articles_found" db:"articles_found"`
	ArticlesSent    int       `json:"articles_sent" db:"articles_sent"`
	DurationSeconds float64   `json:"duration_seconds" db:"duration_seconds"`
	ErrorMessage    *string   `json:"error_message,omitempty" db:"error_message"`
}
