package resilience

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/boardwatch/boardwatch/pkg/logging"
)

// AlertLevel represents the severity level of an alert
type AlertLevel int

const (
	// LevelInfo - informational alerts
	LevelInfo AlertLevel = iota
	// LevelWarning - alerts that need attention
	LevelWarning
	// LevelError - alerts that need immediate attention
	LevelError
	// LevelCritical - alerts that need urgent attention
	LevelCritical
)

func (l AlertLevel) String() string {
	switch l {
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON encodes the level as its name.
func (l AlertLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// ParseAlertLevel maps a level name back to its value.
func ParseAlertLevel(s string) (AlertLevel, error) {
	switch s {
	case "INFO":
		return LevelInfo, nil
	case "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "CRITICAL":
		return LevelCritical, nil
	default:
		return LevelInfo, fmt.Errorf("unknown alert level: %s", s)
	}
}

// MetaKind tags the value variant held by a MetaValue.
type MetaKind int

const (
	MetaKindString MetaKind = iota
	MetaKindNumber
	MetaKindBool
)

// MetaValue is a closed union over the value types alert metadata may
// carry, keeping serialization and comparison well-defined.
type MetaValue struct {
	Kind MetaKind
	Str  string
	Num  float64
	Bool bool
}

// MetaString wraps a string metadata value.
func MetaString(s string) MetaValue { return MetaValue{Kind: MetaKindString, Str: s} }

// MetaNumber wraps a numeric metadata value.
func MetaNumber(n float64) MetaValue { return MetaValue{Kind: MetaKindNumber, Num: n} }

// MetaBool wraps a boolean metadata value.
func MetaBool(b bool) MetaValue { return MetaValue{Kind: MetaKindBool, Bool: b} }

// MarshalJSON encodes the underlying value directly.
func (v MetaValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case MetaKindNumber:
		return json.Marshal(v.Num)
	case MetaKindBool:
		return json.Marshal(v.Bool)
	default:
		return json.Marshal(v.Str)
	}
}

// Metadata is the metadata mapping attached to an alert.
type Metadata map[string]MetaValue

// Alert is an operator-facing event. Created only by Trigger, mutated
// only by Resolve; once resolved it never reverts.
type Alert struct {
	ID                string     `json:"id"`
	Level             AlertLevel `json:"level"`
	Title             string     `json:"title"`
	Message           string     `json:"message"`
	Source            string     `json:"source"`
	Metadata          Metadata   `json:"metadata,omitempty"`
	TriggeredAt       time.Time  `json:"triggered_at"`
	Resolved          bool       `json:"resolved"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
	ResolutionMessage string     `json:"resolution_message,omitempty"`
}

// AlertFilter selects alerts by conjunction of its set fields.
type AlertFilter struct {
	Level    *AlertLevel
	Source   string
	Resolved *bool
	Since    time.Time
}

// AlertSummary groups matching alerts for reporting.
type AlertSummary struct {
	Total      int            `json:"total"`
	ByLevel    map[string]int `json:"by_level"`
	BySource   map[string]int `json:"by_source"`
	Resolved   int            `json:"resolved"`
	Unresolved int            `json:"unresolved"`
}

// AlertManager owns the in-memory lifecycle of triggered alerts.
// Alerts are retained for the process lifetime; eviction, if needed,
// is a collaborator's concern. Business conditions (unknown ID,
// already resolved) are return values, never errors.
type AlertManager struct {
	mutex  sync.RWMutex
	alerts map[string]*Alert
	order  []string
	logger *logging.Logger
}

// NewAlertManager creates a new alert manager
func NewAlertManager() *AlertManager {
	return &AlertManager{
		alerts: make(map[string]*Alert),
		logger: logging.GetLogger(),
	}
}

// Trigger creates a new alert and returns its ID. Every call creates a
// new entry; deduplication is the caller's responsibility.
func (am *AlertManager) Trigger(level AlertLevel, title, message, source string, metadata Metadata) string {
	alert := &Alert{
		ID:          uuid.New().String(),
		Level:       level,
		Title:       title,
		Message:     message,
		Source:      source,
		Metadata:    metadata,
		TriggeredAt: time.Now(),
	}

	am.mutex.Lock()
	am.alerts[alert.ID] = alert
	am.order = append(am.order, alert.ID)
	am.mutex.Unlock()

	am.logger.Info("Alert triggered",
		"alert_id", alert.ID,
		"level", level.String(),
		"source", source,
		"title", title,
	)

	return alert.ID
}

// Resolve marks an alert resolved. Returns false when the alert does
// not exist or is already resolved; the check and the write happen
// under one lock so the idempotence guarantee holds under races.
func (am *AlertManager) Resolve(alertID, message string) bool {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	alert, ok := am.alerts[alertID]
	if !ok || alert.Resolved {
		return false
	}

	now := time.Now()
	alert.Resolved = true
	alert.ResolvedAt = &now
	alert.ResolutionMessage = message

	am.logger.Info("Alert resolved",
		"alert_id", alertID,
		"source", alert.Source,
	)

	return true
}

// Get returns a copy of the alert with the given ID, or nil.
func (am *AlertManager) Get(alertID string) *Alert {
	am.mutex.RLock()
	defer am.mutex.RUnlock()

	alert, ok := am.alerts[alertID]
	if !ok {
		return nil
	}
	copied := *alert
	return &copied
}

// List returns alerts matching the filter, newest first. Trigger
// order decides ties, so alerts raised within the same wall-clock
// instant still come back in a deterministic order.
func (am *AlertManager) List(filter AlertFilter) []Alert {
	am.mutex.RLock()
	defer am.mutex.RUnlock()

	out := make([]Alert, 0)
	for i := len(am.order) - 1; i >= 0; i-- {
		alert := am.alerts[am.order[i]]
		if !matchesFilter(alert, filter) {
			continue
		}
		out = append(out, *alert)
	}
	return out
}

// Summary aggregates matching alerts by level and source.
func (am *AlertManager) Summary(filter AlertFilter) AlertSummary {
	alerts := am.List(filter)

	summary := AlertSummary{
		Total:    len(alerts),
		ByLevel:  make(map[string]int),
		BySource: make(map[string]int),
	}
	for _, alert := range alerts {
		summary.ByLevel[alert.Level.String()]++
		summary.BySource[alert.Source]++
		if alert.Resolved {
			summary.Resolved++
		} else {
			summary.Unresolved++
		}
	}
	return summary
}

func matchesFilter(alert *Alert, filter AlertFilter) bool {
	if filter.Level != nil && alert.Level != *filter.Level {
		return false
	}
	if filter.Source != "" && alert.Source != filter.Source {
		return false
	}
	if filter.Resolved != nil && alert.Resolved != *filter.Resolved {
		return false
	}
	if !filter.Since.IsZero() && alert.TriggeredAt.Before(filter.Since) {
		return false
	}
	return true
}
