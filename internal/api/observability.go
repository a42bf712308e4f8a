package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/boardwatch/boardwatch/pkg/resilience"
)

// ObservabilityHandler exposes the resilience layer's metric and alert
// surfaces
type ObservabilityHandler struct {
	runtime *resilience.Runtime
}

// NewObservabilityHandler creates an observability handler
func NewObservabilityHandler(runtime *resilience.Runtime) *ObservabilityHandler {
	return &ObservabilityHandler{runtime: runtime}
}

// GetMetricsJSON returns the JSON export of collected metrics and
// breaker states. Query params: recent (point limit per series),
// window (stats window, Go duration).
func (h *ObservabilityHandler) GetMetricsJSON(c *gin.Context) {
	recent, err := intQuery(c, "recent", 100)
	if err != nil {
		BadRequestResponse(c, "recent must be an integer")
		return
	}

	window, err := durationQuery(c, "window", 0)
	if err != nil {
		BadRequestResponse(c, "window must be a duration like 5m or 1h")
		return
	}

	data, err := h.runtime.Exporter.JSON(recent, window)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json", data)
}

// GetMetricsText returns the line-oriented text export
func (h *ObservabilityHandler) GetMetricsText(c *gin.Context) {
	window, err := durationQuery(c, "window", 0)
	if err != nil {
		BadRequestResponse(c, "window must be a duration like 5m or 1h")
		return
	}

	c.String(http.StatusOK, h.runtime.Exporter.Text(window))
}

// ListAlerts returns alerts matching the query filters plus a summary.
// Query params: level, source, resolved, since (RFC 3339).
func (h *ObservabilityHandler) ListAlerts(c *gin.Context) {
	var filter resilience.AlertFilter

	if raw := c.Query("level"); raw != "" {
		level, err := resilience.ParseAlertLevel(raw)
		if err != nil {
			BadRequestResponse(c, err.Error())
			return
		}
		filter.Level = &level
	}

	filter.Source = c.Query("source")

	if raw := c.Query("resolved"); raw != "" {
		resolved, err := strconv.ParseBool(raw)
		if err != nil {
			BadRequestResponse(c, "resolved must be true or false")
			return
		}
		filter.Resolved = &resolved
	}

	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			BadRequestResponse(c, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = since
	}

	SuccessResponse(c, gin.H{
		"alerts":  h.runtime.Alerts.List(filter),
		"summary": h.runtime.Alerts.Summary(filter),
	})
}

// TriggerAlertRequest is the POST body for manually raising an alert
type TriggerAlertRequest struct {
	Level    string            `json:"level" binding:"required"`
	Title    string            `json:"title" binding:"required"`
	Message  string            `json:"message"`
	Source   string            `json:"source" binding:"required"`
	Metadata map[string]string `json:"metadata"`
}

// TriggerAlert manually raises an alert
func (h *ObservabilityHandler) TriggerAlert(c *gin.Context) {
	var req TriggerAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, err.Error())
		return
	}

	level, err := resilience.ParseAlertLevel(req.Level)
	if err != nil {
		BadRequestResponse(c, err.Error())
		return
	}

	var metadata resilience.Metadata
	if len(req.Metadata) > 0 {
		metadata = make(resilience.Metadata, len(req.Metadata))
		for k, v := range req.Metadata {
			metadata[k] = resilience.MetaString(v)
		}
	}

	id := h.runtime.Alerts.Trigger(level, req.Title, req.Message, req.Source, metadata)
	CreatedResponse(c, h.runtime.Alerts.Get(id))
}

// ResolveAlertRequest is the POST body for resolving an alert
type ResolveAlertRequest struct {
	Message string `json:"message"`
}

// ResolveAlert marks an alert resolved. Resolving an unknown or
// already-resolved alert returns 404.
func (h *ObservabilityHandler) ResolveAlert(c *gin.Context) {
	var req ResolveAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		BadRequestResponse(c, err.Error())
		return
	}

	id := c.Param("id")
	if !h.runtime.Alerts.Resolve(id, req.Message) {
		NotFoundResponse(c, "alert not found or already resolved")
		return
	}

	SuccessResponse(c, h.runtime.Alerts.Get(id))
}

func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func durationQuery(c *gin.Context, name string, fallback time.Duration) (time.Duration, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	return time.ParseDuration(raw)
}
