package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/testlink-backend/internal/response"
)

const healthTimeout = 2 * time.Second

// Pinger is a dependency whose reachability is reported by Health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// SystemHandler reports service health and runtime figures.
type SystemHandler struct {
	deps      map[string]Pinger
	active    func() int
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a SystemHandler. active reports the number of
// live attempt sessions held by this process.
func NewSystemHandler(deps map[string]Pinger, active func() int, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		deps:      deps,
		active:    active,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type healthReport struct {
	Status         string            `json:"status"`
	Uptime         string            `json:"uptime"`
	Dependencies   map[string]string `json:"dependencies"`
	ActiveSessions int               `json:"active_sessions"`
	Goroutines     int               `json:"goroutines"`
	GoVersion      string            `json:"go_version"`
}

// Health godoc
// GET /health
// Pings PostgreSQL and Redis. Returns 503 when any dependency is down.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	report := healthReport{
		Status:       "ok",
		Uptime:       formatDuration(time.Since(h.startTime)),
		Dependencies: make(map[string]string, len(h.deps)),
		Goroutines:   runtime.NumGoroutine(),
		GoVersion:    runtime.Version(),
	}
	if h.active != nil {
		report.ActiveSessions = h.active()
	}

	status := http.StatusOK
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			h.log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			report.Dependencies[name] = "down"
			report.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		report.Dependencies[name] = "up"
	}

	response.Success(c, status, report)
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
