package handler

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taskrelay/server/internal/ai"
	"github.com/taskrelay/server/internal/modules/serializer"
)

const pingTimeout = 2 * time.Second

// DBPinger is satisfied by *sql.DB.
type DBPinger interface {
	PingContext(ctx context.Context) error
	Stats() sql.DBStats
}

// ProviderLister reports which AI providers have credentials.
type ProviderLister interface {
	AvailableProviders() []ai.Provider
}

type HealthHandler struct {
	service   string
	db        DBPinger
	providers ProviderLister
	started   time.Time
	log       *zap.Logger
	now       func() time.Time
}

func NewHealthHandler(service string, db DBPinger, providers ProviderLister, log *zap.Logger) *HealthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &HealthHandler{
		service:   service,
		db:        db,
		providers: providers,
		started:   time.Now(),
		log:       log,
		now:       time.Now,
	}
}

type DatabaseCheck struct {
	Status          string `json:"status"`
	ResponseTimeMs  int64  `json:"response_time_ms"`
	OpenConnections int    `json:"open_connections"`
	IdleConnections int    `json:"idle_connections"`
	Error           string `json:"error,omitempty"`
}

type ProviderCheck struct {
	Name       ai.Provider `json:"name"`
	Configured bool        `json:"configured"`
}

type RuntimeCheck struct {
	Goroutines int `json:"goroutines"`
	CPUs       int `json:"cpus"`
}

type HealthReport struct {
	Status        string          `json:"status"`
	Service       string          `json:"service"`
	Timestamp     time.Time       `json:"timestamp"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Database      DatabaseCheck   `json:"database"`
	AIProviders   []ProviderCheck `json:"ai_providers"`
	Runtime       RuntimeCheck    `json:"runtime"`
}

// Health godoc
//
//	@Summary	Health check
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	serializer.Response
//	@Router		/health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, serializer.Response{Msg: "ok", Data: gin.H{
		"service":   h.service,
		"timestamp": h.now().UTC(),
	}})
}

// Live godoc
//
//	@Summary	Liveness probe
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	serializer.Response
//	@Router		/health/live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, serializer.Response{Msg: "alive"})
}

// Ready godoc
//
//	@Summary		Readiness probe
//	@Description	Ready once the database answers a ping
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	serializer.Response
//	@Failure		503	{object}	serializer.Response
//	@Router			/health/ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	if db := h.checkDatabase(c.Request.Context()); db.Status != "healthy" {
		c.JSON(http.StatusServiceUnavailable, serializer.Response{Code: http.StatusServiceUnavailable, Msg: "not ready", Error: db.Error})
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Msg: "ready"})
}

// Detailed godoc
//
//	@Summary		Detailed health
//	@Description	Database and AI provider status. healthy needs the database and at least one provider, degraded means no provider is configured.
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	serializer.Response{data=handler.HealthReport}
//	@Failure		503	{object}	serializer.Response{data=handler.HealthReport}
//	@Router			/health/detailed [get]
func (h *HealthHandler) Detailed(c *gin.Context) {
	now := h.now()
	report := HealthReport{
		Service:       h.service,
		Timestamp:     now.UTC(),
		UptimeSeconds: int64(now.Sub(h.started).Seconds()),
		Database:      h.checkDatabase(c.Request.Context()),
		AIProviders:   h.checkProviders(),
		Runtime:       RuntimeCheck{Goroutines: runtime.NumGoroutine(), CPUs: runtime.NumCPU()},
	}

	anyProvider := slices.ContainsFunc(report.AIProviders, func(p ProviderCheck) bool { return p.Configured })
	switch {
	case report.Database.Status != "healthy":
		report.Status = "unhealthy"
	case anyProvider:
		report.Status = "healthy"
	default:
		report.Status = "degraded"
	}

	status := http.StatusOK
	switch report.Status {
	case "unhealthy":
		h.log.Error("service is unhealthy", zap.String("db_error", report.Database.Error))
		status = http.StatusServiceUnavailable
	case "degraded":
		h.log.Info("service is degraded, no ai provider configured")
	}
	c.JSON(status, serializer.Response{Code: status, Msg: report.Status, Data: report})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) DatabaseCheck {
	if h.db == nil {
		return DatabaseCheck{Status: "unhealthy", Error: "database not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	start := time.Now()
	err := h.db.PingContext(ctx)
	out := DatabaseCheck{Status: "healthy", ResponseTimeMs: time.Since(start).Milliseconds()}
	if err != nil {
		out.Status = "unhealthy"
		out.Error = err.Error()
		return out
	}
	st := h.db.Stats()
	out.OpenConnections = st.OpenConnections
	out.IdleConnections = st.Idle
	return out
}

func (h *HealthHandler) checkProviders() []ProviderCheck {
	var available []ai.Provider
	if h.providers != nil {
		available = h.providers.AvailableProviders()
	}
	all := []ai.Provider{ai.ProviderAnthropic, ai.ProviderOpenAI, ai.ProviderGoogle}
	out := make([]ProviderCheck, 0, len(all))
	for _, p := range all {
		out = append(out, ProviderCheck{Name: p, Configured: slices.Contains(available, p)})
	}
	return out
}
