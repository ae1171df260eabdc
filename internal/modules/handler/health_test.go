package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/taskrelay/server/internal/ai"
)

type fakeDB struct {
	err   error
	stats sql.DBStats
}

func (f fakeDB) PingContext(ctx context.Context) error {
	if f.err != nil {
		return f.err
	}
	return ctx.Err()
}

func (f fakeDB) Stats() sql.DBStats { return f.stats }

type fakeProviders []ai.Provider

func (f fakeProviders) AvailableProviders() []ai.Provider { return f }

func setupHealthRouter(h *HealthHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/health/live", h.Live)
	r.GET("/health/ready", h.Ready)
	r.GET("/health/detailed", h.Detailed)
	return r
}

func getBody(r *gin.Engine, path string) (int, string) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w.Code, w.Body.String()
}

func TestHealthHandler_LiveAndBasic(t *testing.T) {
	r := setupHealthRouter(NewHealthHandler("taskrelay", fakeDB{err: errors.New("down")}, nil, zap.NewNop()))

	code, body := getBody(r, "/health/live")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alive", gjson.Get(body, "msg").String())

	code, body = getBody(r, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", gjson.Get(body, "msg").String())
	assert.Equal(t, "taskrelay", gjson.Get(body, "data.service").String())
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name       string
		db         DBPinger
		wantStatus int
		wantMsg    string
	}{
		{name: "db up", db: fakeDB{}, wantStatus: http.StatusOK, wantMsg: "ready"},
		{name: "db down", db: fakeDB{err: errors.New("connection refused")}, wantStatus: http.StatusServiceUnavailable, wantMsg: "not ready"},
		{name: "no db", wantStatus: http.StatusServiceUnavailable, wantMsg: "not ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupHealthRouter(NewHealthHandler("taskrelay", tt.db, nil, nil))
			code, body := getBody(r, "/health/ready")
			assert.Equal(t, tt.wantStatus, code)
			assert.Equal(t, tt.wantMsg, gjson.Get(body, "msg").String())
		})
	}
}

func TestHealthHandler_Detailed(t *testing.T) {
	tests := []struct {
		name       string
		db         DBPinger
		providers  fakeProviders
		wantStatus int
		wantState  string
	}{
		{
			name:       "healthy",
			db:         fakeDB{stats: sql.DBStats{OpenConnections: 3, Idle: 2}},
			providers:  fakeProviders{ai.ProviderAnthropic, ai.ProviderGoogle},
			wantStatus: http.StatusOK,
			wantState:  "healthy",
		},
		{
			name:       "no provider configured",
			db:         fakeDB{},
			wantStatus: http.StatusOK,
			wantState:  "degraded",
		},
		{
			name:       "database down",
			db:         fakeDB{err: errors.New("connection refused")},
			providers:  fakeProviders{ai.ProviderOpenAI},
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler("taskrelay", tt.db, tt.providers, zap.NewNop())
			h.started = time.Now().Add(-90 * time.Second)
			code, body := getBody(setupHealthRouter(h), "/health/detailed")

			require.Equal(t, tt.wantStatus, code)
			data := gjson.Get(body, "data")
			assert.Equal(t, tt.wantState, data.Get("status").String())
			assert.Equal(t, tt.wantState, gjson.Get(body, "msg").String())
			assert.GreaterOrEqual(t, data.Get("uptime_seconds").Int(), int64(90))
			assert.Equal(t, int64(3), data.Get("ai_providers.#").Int())
			for _, p := range []ai.Provider{ai.ProviderAnthropic, ai.ProviderOpenAI, ai.ProviderGoogle} {
				want := false
				for _, got := range tt.providers {
					want = want || got == p
				}
				assert.Equal(t, want, data.Get(`ai_providers.#(name=="`+string(p)+`").configured`).Bool(), p)
			}
			assert.Positive(t, data.Get("runtime.cpus").Int())
		})
	}

	t.Run("pool stats", func(t *testing.T) {
		h := NewHealthHandler("taskrelay", fakeDB{stats: sql.DBStats{OpenConnections: 3, Idle: 2}}, fakeProviders{ai.ProviderAnthropic}, nil)
		_, body := getBody(setupHealthRouter(h), "/health/detailed")
		assert.Equal(t, int64(3), gjson.Get(body, "data.database.open_connections").Int())
		assert.Equal(t, int64(2), gjson.Get(body, "data.database.idle_connections").Int())
		assert.False(t, gjson.Get(body, "data.database.error").Exists())
	})
}
