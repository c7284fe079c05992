package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icalq/internal/config"
	"icalq/internal/ical"
	"icalq/internal/timeline"
)

func testComponent(t *testing.T) *ical.Component {
	t.Helper()
	root, diags := ical.Parse([]byte(
		"BEGIN:VEVENT\r\n" +
			"UID:evt-1\r\n" +
			"SUMMARY:Standup\r\n" +
			"LOCATION:Room 4\r\n" +
			"DTSTART:20240101T090000Z\r\n" +
			"END:VEVENT\r\n"))
	require.NotNil(t, root)
	require.Empty(t, diags)
	return root
}

func staticProvider(occs []timeline.Occurrence) Provider {
	return func(context.Context, timeline.Window) ([]timeline.Occurrence, error) {
		return occs, nil
	}
}

func TestHealthEndpoint(t *testing.T) {
	cfg := config.DefaultConfig()
	srv := NewServer(cfg, staticProvider(nil))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAgendaEndpoint(t *testing.T) {
	comp := testComponent(t)
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	cfg := config.DefaultConfig()
	srv := NewServer(cfg, staticProvider([]timeline.Occurrence{
		{Component: comp, Start: start, End: start.Add(30 * time.Minute)},
	}))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/agenda?from=2024-01-01T00:00:00Z&to=2024-01-02T00:00:00Z", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var items []agendaItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "evt-1", items[0].UID)
	assert.Equal(t, "Standup", items[0].Summary)
	assert.Equal(t, "Room 4", items[0].Location)
	assert.True(t, items[0].Start.Equal(start))
	assert.False(t, items[0].Overridden)
}

func TestAgendaBadWindowParam(t *testing.T) {
	srv := NewServer(config.DefaultConfig(), staticProvider(nil))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agenda?from=tomorrow", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAgendaMethodNotAllowed(t *testing.T) {
	srv := NewServer(config.DefaultConfig(), staticProvider(nil))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/agenda", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAgendaResponseCached(t *testing.T) {
	calls := 0
	cfg := config.DefaultConfig()
	srv := NewServer(cfg, func(context.Context, timeline.Window) ([]timeline.Occurrence, error) {
		calls++
		return nil, nil
	})

	url := "/api/agenda?from=2024-01-01T00:00:00Z&to=2024-01-02T00:00:00Z"
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 1, calls)

	srv.InvalidateCache()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, calls)
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "agenda", Password: "s3cret"}
	srv := NewServer(cfg, staticProvider(nil))
	h := srv.Handler()

	// No credentials.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agenda", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	// Wrong credentials.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/agenda", nil)
	req.SetBasicAuth("agenda", "wrong")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Right credentials.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/agenda", nil)
	req.SetBasicAuth("agenda", "s3cret")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// /health stays open.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
