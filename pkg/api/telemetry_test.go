package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/mirrornode/pkg/observability"
)

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/events/recent", routeLabel("/events/recent"))
	assert.Equal(t, "/audit", routeLabel("/audit"))
	assert.Equal(t, "other", routeLabel("/events/recent/42"))
	assert.Equal(t, "other", routeLabel("/wp-admin"))
}

func TestStatusRecorder(t *testing.T) {
	w := httptest.NewRecorder()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	rec.WriteHeader(http.StatusServiceUnavailable)
	rec.WriteHeader(http.StatusOK)
	assert.Equal(t, http.StatusServiceUnavailable, rec.status)

	rec.Flush()
	assert.True(t, w.Flushed)
	assert.Same(t, w, rec.Unwrap())
}

func TestStatusRecorder_ImplicitOK(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	_, err := rec.Write([]byte("ok"))
	require.NoError(t, err)
	rec.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusOK, rec.status)
}

func TestTelemetry_PassesThrough(t *testing.T) {
	p, err := observability.New(context.Background(), &observability.Config{Enabled: false})
	require.NoError(t, err)

	var flushable bool
	h := Telemetry(p)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, flushable = w.(http.Flusher)
		WriteError(w, http.StatusBadGateway, "Bad Gateway", "upstream")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/route", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.True(t, flushable)
}
