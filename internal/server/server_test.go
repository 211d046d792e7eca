package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePinger struct{ err error }

func (p fakePinger) CheckConnection(context.Context) error { return p.err }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, New(nil, nil, zap.NewNop()), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyzReflectsDatabase(t *testing.T) {
	t.Parallel()

	ok := serve(t, New(fakePinger{}, nil, nil), "/readyz")
	assert.Equal(t, http.StatusOK, ok.Code)

	down := serve(t, New(fakePinger{err: errors.New("refused")}, nil, nil), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, down.Code)
	assert.Contains(t, down.Body.String(), "database unavailable")
}

func TestStatusReportsStage(t *testing.T) {
	t.Parallel()

	stage := NewStage(fixedClock{time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)})
	s := New(nil, stage, nil)
	assert.JSONEq(t, `{"stage":""}`, serve(t, s, "/status").Body.String())

	stage.Set("links")
	assert.JSONEq(t, `{"stage":"links","started_at":"2024-05-01T10:00:00Z"}`, serve(t, s, "/status").Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s := New(nil, nil, nil)
	_ = serve(t, s, "/healthz")
	rec := serve(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(nil, nil, nil).Serve(ctx, addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
