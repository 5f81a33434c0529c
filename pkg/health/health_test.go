package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passingCheck() CheckFunc {
	return func(_ context.Context) error {
		return nil
	}
}

func failingCheck(msg string) CheckFunc {
	return func(_ context.Context) error {
		return errors.New(msg)
	}
}

func decodeProbe(t *testing.T, w *httptest.ResponseRecorder) probeResponse {
	t.Helper()
	var body probeResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestLiveEndpoint_AllPassing(t *testing.T) {
	s := New()
	s.AddLivenessCheck("check1", time.Second, passingCheck())
	s.AddLivenessCheck("check2", time.Second, passingCheck())

	w := httptest.NewRecorder()
	s.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decodeProbe(t, w).Status)
}

func TestLiveEndpoint_FailingCheck(t *testing.T) {
	s := New()
	s.AddLivenessCheck("db", time.Second, failingCheck("connection refused"))
	s.liveness[0].run(context.Background())

	w := httptest.NewRecorder()
	s.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decodeProbe(t, w)
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, "connection refused", body.Checks["db"])
}

func TestLiveEndpoint_NotRunYet(t *testing.T) {
	s := New()
	s.AddLivenessCheck("db", time.Second, failingCheck("down"))

	// Until the loop runs the check, its recorded state is healthy.
	w := httptest.NewRecorder()
	s.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyEndpoint_DefaultNotReady(t *testing.T) {
	s := New()
	s.AddReadinessCheck("db", time.Second, passingCheck())

	w := httptest.NewRecorder()
	s.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadyEndpoint_SetReadyGate(t *testing.T) {
	s := New()
	s.AddReadinessCheck("db", time.Second, passingCheck())
	s.SetReady(true)

	w := httptest.NewRecorder()
	s.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// Shutdown drain: readiness drops without touching check state.
	s.SetReady(false)

	w = httptest.NewRecorder()
	s.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadyEndpoint_FailingCheck(t *testing.T) {
	s := New()
	s.AddReadinessCheck("db", time.Second, passingCheck())
	s.AddReadinessCheck("cache", time.Second, failingCheck("cache down"))
	s.SetReady(true)
	s.readiness[1].run(context.Background())

	w := httptest.NewRecorder()
	s.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decodeProbe(t, w)
	assert.Equal(t, "cache down", body.Checks["cache"])
	assert.Equal(t, "ok", body.Checks["db"])
}

func TestStartRunsChecksImmediately(t *testing.T) {
	var mu sync.Mutex
	runs := 0
	s := New()
	s.AddLivenessCheck("counter", time.Second, func(_ context.Context) error {
		mu.Lock()
		runs++
		mu.Unlock()
		return nil
	})

	s.Start(context.Background(), time.Hour)
	defer s.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs >= 1
	}, time.Second, 10*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	s := New()
	s.AddLivenessCheck("noop", time.Second, passingCheck())
	s.Start(context.Background(), time.Hour)

	s.Stop()
	s.Stop()
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	s.AddLivenessCheck("concurrent", time.Second, failingCheck("err"))
	s.AddReadinessCheck("concurrent", time.Second, passingCheck())
	s.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, 10*time.Millisecond)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				w := httptest.NewRecorder()
				s.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

				w = httptest.NewRecorder()
				s.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()
	s.Stop()
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))

	err := GoroutineCountCheck(0)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many goroutines")
}
