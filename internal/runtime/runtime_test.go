package runtime

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxform-ai/voxform/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readyStatus(r *Runtime) int {
	rec := httptest.NewRecorder()
	r.handleReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	return rec.Code
}

func TestReadyBeforeStart(t *testing.T) {
	rt := New(config.Default(), testLogger(), nil)
	if got := readyStatus(rt); got != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", got)
	}
}

func TestReadyReflectsChecks(t *testing.T) {
	healthy := true
	rt := New(config.Default(), testLogger(), nil, func() bool { return healthy })
	rt.ready.Store(true)

	if got := readyStatus(rt); got != http.StatusOK {
		t.Fatalf("status = %d, want 200 while check passes", got)
	}

	healthy = false
	if got := readyStatus(rt); got != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 while check fails", got)
	}
}

func TestReadyWithoutChecks(t *testing.T) {
	rt := New(config.Default(), testLogger(), nil)
	rt.ready.Store(true)
	if got := readyStatus(rt); got != http.StatusOK {
		t.Fatalf("status = %d, want 200", got)
	}
}
