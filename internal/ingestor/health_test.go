package ingestor

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeChecker struct{ alive bool }

func (f fakeChecker) Alive(time.Duration) bool { return f.alive }

func TestHealthHandler_OKWhenAlive(t *testing.T) {
	h := HealthHandler(fakeChecker{alive: true}, time.Minute)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthHandler_ServiceUnavailableWhenStale(t *testing.T) {
	h := HealthHandler(fakeChecker{alive: false}, time.Minute)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
