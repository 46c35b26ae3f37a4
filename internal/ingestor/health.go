package ingestor

import (
	"net/http"
	"time"
)

// LivenessChecker is satisfied by *Ingestor; split out so the health
// handler can be tested against a fake.
type LivenessChecker interface {
	Alive(threshold time.Duration) bool
}

// HealthHandler returns an http.Handler for GET /health: 200 if the
// ingestor has processed a closed candle within threshold, else 503.
func HealthHandler(checker LivenessChecker, threshold time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !checker.Alive(threshold) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("unhealthy"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}
