package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"fleetmon/internal/observability"
)

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// routeTemplate returns the mux route pattern, keeping metric label
// cardinality bounded regardless of path variable values.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// observeMiddleware records every request in the log and the Prometheus
// collectors.
func (s *Server) observeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		observability.ObserveRequest(r.Method, routeTemplate(r), strconv.Itoa(rw.status), duration)

		log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration", duration,
			"remote", r.RemoteAddr)
	})
}
