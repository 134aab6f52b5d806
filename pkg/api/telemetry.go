package api

import (
	"net/http"

	"github.com/Mindburn-Labs/mirrornode/pkg/observability"
)

var knownRoutes = map[string]bool{
	"/health":        true,
	"/event":         true,
	"/events/recent": true,
	"/route":         true,
	"/consensus":     true,
	"/audit":         true,
	"/stream":        true,
}

// routeLabel keeps metric cardinality bounded to the mounted routes.
func routeLabel(path string) string {
	if knownRoutes[path] {
		return path
	}
	return "other"
}

// Telemetry records a server span, request count and duration per request.
func Telemetry(p *observability.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, finish := p.TrackRequest(r.Context(), r.Method, routeLabel(r.URL.Path))
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			defer func() { finish(rec.status) }()
			next.ServeHTTP(rec, r.WithContext(ctx))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}

// Flush keeps /stream working through the recorder.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }
