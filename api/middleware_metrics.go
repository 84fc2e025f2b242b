package api

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/linesmerrill/police-dispatch-api/logging"
)

// RequestIDHeader carries the request id back to the client
const RequestIDHeader = "X-Request-Id"

// SlowRequestThreshold is the duration after which a request is logged as slow
const SlowRequestThreshold = time.Second

// Middleware tags every request with an id and a request scoped logger,
// then records its timing. Metrics and health endpoints are not recorded.
func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, requestID)
		ctx := logging.WithRequestID(r.Context(), requestID)

		path := r.URL.Path
		if strings.Contains(path, "/metrics/") || strings.HasSuffix(path, "/health") {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		trace := &RequestTrace{
			RequestID: requestID,
			Method:    r.Method,
			Path:      path,
			StartTime: time.Now(),
			DBQueries: make([]DBQueryTrace, 0),
		}
		ctx = WithRequestTrace(ctx, trace)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		trace.TotalDuration = time.Since(trace.StartTime)
		trace.Status = wrapped.statusCode
		if wrapped.statusCode >= 400 {
			trace.Error = http.StatusText(wrapped.statusCode)
		}
		mc.RecordTrace(*trace)

		if trace.TotalDuration > SlowRequestThreshold {
			logging.FromContext(ctx).Warnw("slow request",
				"method", r.Method,
				"path", path,
				"duration", trace.TotalDuration,
				"status", wrapped.statusCode,
				"dbQueries", len(trace.DBQueries),
				"dbTime", trace.DBTotalTime,
			)
		}
	})
}

// responseWriter captures the status code. It implements http.Hijacker so
// websocket upgrades pass through.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack implements http.Hijacker
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
}
