package handlers

import (
	"net/http"
	"strconv"

	"github.com/linesmerrill/police-dispatch-api/api"
)

// MetricsHandler serves the in-process request metrics
type MetricsHandler struct {
	Metrics *api.MetricsCollector
}

type routeView struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	Count      int64  `json:"count"`
	ErrorCount int64  `json:"errorCount"`
	AvgTime    int64  `json:"avgTime"`
	MinTime    int64  `json:"minTime"`
	MaxTime    int64  `json:"maxTime"`
	P50Time    int64  `json:"p50Time"`
	P95Time    int64  `json:"p95Time"`
	P99Time    int64  `json:"p99Time"`
	DBTime     int64  `json:"dbTotalTime"`
}

// formatRouteMetrics converts durations to milliseconds
func formatRouteMetrics(routes []api.RouteMetrics) []routeView {
	out := make([]routeView, len(routes))
	for i, route := range routes {
		out[i] = routeView{
			Method:     route.Method,
			Path:       route.Path,
			Count:      route.Count,
			ErrorCount: route.ErrorCount,
			AvgTime:    route.AvgTime.Milliseconds(),
			MinTime:    route.MinTime.Milliseconds(),
			MaxTime:    route.MaxTime.Milliseconds(),
			P50Time:    route.P50Time.Milliseconds(),
			P95Time:    route.P95Time.Milliseconds(),
			P99Time:    route.P99Time.Milliseconds(),
			DBTime:     route.DBTotalTime.Milliseconds(),
		}
	}
	return out
}

// SummaryHandler returns the overall request summary
func (m MetricsHandler) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, m.Metrics.Summary())
}

// RoutesHandler returns per route metrics. sort=count orders by frequency,
// anything else by average time.
func (m MetricsHandler) RoutesHandler(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if parsed, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && parsed > 0 {
		limit = parsed
	}
	offset := 0
	if parsed, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && parsed >= 0 {
		offset = parsed
	}

	routes := m.Metrics.Routes(r.URL.Query().Get("sort"), limit, offset)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"routes": formatRouteMetrics(routes),
		"limit":  limit,
		"offset": offset,
	})
}
