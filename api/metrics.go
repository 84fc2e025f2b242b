package api

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// RequestTrace tracks timing for a single request
type RequestTrace struct {
	RequestID     string         `json:"requestId"`
	Method        string         `json:"method"`
	Path          string         `json:"path"`
	Status        int            `json:"status"`
	StartTime     time.Time      `json:"startTime"`
	TotalDuration time.Duration  `json:"totalDuration"`
	DBQueries     []DBQueryTrace `json:"dbQueries"`
	DBTotalTime   time.Duration  `json:"dbTotalTime"`
	Error         string         `json:"error,omitempty"`
}

// DBQueryTrace tracks a single database query
type DBQueryTrace struct {
	Operation  string        `json:"operation"`
	Collection string        `json:"collection"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// RouteMetrics aggregates metrics for a specific route
type RouteMetrics struct {
	Method      string        `json:"method"`
	Path        string        `json:"path"`
	Count       int64         `json:"count"`
	ErrorCount  int64         `json:"errorCount"`
	TotalTime   time.Duration `json:"totalTime"`
	AvgTime     time.Duration `json:"avgTime"`
	MinTime     time.Duration `json:"minTime"`
	MaxTime     time.Duration `json:"maxTime"`
	P50Time     time.Duration `json:"p50Time"`
	P95Time     time.Duration `json:"p95Time"`
	P99Time     time.Duration `json:"p99Time"`
	DBTotalTime time.Duration `json:"dbTotalTime"`
	LastRequest time.Time     `json:"lastRequest"`
}

// Summary is the overall view over the current window
type Summary struct {
	TotalRequests  int64     `json:"totalRequests"`
	TotalErrors    int64     `json:"totalErrors"`
	ErrorRate      float64   `json:"errorRate"`
	TPS            float64   `json:"tps"`
	TotalDBQueries int64     `json:"totalDBQueries"`
	AvgDBTime      string    `json:"avgDBTime"`
	WindowStart    time.Time `json:"windowStart"`
	RouteCount     int       `json:"routeCount"`
	TraceCount     int       `json:"traceCount"`
}

// MetricsCollector collects and aggregates request metrics. Traces are
// queued on a buffered channel and dropped when it is full, recording never
// blocks a request.
type MetricsCollector struct {
	mu             sync.RWMutex
	traces         []RequestTrace
	maxTraces      int
	routeMetrics   map[string]*RouteMetrics
	windowStart    time.Time
	windowDuration time.Duration
	totalRequests  int64
	totalErrors    int64
	totalDBQueries int64
	totalDBTime    time.Duration
	traceChan      chan RequestTrace
}

// NewMetricsCollector keeps at most maxTraces traces younger than window
func NewMetricsCollector(maxTraces int, window time.Duration) *MetricsCollector {
	return &MetricsCollector{
		traces:         make([]RequestTrace, 0, maxTraces),
		maxTraces:      maxTraces,
		routeMetrics:   make(map[string]*RouteMetrics),
		windowStart:    time.Now(),
		windowDuration: window,
		traceChan:      make(chan RequestTrace, 1000),
	}
}

// Run processes queued traces and prunes old ones until ctx is done
func (mc *MetricsCollector) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case trace := <-mc.traceChan:
			mc.processTrace(trace)
		case now := <-ticker.C:
			mc.prune(now)
		case <-ctx.Done():
			return
		}
	}
}

// RecordTrace queues a trace, dropping it when the queue is full
func (mc *MetricsCollector) RecordTrace(trace RequestTrace) {
	select {
	case mc.traceChan <- trace:
	default:
	}
}

func (mc *MetricsCollector) processTrace(trace RequestTrace) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if len(mc.traces) >= mc.maxTraces {
		mc.traces = mc.traces[1:]
	}
	trace.Path = normalizeRoutePath(trace.Path)
	mc.traces = append(mc.traces, trace)

	routeKey := trace.Method + " " + trace.Path
	metrics, exists := mc.routeMetrics[routeKey]
	if !exists {
		metrics = &RouteMetrics{
			Method:  trace.Method,
			Path:    trace.Path,
			MinTime: trace.TotalDuration,
		}
		mc.routeMetrics[routeKey] = metrics
	}

	metrics.Count++
	metrics.TotalTime += trace.TotalDuration
	metrics.AvgTime = metrics.TotalTime / time.Duration(metrics.Count)
	metrics.LastRequest = trace.StartTime
	if trace.TotalDuration < metrics.MinTime {
		metrics.MinTime = trace.TotalDuration
	}
	if trace.TotalDuration > metrics.MaxTime {
		metrics.MaxTime = trace.TotalDuration
	}
	if trace.Status >= 400 {
		metrics.ErrorCount++
		mc.totalErrors++
	}
	metrics.DBTotalTime += trace.DBTotalTime

	mc.totalRequests++
	mc.totalDBQueries += int64(len(trace.DBQueries))
	mc.totalDBTime += trace.DBTotalTime

	if metrics.Count%100 == 0 {
		mc.calculatePercentiles(routeKey, metrics)
	}
}

// Summary returns overall metrics for the current window
func (mc *MetricsCollector) Summary() Summary {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	elapsed := time.Since(mc.windowStart)
	if elapsed > mc.windowDuration {
		elapsed = mc.windowDuration
	}

	s := Summary{
		TotalRequests:  mc.totalRequests,
		TotalErrors:    mc.totalErrors,
		TotalDBQueries: mc.totalDBQueries,
		AvgDBTime:      time.Duration(0).String(),
		WindowStart:    mc.windowStart,
		RouteCount:     len(mc.routeMetrics),
		TraceCount:     len(mc.traces),
	}
	if elapsed.Seconds() > 0 {
		s.TPS = float64(mc.totalRequests) / elapsed.Seconds()
	}
	if mc.totalRequests > 0 {
		s.ErrorRate = float64(mc.totalErrors) / float64(mc.totalRequests)
	}
	if mc.totalDBQueries > 0 {
		s.AvgDBTime = (mc.totalDBTime / time.Duration(mc.totalDBQueries)).String()
	}
	return s
}

// Routes returns copies of the route metrics ordered by sortBy, "count" for
// the most frequent first and anything else for the slowest first
func (mc *MetricsCollector) Routes(sortBy string, limit, offset int) []RouteMetrics {
	mc.mu.RLock()
	routes := make([]RouteMetrics, 0, len(mc.routeMetrics))
	for _, m := range mc.routeMetrics {
		routes = append(routes, *m)
	}
	mc.mu.RUnlock()

	if sortBy == "count" {
		sort.Slice(routes, func(i, j int) bool { return routes[i].Count > routes[j].Count })
	} else {
		sort.Slice(routes, func(i, j int) bool { return routes[i].AvgTime > routes[j].AvgTime })
	}

	if offset >= len(routes) {
		return []RouteMetrics{}
	}
	end := offset + limit
	if end > len(routes) {
		end = len(routes)
	}
	return routes[offset:end]
}

var (
	objectIDSegment = regexp.MustCompile(`/[0-9a-fA-F]{24}(/|$)`)
	uuidSegment     = regexp.MustCompile(`/[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}(/|$)`)
)

// normalizeRoutePath groups paths that only differ by id,
// /api/v1/911-calls/507f1f77bcf86cd799439011 -> /api/v1/911-calls/{id}
func normalizeRoutePath(path string) string {
	path = objectIDSegment.ReplaceAllString(path, "/{id}$1")
	path = uuidSegment.ReplaceAllString(path, "/{id}$1")
	path = strings.ReplaceAll(path, "//", "/")
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	return path
}

func (mc *MetricsCollector) calculatePercentiles(routeKey string, metrics *RouteMetrics) {
	var durations []time.Duration
	for _, trace := range mc.traces {
		if trace.Method+" "+trace.Path == routeKey {
			durations = append(durations, trace.TotalDuration)
		}
	}
	if len(durations) == 0 {
		return
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	pick := func(q float64) time.Duration {
		idx := int(float64(len(durations)) * q)
		if idx >= len(durations) {
			idx = len(durations) - 1
		}
		return durations[idx]
	}
	metrics.P50Time = pick(0.50)
	metrics.P95Time = pick(0.95)
	metrics.P99Time = pick(0.99)
}

func (mc *MetricsCollector) prune(now time.Time) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	cutoff := now.Add(-mc.windowDuration)
	kept := mc.traces[:0]
	for _, trace := range mc.traces {
		if trace.StartTime.After(cutoff) {
			kept = append(kept, trace)
		}
	}
	mc.traces = kept

	if now.Sub(mc.windowStart) > mc.windowDuration {
		mc.windowStart = now
	}
}

type requestTraceContextKey struct{}

type requestTraceContext struct {
	trace *RequestTrace
	mu    sync.Mutex
}

// WithRequestTrace adds request trace to context
func WithRequestTrace(ctx context.Context, trace *RequestTrace) context.Context {
	return context.WithValue(ctx, requestTraceContextKey{}, &requestTraceContext{trace: trace})
}

// RecordDBQueryFromContext attaches a query timing to the request trace in
// ctx. It is installed as the databases query observer. Contexts without a
// trace are ignored.
func RecordDBQueryFromContext(ctx context.Context, operation, collection string, duration time.Duration, err error) {
	reqTrace, ok := ctx.Value(requestTraceContextKey{}).(*requestTraceContext)
	if !ok || reqTrace.trace == nil {
		return
	}

	q := DBQueryTrace{
		Operation:  operation,
		Collection: collection,
		Duration:   duration,
		Timestamp:  time.Now(),
	}
	if err != nil {
		q.Error = err.Error()
	}

	reqTrace.mu.Lock()
	reqTrace.trace.DBQueries = append(reqTrace.trace.DBQueries, q)
	reqTrace.trace.DBTotalTime += duration
	reqTrace.mu.Unlock()
}
