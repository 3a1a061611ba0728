package observability

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"bizflow/internal/auth"
	"bizflow/internal/logger"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type key struct {
	Method string
	Path   string
	Status int
}

type stat struct {
	Count     int64
	LatencyMS float64
}

type Collector struct {
	db     *sqlx.DB
	logger *logger.Logger

	mu           sync.RWMutex
	requestStats map[key]stat
	startedAt    time.Time
}

func NewCollector(db *sqlx.DB, log *logger.Logger) *Collector {
	return &Collector{
		db:           db,
		logger:       log,
		requestStats: make(map[key]stat),
		startedAt:    time.Now(),
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		r = r.WithContext(auth.WithUserSlot(r.Context()))
		next.ServeHTTP(rec, r)

		latencyMS := float64(time.Since(start).Microseconds()) / 1000.0
		path := normalizedPath(r.URL.Path)

		c.mu.Lock()
		k := key{Method: r.Method, Path: path, Status: rec.status}
		s := c.requestStats[k]
		s.Count++
		s.LatencyMS += latencyMS
		c.requestStats[k] = s
		c.mu.Unlock()

		userID := ""
		if u, ok := auth.RecordedUser(r.Context()); ok {
			userID = u.ID
		}

		fields := []zap.Field{
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("user_id", userID),
			zap.String("method", r.Method),
			zap.String("path", path),
			zap.Int("status", rec.status),
			zap.Float64("latency_ms", latencyMS),
			zap.String("remote_ip", strings.TrimSpace(r.RemoteAddr)),
		}
		if rec.status >= http.StatusInternalServerError {
			c.logger.Error("http request", fields...)
			return
		}
		c.logger.Info("http request", fields...)
	})
}

func (c *Collector) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	statsCopy := make(map[key]stat, len(c.requestStats))
	for k, v := range c.requestStats {
		statsCopy[k] = v
	}
	startedAt := c.startedAt
	c.mu.RUnlock()

	keys := make([]key, 0, len(statsCopy))
	for k := range statsCopy {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Method != keys[j].Method {
			return keys[i].Method < keys[j].Method
		}
		if keys[i].Path != keys[j].Path {
			return keys[i].Path < keys[j].Path
		}
		return keys[i].Status < keys[j].Status
	})

	var sb strings.Builder
	sb.WriteString("# bizflow observability metrics\n")
	sb.WriteString("# TYPE bizflow_uptime_seconds gauge\n")
	fmt.Fprintf(&sb, "bizflow_uptime_seconds %.0f\n", time.Since(startedAt).Seconds())

	sb.WriteString("# TYPE bizflow_http_requests_total counter\n")
	sb.WriteString("# TYPE bizflow_http_request_latency_ms_sum counter\n")
	sb.WriteString("# TYPE bizflow_http_request_latency_ms_avg gauge\n")
	for _, k := range keys {
		s := statsCopy[k]
		labels := fmt.Sprintf("method=%q,path=%q,status=\"%d\"", k.Method, k.Path, k.Status)
		fmt.Fprintf(&sb, "bizflow_http_requests_total{%s} %d\n", labels, s.Count)
		fmt.Fprintf(&sb, "bizflow_http_request_latency_ms_sum{%s} %.3f\n", labels, s.LatencyMS)
		avg := 0.0
		if s.Count > 0 {
			avg = s.LatencyMS / float64(s.Count)
		}
		fmt.Fprintf(&sb, "bizflow_http_request_latency_ms_avg{%s} %.3f\n", labels, avg)
	}

	if c.db != nil {
		dbs := c.db.Stats()
		sb.WriteString("# TYPE bizflow_db_open_connections gauge\n")
		fmt.Fprintf(&sb, "bizflow_db_open_connections %d\n", dbs.OpenConnections)
		sb.WriteString("# TYPE bizflow_db_in_use_connections gauge\n")
		fmt.Fprintf(&sb, "bizflow_db_in_use_connections %d\n", dbs.InUse)
		sb.WriteString("# TYPE bizflow_db_idle_connections gauge\n")
		fmt.Fprintf(&sb, "bizflow_db_idle_connections %d\n", dbs.Idle)
		sb.WriteString("# TYPE bizflow_db_wait_count counter\n")
		fmt.Fprintf(&sb, "bizflow_db_wait_count %d\n", dbs.WaitCount)
		sb.WriteString("# TYPE bizflow_db_wait_duration_ms counter\n")
		fmt.Fprintf(&sb, "bizflow_db_wait_duration_ms %.3f\n", float64(dbs.WaitDuration.Microseconds())/1000.0)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sb.String()))
}

// normalizedPath collapses numeric and uuid segments so metric labels stay
// bounded. Slugs are left alone.
func normalizedPath(path string) string {
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			parts[i] = "{id}"
			continue
		}
		if _, err := uuid.Parse(p); err == nil {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}
