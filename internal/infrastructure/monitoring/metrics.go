package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can be built without a collector in tests.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Sandbox metrics
	RunsTotal     *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	BlobsActive   prometheus.Gauge
	BlobBytes     prometheus.Gauge
	BlobsRevoked  *prometheus.CounterVec
	ConsoleLines  *prometheus.CounterVec
	RelayRejected *prometheus.CounterVec
	HeadlessRuns  *prometheus.CounterVec

	// Workspace metrics
	WorkspacesActive prometheus.Gauge
	WorkspacesSaved  prometheus.Counter
	WorkspacesLoaded prometheus.Counter

	// Vendor mirror metrics
	VendorFetches *prometheus.CounterVec

	// Project database metrics
	DBQueries       *prometheus.CounterVec
	DBQueryDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	TotalRuns         int64   `json:"total_runs"`
	FailedRuns        int64   `json:"failed_runs"`
	ActiveBlobs       int64   `json:"active_blobs"`
	ActiveWorkspaces  int64   `json:"active_workspaces"`
	ActiveConnections int64   `json:"active_connections"`
	ConsoleLines      int64   `json:"console_lines"`
	AvgRequestSeconds float64 `json:"avg_request_seconds"`
	UptimeSeconds     float64 `json:"uptime_seconds"`

	totalDuration float64
}

// NewMetrics creates a metrics collector on the default registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates a metrics collector on reg
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{startTime: time.Now()}

	// HTTP metrics
	m.RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibecoder_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	m.RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vibecoder_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
	m.RequestSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vibecoder_http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
		},
		[]string{"method", "path"},
	)
	m.ResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vibecoder_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
		},
		[]string{"method", "path"},
	)

	// Sandbox metrics
	m.RunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibecoder_sandbox_runs_total",
			Help: "Total number of sandbox runs by trigger and final state",
		},
		[]string{"trigger", "state"},
	)
	m.RunDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vibecoder_sandbox_run_duration_seconds",
			Help:    "Time to assemble and publish a preview",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)
	m.BlobsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "vibecoder_sandbox_blobs_active",
			Help: "Number of live preview blobs",
		},
	)
	m.BlobBytes = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "vibecoder_sandbox_blob_bytes",
			Help: "Bytes held by live preview blobs",
		},
	)
	m.BlobsRevoked = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibecoder_sandbox_blobs_revoked_total",
			Help: "Total number of revoked blobs by reason",
		},
		[]string{"reason"},
	)
	m.ConsoleLines = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibecoder_sandbox_console_lines_total",
			Help: "Total number of console lines appended to workspace panels",
		},
		[]string{"method"},
	)
	m.RelayRejected = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibecoder_sandbox_relay_rejected_total",
			Help: "Relay messages rejected before reaching a panel",
		},
		[]string{"reason"},
	)
	m.HeadlessRuns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibecoder_sandbox_headless_runs_total",
			Help: "Total number of headless checks by outcome",
		},
		[]string{"status"},
	)

	// Workspace metrics
	m.WorkspacesActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "vibecoder_workspaces_active",
			Help: "Number of workspaces held in memory",
		},
	)
	m.WorkspacesSaved = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "vibecoder_workspaces_saved_total",
			Help: "Total number of workspace saves",
		},
	)
	m.WorkspacesLoaded = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "vibecoder_workspaces_loaded_total",
			Help: "Total number of workspaces loaded from storage",
		},
	)

	m.VendorFetches = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibecoder_vendor_fetches_total",
			Help: "Vendor script fetches by name and outcome",
		},
		[]string{"name", "status"},
	)

	// WebSocket metrics
	m.WSConnections = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "vibecoder_ws_connections",
			Help: "Number of active WebSocket connections",
		},
	)
	m.DBQueries = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibecoder_db_queries_total",
			Help: "Total number of project database queries",
		},
		[]string{"operation", "status"},
	)
	m.DBQueryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vibecoder_db_query_duration_seconds",
			Help:    "Project database query duration in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
	m.WSMessages = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibecoder_ws_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction", "type"},
	)

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vibecoder_uptime_seconds",
			Help: "Backend uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordRun records a finished sandbox run
func (m *Metrics) RecordRun(trigger, state string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(trigger, state).Inc()
	m.RunDuration.Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRuns++
	if state == "failed" {
		m.snapshot.FailedRuns++
	}
	m.mu.Unlock()
}

// SetBlobs sets the live blob count and size
func (m *Metrics) SetBlobs(count int, bytes int64) {
	if m == nil {
		return
	}
	m.BlobsActive.Set(float64(count))
	m.BlobBytes.Set(float64(bytes))
	m.mu.Lock()
	m.snapshot.ActiveBlobs = int64(count)
	m.mu.Unlock()
}

// RecordBlobsRevoked records revoked blobs. reason is "loaded", "ttl",
// "workspace" or "manual".
func (m *Metrics) RecordBlobsRevoked(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.BlobsRevoked.WithLabelValues(reason).Add(float64(n))
}

// RecordConsoleLine records a console line appended to a panel
func (m *Metrics) RecordConsoleLine(method string) {
	if m == nil {
		return
	}
	m.ConsoleLines.WithLabelValues(method).Inc()
	m.mu.Lock()
	m.snapshot.ConsoleLines++
	m.mu.Unlock()
}

// RecordRelayRejected records a relay message dropped by a check
func (m *Metrics) RecordRelayRejected(reason string) {
	if m == nil {
		return
	}
	m.RelayRejected.WithLabelValues(reason).Inc()
}

// RecordHeadlessRun records a headless check outcome
func (m *Metrics) RecordHeadlessRun(status string) {
	if m == nil {
		return
	}
	m.HeadlessRuns.WithLabelValues(status).Inc()
}

// SetWorkspacesActive sets the number of workspaces in memory
func (m *Metrics) SetWorkspacesActive(count int) {
	if m == nil {
		return
	}
	m.WorkspacesActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveWorkspaces = int64(count)
	m.mu.Unlock()
}

// IncWorkspacesSaved increments the workspace save counter
func (m *Metrics) IncWorkspacesSaved() {
	if m == nil {
		return
	}
	m.WorkspacesSaved.Inc()
}

// IncWorkspacesLoaded increments the workspace load counter
func (m *Metrics) IncWorkspacesLoaded() {
	if m == nil {
		return
	}
	m.WorkspacesLoaded.Inc()
}

// RecordVendorFetch records a vendor script download
func (m *Metrics) RecordVendorFetch(name, status string) {
	if m == nil {
		return
	}
	m.VendorFetches.WithLabelValues(name, status).Inc()
}

// RecordDBQuery records one project database operation
func (m *Metrics) RecordDBQuery(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.DBQueries.WithLabelValues(operation, status).Inc()
	m.DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// Snapshot returns current values for the JSON stats endpoint
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	s := m.snapshot
	m.mu.RUnlock()

	if s.TotalRequests > 0 {
		s.AvgRequestSeconds = s.totalDuration / float64(s.TotalRequests)
	}
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
