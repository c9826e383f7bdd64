// Package metrics exposes board engine counters to Prometheus.
//
// Each Metrics value owns its own registry so several sessions (and tests)
// can run in one process. All methods are safe on a nil *Metrics, which
// lets components take an optional recorder without nil checks.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "beadboard"

// Metrics holds the board engine collectors.
type Metrics struct {
	registry *prometheus.Registry

	storageFaults       *prometheus.CounterVec
	integrityRejections prometheus.Counter
	settingsPatches     prometheus.Counter
	settingsRollbacks   prometheus.Counter
	flushes             *prometheus.CounterVec
	fetchFailures       prometheus.Counter
	nodes               prometheus.Gauge
	edges               prometheus.Gauge
	clients             prometheus.Gauge
}

// New creates a Metrics with a fresh registry. Go runtime and process
// collectors are included when withRuntime is true.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		storageFaults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_faults_total",
			Help:      "Local persistence failures that degraded to a default value.",
		}, []string{"op"}),
		integrityRejections: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_integrity_rejections_total",
			Help:      "Graph changes skipped because they would break an invariant.",
		}),
		settingsPatches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settings_patches_total",
			Help:      "Settings patches applied optimistically.",
		}),
		settingsRollbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settings_rollbacks_total",
			Help:      "Settings patches rolled back after a failed remote write.",
		}),
		flushes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autosave_flushes_total",
			Help:      "Board flushes by trigger and result.",
		}, []string{"trigger", "result"}),
		fetchFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "card_fetch_failures_total",
			Help:      "Failed card list retrievals.",
		}),
		nodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_nodes",
			Help:      "Nodes currently on the board.",
		}),
		edges: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_edges",
			Help:      "Edges currently on the board.",
		}),
		clients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bridge_clients",
			Help:      "Connected renderer clients.",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) StorageFault(op string) {
	if m == nil {
		return
	}
	m.storageFaults.WithLabelValues(op).Inc()
}

func (m *Metrics) IntegrityRejection() {
	if m == nil {
		return
	}
	m.integrityRejections.Inc()
}

func (m *Metrics) SettingsPatch() {
	if m == nil {
		return
	}
	m.settingsPatches.Inc()
}

func (m *Metrics) SettingsRollback() {
	if m == nil {
		return
	}
	m.settingsRollbacks.Inc()
}

// Flush records a flush attempt; trigger is interval, debounce, unload or manual.
func (m *Metrics) Flush(trigger string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.flushes.WithLabelValues(trigger, result).Inc()
}

func (m *Metrics) FetchFailure() {
	if m == nil {
		return
	}
	m.fetchFailures.Inc()
}

// GraphSize records the current node and edge counts.
func (m *Metrics) GraphSize(nodes, edges int) {
	if m == nil {
		return
	}
	m.nodes.Set(float64(nodes))
	m.edges.Set(float64(edges))
}

// Clients records the number of connected renderer clients.
func (m *Metrics) Clients(n int) {
	if m == nil {
		return
	}
	m.clients.Set(float64(n))
}
