package tokens

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metric descriptors for the token
// accounting engine. Registered on a dedicated registry rather than the
// global one, so the context manager's metrics hook can expose this
// alongside scanner and supervisor metrics without collisions.
//
// Metric naming convention: prpctl_<subsystem>_<name>_<unit>
type Metrics struct {
	registry *prometheus.Registry

	// UsageTokensTotal counts tokens recorded to the ledger, by agent and layer.
	UsageTokensTotal *prometheus.CounterVec

	// UsageCostTotal counts accrued cost in the ledger's currency, by agent.
	UsageCostTotal *prometheus.CounterVec

	// UsagePercentage is the current usage percentage against each agent's limit.
	UsagePercentage *prometheus.GaugeVec

	// AlertsRaisedTotal counts TokenAlerts raised, by kind.
	AlertsRaisedTotal *prometheus.CounterVec

	// EnforcementActionsTotal counts EnforcementActions emitted, by component and type.
	EnforcementActionsTotal *prometheus.CounterVec

	// LedgerSize is the current in-memory ledger length.
	LedgerSize prometheus.Gauge

	// ScanDuration records worktree scan wall-clock time, wired from the scanner.
	ScanDuration prometheus.Histogram
}

// NewMetrics creates and registers every token-accounting Prometheus metric.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		UsageTokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prpctl",
			Subsystem: "tokens",
			Name:      "usage_tokens_total",
			Help:      "Total tokens recorded to the usage ledger, by agent and layer.",
		}, []string{"agent_id", "layer"}),

		UsageCostTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prpctl",
			Subsystem: "tokens",
			Name:      "usage_cost_total",
			Help:      "Total accrued cost in the ledger's billing currency, by agent.",
		}, []string{"agent_id"}),

		UsagePercentage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "prpctl",
			Subsystem: "tokens",
			Name:      "usage_percentage",
			Help:      "Current usage percentage against the agent's configured limit.",
		}, []string{"agent_id"}),

		AlertsRaisedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prpctl",
			Subsystem: "tokens",
			Name:      "alerts_raised_total",
			Help:      "Total TokenAlerts raised, by kind.",
		}, []string{"kind"}),

		EnforcementActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prpctl",
			Subsystem: "tokens",
			Name:      "enforcement_actions_total",
			Help:      "Total EnforcementActions emitted, by component and type.",
		}, []string{"component", "type"}),

		LedgerSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "prpctl",
			Subsystem: "tokens",
			Name:      "ledger_size",
			Help:      "Current number of entries held in the in-memory usage ledger.",
		}),

		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "prpctl",
			Subsystem: "scanner",
			Name:      "scan_duration_seconds",
			Help:      "Duration of a single worktree scan.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.UsageTokensTotal,
		m.UsageCostTotal,
		m.UsagePercentage,
		m.AlertsRaisedTotal,
		m.EnforcementActionsTotal,
		m.LedgerSize,
		m.ScanDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// ServeMetrics starts the Prometheus HTTP metrics server, blocking until
// ctx is cancelled or the server fails to start.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
