package cache

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts the coordinator's degraded write paths.
type Metrics struct {
	quotaTrims       prometheus.Counter
	quotaFallbacks   prometheus.Counter
	contentFallbacks prometheus.Counter
}

// NewMetrics registers the cache counters on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		quotaTrims: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_metadata_quota_trims_total",
			Help: "Metadata writes retried after trimming the oldest records.",
		}),
		quotaFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_metadata_quota_fallbacks_total",
			Help: "Metadata writes that kept only the newest record.",
		}),
		contentFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_content_fallbacks_total",
			Help: "Content writes that fell back to an inline preview.",
		}),
	}
	for _, c := range []prometheus.Collector{m.quotaTrims, m.quotaFallbacks, m.contentFallbacks} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// The recorders accept a nil receiver so the coordinator can run without metrics.

func (m *Metrics) trimmed() {
	if m != nil {
		m.quotaTrims.Inc()
	}
}

func (m *Metrics) fellBack() {
	if m != nil {
		m.quotaFallbacks.Inc()
	}
}

func (m *Metrics) contentFellBack() {
	if m != nil {
		m.contentFallbacks.Inc()
	}
}
