package stock

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes Prometheus collectors for the stock engine.
type Metrics struct {
	allocations      prometheus.Counter
	allocatedLots    prometheus.Counter
	rejections       prometheus.Counter
	retriesExhausted prometheus.Counter
}

// NewMetrics registers the stock collectors against the provided registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		allocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "officine_stock_allocations_total",
			Help: "Committed FIFO allocations.",
		}),
		allocatedLots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "officine_stock_allocated_lots_total",
			Help: "Lots touched by committed allocations.",
		}),
		rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "officine_stock_insufficient_total",
			Help: "Allocations rejected for insufficient stock.",
		}),
		retriesExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "officine_stock_retries_exhausted_total",
			Help: "Allocations abandoned after the serialization retry budget.",
		}),
	}
	registerer.MustRegister(m.allocations, m.allocatedLots, m.rejections, m.retriesExhausted)
	return m
}

// AllocationCommitted counts one committed plan and the lots it touched.
func (m *Metrics) AllocationCommitted(lots int) {
	if m == nil {
		return
	}
	m.allocations.Inc()
	m.allocatedLots.Add(float64(lots))
}

// AllocationRejected counts one insufficient-stock failure.
func (m *Metrics) AllocationRejected() {
	if m == nil {
		return
	}
	m.rejections.Inc()
}

// RetriesExhausted counts one abandoned allocation.
func (m *Metrics) RetriesExhausted() {
	if m == nil {
		return
	}
	m.retriesExhausted.Inc()
}
