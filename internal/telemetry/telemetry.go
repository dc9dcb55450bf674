package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"swapRelay/internal/model"
)

var (
	// relay_swaps_total
	//
	// counter of journaled swaps
	//
	// Has the following labels:
	// * status - completed or failed
	// * token_in - the ledger the deposit arrived on
	SwapsMetricName = "relay_swaps_total"

	// relay_swap_last_block
	//
	// gauge holding the block number of the most recent journaled swap
	SwapLastBlockMetricName = "relay_swap_last_block"
)

// Metrics counts swap outcomes. It implements the swap journal interface so
// it can sit next to the persistent sinks.
type Metrics struct {
	registry  *prometheus.Registry
	swaps     *prometheus.CounterVec
	lastBlock prometheus.Gauge
}

// New creates metrics registered on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		swaps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: SwapsMetricName,
				Help: "Number of swaps journaled by the relay",
			},
			[]string{"status", "token_in"},
		),
		lastBlock: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: SwapLastBlockMetricName,
				Help: "Block of the most recent journaled swap",
			},
		),
	}
	m.registry.MustRegister(m.swaps, m.lastBlock)
	return m
}

// Registry exposes the registry for HTTP handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) PutSwap(_ context.Context, rec model.SwapRecord) error {
	m.swaps.WithLabelValues(string(rec.Status), rec.TokenIn).Inc()
	if rec.InboundBlock > 0 {
		m.lastBlock.Set(float64(rec.InboundBlock))
	}
	return nil
}
