package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swapRelay/internal/model"
)

func TestPutSwapCountsByStatus(t *testing.T) {
	m := New()
	ctx := context.Background()

	require.NoError(t, m.PutSwap(ctx, model.SwapRecord{Status: model.SwapStatusCompleted, TokenIn: "0xa", InboundBlock: 10}))
	require.NoError(t, m.PutSwap(ctx, model.SwapRecord{Status: model.SwapStatusCompleted, TokenIn: "0xa", InboundBlock: 12}))
	require.NoError(t, m.PutSwap(ctx, model.SwapRecord{Status: model.SwapStatusFailed, TokenIn: "0xb"}))

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	var lastBlock float64
	for _, mf := range families {
		switch mf.GetName() {
		case SwapsMetricName:
			for _, metric := range mf.GetMetric() {
				key := ""
				for _, label := range metric.GetLabel() {
					key += label.GetName() + "=" + label.GetValue() + ";"
				}
				counts[key] = metric.GetCounter().GetValue()
			}
		case SwapLastBlockMetricName:
			lastBlock = mf.GetMetric()[0].GetGauge().GetValue()
		}
	}

	assert.Equal(t, 2.0, counts["status=completed;token_in=0xa;"])
	assert.Equal(t, 1.0, counts["status=failed;token_in=0xb;"])
	assert.Equal(t, 12.0, lastBlock)
}
