package db

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolStatsCollector_NilPoolCollectsNothing(t *testing.T) {
	collector := NewPoolStatsCollector(nil)

	ch := make(chan prometheus.Metric, 8)
	collector.Collect(ch)
	close(ch)

	assert.Empty(t, ch)
}

func TestPoolStatsCollector_DescribesAllMetrics(t *testing.T) {
	collector := NewPoolStatsCollector(nil)

	ch := make(chan *prometheus.Desc, 8)
	collector.Describe(ch)
	close(ch)

	var descs []*prometheus.Desc
	for d := range ch {
		descs = append(descs, d)
	}
	assert.Len(t, descs, 4)
}

func TestRegisterPoolStatsCollector_DoubleRegistrationTolerated(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := RegisterPoolStatsCollector(nil, reg)
	require.NoError(t, err)
	_, err = RegisterPoolStatsCollector(nil, reg)
	assert.NoError(t, err)
}
