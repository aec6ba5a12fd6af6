package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersInstruments(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New("test", reg)

	c.RecordsEnqueued.Inc()
	c.BatchesFlushed.WithLabelValues("size").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["test_logship_records_enqueued_total"])
	assert.True(t, names["test_logship_batches_flushed_total"])
	assert.True(t, names["test_logship_send_attempts_total"])

	assert.Equal(t, float64(1), testutil.ToFloat64(c.RecordsEnqueued))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.BatchesFlushed.WithLabelValues("size")))
	assert.Equal(t, float64(0), testutil.ToFloat64(c.BatchesFlushed.WithLabelValues("timeout")))
}

func TestDiscardIsIndependent(t *testing.T) {
	a := Discard()
	b := Discard()
	a.RecordsDropped.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(a.RecordsDropped))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.RecordsDropped))
}
