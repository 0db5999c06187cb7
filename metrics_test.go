package arqsim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReport() *Report {
	return &Report{
		Name:    "test",
		RunID:   "run",
		Horizon: 1.0,
		Links: []LinkReport{{
			Link:       "link0",
			Protocol:   "go-back-n",
			Delivered:  10,
			Throughput: 320.0,
			Efficiency: 0.5,
			Tx:         LinkStats{FramesSent: 12, Retransmissions: 2, Timeouts: 1},
			Forward:    ChannelStats{Corrupted: 2},
			Reverse:    ChannelStats{Corrupted: 1},
		}},
	}
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheus("arqsim", reg)
	rec.Record(testReport())
	rec.Record(testReport())

	m := rec.(*prom)
	labels := prometheus.Labels{"link": "link0", "protocol": "go-back-n"}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.runs))
	assert.Equal(t, 24.0, testutil.ToFloat64(m.framesSent.With(labels)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.retransmissions.With(labels)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.timeouts.With(labels)))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.delivered.With(labels)))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.corrupted.With(labels)))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0)
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "arqsim_throughput_bits")
	assert.Contains(t, names, "arqsim_efficiency_ratio")
}

func TestWriteMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheus("arqsim", reg).Record(testReport())

	filename := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, WriteMetrics(filename, reg))
	bytes, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Contains(t, string(bytes), `arqsim_delivered_total{link="link0",protocol="go-back-n"} 10`)
}

func TestDummyRecorder(t *testing.T) {
	assert.NotPanics(t, func() { NewDummy().Record(testReport()) })
}
