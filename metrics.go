package arqsim

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records the outcome of simulation runs
type Recorder interface {
	Record(rep *Report)
}

type dummy struct{}

// NewDummy constructs a new dummy metrics recorder.
func NewDummy() Recorder {
	return &dummy{}
}

func (m *dummy) Record(rep *Report) {}

type prom struct {
	runs            prometheus.Counter
	framesSent      *prometheus.CounterVec
	retransmissions *prometheus.CounterVec
	timeouts        *prometheus.CounterVec
	delivered       *prometheus.CounterVec
	corrupted       *prometheus.CounterVec
	throughput      *prometheus.SummaryVec
	efficiency      *prometheus.SummaryVec
}

// NewPrometheus constructs a new Prometheus metrics recorder, its metrics
// registered with reg and named with the service prefix
func NewPrometheus(service string, reg prometheus.Registerer) Recorder {
	factory := promauto.With(reg)
	labels := []string{"link", "protocol"}
	return &prom{
		runs: factory.NewCounter(prometheus.CounterOpts{
			Name: service + "_runs_total",
			Help: "The total number of simulation runs recorded",
		}),
		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: service + "_frames_sent_total",
			Help: "Data frames put on the forward channel, retransmissions included",
		}, labels),
		retransmissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: service + "_retransmissions_total",
			Help: "Data frames sent more than once",
		}, labels),
		timeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: service + "_timeouts_total",
			Help: "Retransmission timers that expired",
		}, labels),
		delivered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: service + "_delivered_total",
			Help: "Packets delivered to the sink",
		}, labels),
		corrupted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: service + "_corrupted_total",
			Help: "Frames hit by at least one bit error, both directions",
		}, labels),
		throughput: factory.NewSummaryVec(prometheus.SummaryOpts{
			Name: service + "_throughput_bits",
			Help: "Payload bits delivered per second of simulation time",
		}, labels),
		efficiency: factory.NewSummaryVec(prometheus.SummaryOpts{
			Name: service + "_efficiency_ratio",
			Help: "Payload bits delivered over the bits the forward channel could carry",
		}, labels),
	}
}

func (m *prom) Record(rep *Report) {
	m.runs.Inc()
	for _, lr := range rep.Links {
		labels := prometheus.Labels{"link": lr.Link, "protocol": lr.Protocol}
		m.framesSent.With(labels).Add(float64(lr.Tx.FramesSent))
		m.retransmissions.With(labels).Add(float64(lr.Tx.Retransmissions))
		m.timeouts.With(labels).Add(float64(lr.Tx.Timeouts))
		m.delivered.With(labels).Add(float64(lr.Delivered))
		m.corrupted.With(labels).Add(float64(lr.Forward.Corrupted + lr.Reverse.Corrupted))
		m.throughput.With(labels).Observe(lr.Throughput)
		m.efficiency.With(labels).Observe(lr.Efficiency)
	}
}

// WriteMetrics writes everything gathered by g to filename in the
// Prometheus text format
func WriteMetrics(filename string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(filename, g)
}
