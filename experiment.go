package arqsim

// experiment.go runs simulations and reports on them.  RunExperiment builds
// a network from a SimCfg, advances it to the horizon, and summarizes what
// every link did.  Sweep repeats that over a list of error probabilities,
// with independent replications at each point.

import (
	"os"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
)

// LinkReport is the outcome of one link over one run
type LinkReport struct {
	Link     string `json:"link" yaml:"link"`
	Protocol string `json:"protocol" yaml:"protocol"`
	Window   int    `json:"window" yaml:"window"`

	// Pushed is the number of packets the source handed down
	Pushed int `json:"pushed" yaml:"pushed"`

	// Delivered is the number of packets the sink received
	Delivered int `json:"delivered" yaml:"delivered"`

	// Held is the number of packets still in the sender's buffer at the horizon
	Held int `json:"held" yaml:"held"`

	// Throughput is the payload bits delivered per second
	Throughput float64 `json:"throughput" yaml:"throughput"`

	// Efficiency is the payload bits delivered over the bits the forward channel could carry
	Efficiency float64 `json:"efficiency" yaml:"efficiency"`

	// DroppedData and DroppedReplies count frames failing the integrity check at the receiver and at the sender
	DroppedData    int `json:"droppeddata" yaml:"droppeddata"`
	DroppedReplies int `json:"droppedreplies" yaml:"droppedreplies"`

	Tx      LinkStats    `json:"tx" yaml:"tx"`
	Rx      LinkStats    `json:"rx" yaml:"rx"`
	Forward ChannelStats `json:"forward" yaml:"forward"`
	Reverse ChannelStats `json:"reverse" yaml:"reverse"`
}

// Report is the outcome of one run
type Report struct {
	Name       string       `json:"name" yaml:"name"`
	RunID      string       `json:"runid" yaml:"runid"`
	Horizon    float64      `json:"horizon" yaml:"horizon"`
	Dispatched int          `json:"dispatched" yaml:"dispatched"`
	Links      []LinkReport `json:"links" yaml:"links"`
}

// Delivered returns the packets delivered over all links
func (rep *Report) Delivered() int {
	total := 0
	for _, lr := range rep.Links {
		total += lr.Delivered
	}
	return total
}

// Throughput returns the payload bits per second delivered over all links
func (rep *Report) Throughput() float64 {
	total := 0.0
	for _, lr := range rep.Links {
		total += lr.Throughput
	}
	return total
}

// Efficiency returns the mean efficiency of the links
func (rep *Report) Efficiency() float64 {
	if len(rep.Links) == 0 {
		return 0.0
	}
	total := 0.0
	for _, lr := range rep.Links {
		total += lr.Efficiency
	}
	return total / float64(len(rep.Links))
}

// Retransmissions returns the data frames sent more than once over all links
func (rep *Report) Retransmissions() int {
	total := 0
	for _, lr := range rep.Links {
		total += lr.Tx.Retransmissions
	}
	return total
}

// WriteToFile stores the Report to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (rep *Report) WriteToFile(filename string) error {
	bytes, err := marshalByExt(filename, *rep)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, bytes, 0644)
}

// Run advances the network to horizon
func (net *Network) Run(horizon float64) error {
	return net.Sim.Advance(horizon)
}

// Report summarizes the network as it stands.  packetSize is the payload
// width used to turn packet counts into bits
func (net *Network) Report(packetSize int) *Report {
	rep := new(Report)
	rep.Name = net.Name
	rep.RunID = net.RunID
	rep.Horizon = net.Sim.Now()
	rep.Dispatched = net.Sim.Dispatched()
	rep.Links = make([]LinkReport, 0, len(net.Links))

	for _, lnk := range net.Links {
		lr := LinkReport{Link: lnk.Desc.Name, Protocol: lnk.Protocol.String(), Window: lnk.Window}
		lr.Pushed = lnk.Source.Pushed()
		lr.Delivered = lnk.Sink.Count()
		lr.Held = lnk.Sender.Engine().Buffered()
		lr.DroppedData = lnk.Receiver.Phy().Dropped()
		lr.DroppedReplies = lnk.Sender.Phy().Dropped()
		lr.Tx = lnk.Sender.Engine().Stats()
		lr.Rx = lnk.Receiver.Engine().Stats()
		lr.Forward = lnk.Forward.Stats()
		lr.Reverse = lnk.Reverse.Stats()
		if rep.Horizon > 0.0 {
			bits := float64(lr.Delivered * packetSize)
			lr.Throughput = bits / rep.Horizon
			lr.Efficiency = bits / (rep.Horizon * lnk.Forward.Params().TransRate)
		}
		rep.Links = append(rep.Links, lr)
	}
	return rep
}

// RunExperiment builds the network cfg describes, runs it to the horizon and
// reports.  A run id is drawn if opts does not carry one, and a trace manager
// is created if cfg asks for a trace and opts does not carry one.  The network
// is returned too, for inspection
func RunExperiment(cfg *SimCfg, opts BuildOpts) (*Report, *Network, error) {
	if len(opts.RunID) == 0 {
		opts.RunID = uuid.New().String()
	}
	if opts.TM == nil && cfg.Trace {
		opts.TM = CreateTraceManager(cfg.Name, opts.RunID, true)
	}

	net, err := BuildNetwork(cfg, opts)
	if err != nil {
		return nil, nil, err
	}
	runLog := logger.WithField("run", opts.RunID)
	runLog.Debugf("running %s to %g", cfg.Name, cfg.Horizon)

	if err := net.Run(cfg.Horizon); err != nil {
		runLog.WithError(err).Error("run stopped")
		return nil, net, err
	}
	rep := net.Report(cfg.PacketSize)
	runLog.Infof("%s: %d events, %d packets delivered, %d retransmissions",
		cfg.Name, rep.Dispatched, rep.Delivered(), rep.Retransmissions())
	return rep, net, nil
}

// SweepPoint summarizes the replications run at one error probability
type SweepPoint struct {
	ErrorProb          float64  `json:"errorprob" yaml:"errorprob"`
	MeanThroughput     float64  `json:"meanthroughput" yaml:"meanthroughput"`
	StdDevThroughput   float64  `json:"stddevthroughput" yaml:"stddevthroughput"`
	MeanEfficiency     float64  `json:"meanefficiency" yaml:"meanefficiency"`
	StdDevEfficiency   float64  `json:"stddevefficiency" yaml:"stddevefficiency"`
	MeanRetransmission float64  `json:"meanretransmission" yaml:"meanretransmission"`
	RunIDs             []string `json:"runids" yaml:"runids"`
}

// SweepResult is the outcome of a sweep
type SweepResult struct {
	Name     string       `json:"name" yaml:"name"`
	Protocol string       `json:"protocol" yaml:"protocol"`
	Points   []SweepPoint `json:"points" yaml:"points"`
}

// WriteToFile stores the SweepResult to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (sr *SweepResult) WriteToFile(filename string) error {
	bytes, err := marshalByExt(filename, *sr)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, bytes, 0644)
}

// Sweep runs cfg once per replication at each error probability in probs.
// Every run is handed to rec.  Channel parameter assignments in cfg that set
// an error probability take precedence over the swept value
func Sweep(cfg *SimCfg, probs []float64, rec Recorder) (*SweepResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rec == nil {
		rec = NewDummy()
	}
	result := &SweepResult{Name: cfg.Name, Protocol: cfg.Protocol, Points: make([]SweepPoint, 0, len(probs))}

	for _, p := range probs {
		pointCfg := *cfg
		pointCfg.ErrorProb = p
		pointCfg.Trace = false

		throughput := make([]float64, 0, cfg.Replications)
		efficiency := make([]float64, 0, cfg.Replications)
		retrans := make([]float64, 0, cfg.Replications)
		point := SweepPoint{ErrorProb: p, RunIDs: make([]string, 0, cfg.Replications)}

		for rep := 0; rep < cfg.Replications; rep++ {
			report, _, err := RunExperiment(&pointCfg, BuildOpts{})
			if err != nil {
				return nil, err
			}
			rec.Record(report)
			throughput = append(throughput, report.Throughput())
			efficiency = append(efficiency, report.Efficiency())
			retrans = append(retrans, float64(report.Retransmissions()))
			point.RunIDs = append(point.RunIDs, report.RunID)
		}

		point.MeanThroughput, point.StdDevThroughput = meanStdDev(throughput)
		point.MeanEfficiency, point.StdDevEfficiency = meanStdDev(efficiency)
		point.MeanRetransmission = stat.Mean(retrans, nil)
		result.Points = append(result.Points, point)

		logger.Infof("p=%g: throughput %g (+/- %g) bits/s over %d runs", p, point.MeanThroughput,
			point.StdDevThroughput, cfg.Replications)
	}
	return result, nil
}

// meanStdDev is stat.MeanStdDev, with a standard deviation of zero for a single sample
func meanStdDev(x []float64) (float64, float64) {
	if len(x) < 2 {
		return stat.Mean(x, nil), 0.0
	}
	return stat.MeanStdDev(x, nil)
}
