package commands

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/iti/arqsim"
)

var (
	protocol    string
	errorProb   float64
	window      int
	timeout     float64
	horizon     float64
	reportFile  string
	traceFile   string
	metricsFile string
)

func init() {
	runCmd.Flags().StringVarP(&protocol, "protocol", "p", "", "ARQ protocol: stop-and-wait, go-back-n, selective-repeat")
	runCmd.Flags().Float64VarP(&errorProb, "errorprob", "e", 0.0, "bit error probability of every channel")
	runCmd.Flags().IntVarP(&window, "window", "w", 0, "sender window of go-back-n and selective-repeat")
	runCmd.Flags().Float64VarP(&timeout, "timeout", "t", 0.0, "retransmission timeout in seconds")
	runCmd.Flags().Float64Var(&horizon, "horizon", 0.0, "simulation time to run to, in seconds")
	runCmd.Flags().StringVarP(&reportFile, "report", "r", "", "write the run report to this .yaml or .json file")
	runCmd.Flags().StringVar(&traceFile, "trace", "", "gather a link trace and write it to this .yaml or .json file")
	runCmd.Flags().StringVarP(&metricsFile, "metrics", "m", "", "write the run counters to this file in Prometheus text format")
}

// applyFlags overrides cfg with the flags given on the command line
func applyFlags(cmd *cobra.Command, cfg *arqsim.SimCfg) {
	flags := cmd.Flags()
	if flags.Changed("protocol") {
		cfg.Protocol = protocol
	}
	if flags.Changed("errorprob") {
		cfg.ErrorProb = errorProb
	}
	if flags.Changed("window") {
		cfg.WindowSize = window
	}
	if flags.Changed("timeout") {
		cfg.Timeout = timeout
	}
	if flags.Changed("horizon") {
		cfg.Horizon = horizon
	}
}

var runCmd = &cobra.Command{
	Use:   "run [config.yaml|config.json]",
	Short: "Runs one simulation and reports on it",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadCfg(args)
		applyFlags(cmd, cfg)
		checkOutputs(reportFile, traceFile, metricsFile)

		if len(traceFile) > 0 {
			cfg.Trace = true
		}
		rep, net, err := arqsim.RunExperiment(cfg, arqsim.BuildOpts{})
		catch(err, "simulation failed:")

		if len(traceFile) > 0 {
			catch(net.TM.WriteToFile(traceFile), "failed to write trace:")
		}
		if len(reportFile) > 0 {
			catch(rep.WriteToFile(reportFile), "failed to write report:")
		} else {
			out, err := yaml.Marshal(rep)
			catch(err)
			fmt.Fprint(os.Stdout, string(out))
		}
		if len(metricsFile) > 0 {
			reg := prometheus.NewRegistry()
			arqsim.NewPrometheus("arqsim", reg).Record(rep)
			catch(arqsim.WriteMetrics(metricsFile, reg), "failed to write metrics:")
		}
	},
}
