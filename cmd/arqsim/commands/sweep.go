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
	sweepProbs        []float64
	sweepReplications int
	sweepOutput       string
	sweepMetrics      string
)

func init() {
	sweepCmd.Flags().Float64SliceVar(&sweepProbs, "probs", []float64{0.0, 1e-4, 1e-3, 1e-2},
		"bit error probabilities to sweep")
	sweepCmd.Flags().IntVarP(&sweepReplications, "replications", "n", 0, "independent runs per error probability")
	sweepCmd.Flags().StringVarP(&sweepOutput, "output", "o", "", "write the sweep result to this .yaml or .json file")
	sweepCmd.Flags().StringVarP(&sweepMetrics, "metrics", "m", "", "write the counters of every run to this file in Prometheus text format")
	sweepCmd.Flags().StringVarP(&protocol, "protocol", "p", "", "ARQ protocol: stop-and-wait, go-back-n, selective-repeat")
	sweepCmd.Flags().IntVarP(&window, "window", "w", 0, "sender window of go-back-n and selective-repeat")
	sweepCmd.Flags().Float64VarP(&timeout, "timeout", "t", 0.0, "retransmission timeout in seconds")
	sweepCmd.Flags().Float64Var(&horizon, "horizon", 0.0, "simulation time to run to, in seconds")
}

var sweepCmd = &cobra.Command{
	Use:   "sweep [config.yaml|config.json]",
	Short: "Runs replicated simulations over a range of error probabilities",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadCfg(args)
		applyFlags(cmd, cfg)
		if cmd.Flags().Changed("replications") {
			cfg.Replications = sweepReplications
		}
		catch(cfg.Validate())
		checkOutputs(sweepOutput, sweepMetrics)

		reg := prometheus.NewRegistry()
		result, err := arqsim.Sweep(cfg, sweepProbs, arqsim.NewPrometheus("arqsim", reg))
		catch(err, "sweep failed:")

		if len(sweepOutput) > 0 {
			catch(result.WriteToFile(sweepOutput), "failed to write sweep result:")
		} else {
			out, err := yaml.Marshal(result)
			catch(err)
			fmt.Fprint(os.Stdout, string(out))
		}
		if len(sweepMetrics) > 0 {
			catch(arqsim.WriteMetrics(sweepMetrics, reg), "failed to write metrics:")
		}
	},
}
