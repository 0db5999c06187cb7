package commands

import (
	"fmt"

	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/spf13/cobra"

	"github.com/iti/arqsim"
)

var log = logging.MustGetLogger("arqsim-cli")

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "arqsim",
	Short: "Discrete-event simulator of ARQ protocols over a noisy link",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		lvl, err := logging.LevelFromString(logLevel)
		catch(err, "invalid log level:")
		logging.SetLevel(lvl)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "logging level: debug, info, warn, error")
	rootCmd.AddCommand(runCmd, sweepCmd, configCmd)
}

// Execute executes root CLI command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// catch handles errors for arqsim commands
func catch(err error, msgs ...string) {
	if err != nil {
		if len(msgs) > 0 {
			log.Fatalln(append(msgs, err.Error()))
		} else {
			log.Fatalln(err)
		}
	}
}

// loadCfg reads the configuration named in args, or returns the default one
func loadCfg(args []string) *arqsim.SimCfg {
	if len(args) == 0 {
		return arqsim.DefaultSimCfg()
	}
	ok, err := arqsim.CheckReadableFiles(args[:1])
	if !ok {
		catch(err, fmt.Sprintf("cannot read %s:", args[0]))
	}
	cfg, err := arqsim.ReadSimCfg(args[0], arqsim.UseYAML(args[0]), nil)
	catch(err, fmt.Sprintf("failed to load %s:", args[0]))
	return cfg
}

// checkOutputs makes sure every non-empty output file name can be written
func checkOutputs(names ...string) {
	ok, err := arqsim.CheckOutputFiles(names)
	if !ok {
		catch(err, "cannot write output:")
	}
}
