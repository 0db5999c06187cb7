package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iti/arqsim"
)

var (
	cfgOutput  string
	cfgReplace bool
)

func init() {
	configCmd.AddCommand(genConfigCmd, checkConfigCmd)
	genConfigCmd.Flags().StringVarP(&cfgOutput, "output", "o", "arqsim.yaml", "path of output config file, .yaml or .json")
	genConfigCmd.Flags().BoolVarP(&cfgReplace, "replace", "r", false, "whether to allow rewrite of a file that already exists.")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Writes and checks simulation configurations",
}

var genConfigCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generates the default configuration file",
	Run: func(_ *cobra.Command, _ []string) {
		if _, err := os.Stat(cfgOutput); err == nil && !cfgReplace {
			log.Fatalf("%s exists, use --replace to overwrite it", cfgOutput)
		}
		checkOutputs(cfgOutput)
		catch(arqsim.DefaultSimCfg().WriteToFile(cfgOutput), "failed to write config:")
		log.Infof("configuration written to %s", cfgOutput)
	},
}

var checkConfigCmd = &cobra.Command{
	Use:   "check config.yaml|config.json",
	Short: "Validates a configuration and shows the channels it builds",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		cfg := loadCfg(args)
		catch(cfg.Validate())
		topo, err := arqsim.BuildTopology(cfg)
		catch(err)

		fmt.Printf("%s: %d links, %d nodes, %d channels\n", cfg.Name, len(cfg.Links), topo.NumNodes(), topo.NumChannels())
		for _, ld := range cfg.Links {
			hops, err := topo.Path(ld.Sender, ld.Receiver)
			catch(err)
			fmt.Printf("  %s %s: %v\n", ld.Name, cfg.LinkProtocol(&ld), hops)
		}
	},
}
