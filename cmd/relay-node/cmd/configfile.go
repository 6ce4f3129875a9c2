package cmd

import (
	"os"

	"github.com/Archie3d/lora-relay-node/pkg/node"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "configfile",
	Short: "Print the relay node configuration file",
	Long:  "Print the configuration file with the values of --config applied on top of the defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		config := node.DefaultNodeConfiguration()

		if cfgFile != "" {
			var err error
			config, err = node.LoadNodeConfiguration(cfgFile)
			if err != nil {
				return errors.Wrap(err, "load configuration error")
			}
		}

		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		defer encoder.Close()

		if err := encoder.Encode(config); err != nil {
			return errors.Wrap(err, "encode configuration error")
		}

		return nil
	},
}
