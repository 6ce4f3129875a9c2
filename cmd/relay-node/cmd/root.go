package cmd

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	serialPort string
	version    string
)

var rootCmd = &cobra.Command{
	Use:   "relay-node",
	Short: "LoRaWAN relay node",
	Long: `relay-node drives a LoRaWAN modem over a serial port, joins the network
and relays uplinks, settings and commands between the radio and NATS.`,
	RunE: run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&serialPort, "port", "p", "", "serial port of the modem (overrides serial_port)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(probeCmd)
}

// Execute executes the root command.
func Execute(v string) {
	version = v

	log.SetReportTimestamp(true)

	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
