package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/Archie3d/lora-relay-node/pkg/node"
	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func loadConfig() (*node.NodeConfiguration, error) {
	config := node.DefaultNodeConfiguration()

	if cfgFile != "" {
		var err error
		config, err = node.LoadNodeConfiguration(cfgFile)
		if err != nil {
			return nil, errors.Wrap(err, "load configuration error")
		}
	} else {
		log.Warn("No configuration file given, using defaults")
		if err := config.Resolve(); err != nil {
			return nil, err
		}
		if err := config.Validate(); err != nil {
			return nil, errors.Wrap(err, "invalid default configuration")
		}
	}

	if serialPort != "" {
		config.SerialPort = serialPort
	}

	if config.SerialPort == "" {
		return nil, errors.New("serial port is not specified")
	}

	return config, nil
}

func run(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	// Loggers pick up the level when they are created
	log.SetLevel(config.Level())

	log.Info("Starting relay node", "version", version, "port", config.SerialPort)

	n := node.NewNode(config)
	if err := n.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	log.Info("Signal received", "signal", <-sigChan)

	exitChan := make(chan error)
	go func() {
		log.Warn("Stopping relay node")
		exitChan <- n.Stop()
	}()

	select {
	case err := <-exitChan:
		return err
	case s := <-sigChan:
		log.Info("Signal received, stopping immediately", "signal", s)
	}

	return nil
}
