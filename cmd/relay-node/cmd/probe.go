package cmd

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/Archie3d/lora-relay-node/pkg/client"
	"github.com/Archie3d/lora-relay-node/pkg/event_loop"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	probePort    uint8
	probePayload string
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Query the modem and optionally send a single uplink",
	RunE:  probe,
}

func init() {
	probeCmd.Flags().Uint8Var(&probePort, "send-port", 1, "application port of the test uplink")
	probeCmd.Flags().StringVar(&probePayload, "send", "", "hex payload of a test uplink, nothing is sent when empty")
}

func probe(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	eventLoop := event_loop.NewEventLoop()
	go eventLoop.Run()
	defer eventLoop.Quit()

	modem := client.NewModem(eventLoop)
	if err := modem.Open(config.SerialPort); err != nil {
		return err
	}
	defer modem.Close()

	version, err := modem.Version()
	if err != nil {
		return errors.Wrap(err, "get version error")
	}

	fmt.Printf("Version:   %s\n", version)
	fmt.Printf("Joined:    %t\n", modem.Joined())
	fmt.Printf("Busy:      %t\n", modem.Busy())
	fmt.Printf("Max size:  %d\n", modem.MaxPayloadSize())

	if probePayload == "" {
		return nil
	}

	payload, err := hex.DecodeString(probePayload)
	if err != nil {
		return errors.Wrap(err, "decode payload error")
	}

	start := time.Now()
	result, err := modem.SendPacket(probePort, payload, false)
	if err != nil {
		return errors.Wrap(err, "send packet error")
	}

	fmt.Printf("Sent:      %d (%s)\n", result, time.Since(start))

	return nil
}
