// Package node wires the serial modem, the event loop and the link
// together and exposes them over NATS and Prometheus.
package node

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Archie3d/lora-relay-node/pkg/client"
	"github.com/Archie3d/lora-relay-node/pkg/command"
	"github.com/Archie3d/lora-relay-node/pkg/event_loop"
	"github.com/Archie3d/lora-relay-node/pkg/link"
	"github.com/Archie3d/lora-relay-node/pkg/radio"
	"github.com/Archie3d/lora-relay-node/pkg/settings"
	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const initializeTimeout = 30 * time.Second

type Node struct {
	config *NodeConfiguration
	logger *log.Logger

	eventLoop event_loop.EventLoop
	modem     *client.Modem
	link      *link.Link
	settings  *settings.Store
	commands  *command.Handler

	bridge   *Bridge
	natsConn *nats.Conn
	metrics  *http.Server

	wg sync.WaitGroup
}

// NewNode creates a node talking to the modem on config.SerialPort.
func NewNode(config *NodeConfiguration) *Node {
	eventLoop := event_loop.NewEventLoop()
	modem := client.NewModem(eventLoop)

	n := NewNodeWithStack(config, modem, eventLoop)
	n.modem = modem

	return n
}

// NewNodeWithStack creates a node over an arbitrary radio stack. The
// stack must deliver its events on eventLoop.
func NewNodeWithStack(config *NodeConfiguration, stack radio.Stack, eventLoop event_loop.EventLoop) *Node {
	store := settings.NewStore(
		settings.WithPort(config.Settings.Port),
		settings.WithFile(config.Settings.File),
	)

	commands := command.NewHandler(command.WithPort(config.Command.Port))

	n := &Node{
		config:    config,
		logger:    log.WithPrefix("node"),
		eventLoop: eventLoop,
		settings:  store,
		commands:  commands,
	}

	n.link = link.New(stack, store, commands, config.LinkConfig(), link.WithScheduler(eventLoop))
	n.bridge = NewBridge(config.NatsSubjectPrefix, nil, n)

	commands.Handle(command.CodeNoop, func(byte) {})
	commands.Handle(command.CodeResetConfig, func(byte) {
		store.Reset()
	})

	commands.Publish(n.bridge.PublishCommand)
	store.OnChange(n.bridge.PublishSettings)
	n.link.OnLinkQuality(n.bridge.PublishLinkQuality)

	return n
}

func (n *Node) Link() *link.Link {
	return n.link
}

func (n *Node) Settings() *settings.Store {
	return n.settings
}

func (n *Node) Commands() *command.Handler {
	return n.commands
}

func (n *Node) Start() error {
	if err := n.settings.Load(); err != nil {
		return err
	}

	if n.config.NatsUrl != "" {
		nc, err := nats.Connect(n.config.NatsUrl, nats.Name("lora-relay-node"))
		if err != nil {
			return errors.Wrap(err, "connect to nats error")
		}

		n.natsConn = nc
		n.bridge.publisher = nc
	}

	if n.modem != nil {
		if err := n.modem.Open(n.config.SerialPort); err != nil {
			n.Stop()
			return err
		}

		if version, err := n.modem.Version(); err == nil {
			n.logger.Info("Modem connected", "port", n.config.SerialPort, "version", version)
		} else {
			n.logger.Warn("Modem version query failed", "err", err)
		}
	}

	n.wg.Go(n.eventLoop.Run)

	ctx, cancel := context.WithTimeout(context.Background(), initializeTimeout)
	defer cancel()

	var initErr error
	err := n.eventLoop.Call(ctx, func(event_loop.EventLoop) {
		initErr = n.link.Initialize()
	})

	if err == nil {
		err = initErr
	}

	if err != nil {
		n.Stop()
		return errors.Wrap(err, "initialize link error")
	}

	if n.natsConn != nil {
		if err := n.bridge.Subscribe(n.natsConn); err != nil {
			n.Stop()
			return errors.Wrap(err, "subscribe error")
		}
	}

	n.startMetrics()

	n.logger.Info("Node started", "region", n.config.Radio.Region, "state", n.link.State())

	return nil
}

func (n *Node) startMetrics() {
	if n.config.MetricsBind == "" {
		return
	}

	n.logger.Info("Starting prometheus metrics server", "bind", n.config.MetricsBind)

	n.metrics = &http.Server{
		Handler: promhttp.Handler(),
		Addr:    n.config.MetricsBind,
	}

	n.wg.Go(func() {
		if err := n.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.logger.Error("Metrics server error", "err", err)
		}
	})
}

func (n *Node) Stop() error {
	n.bridge.Stop()

	if n.natsConn != nil {
		if err := n.natsConn.Drain(); err != nil {
			n.logger.Warn("NATS drain error", "err", err)
		}
		n.natsConn = nil
	}

	if n.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		n.metrics.Shutdown(ctx)
		cancel()
		n.metrics = nil
	}

	n.eventLoop.Quit()
	n.wg.Wait()

	if n.modem != nil {
		return n.modem.Close()
	}
	return nil
}

// Send submits an uplink from any goroutine. The link itself only ever
// runs on the event loop.
func (n *Node) Send(ctx context.Context, port uint8, payload []byte) (*link.Outcome, error) {
	var (
		outcome *link.Outcome
		sendErr error
	)

	err := n.eventLoop.Call(ctx, func(event_loop.EventLoop) {
		outcome, sendErr = n.link.Send(port, payload)
	})
	if err != nil {
		return nil, err
	}

	return outcome, sendErr
}
