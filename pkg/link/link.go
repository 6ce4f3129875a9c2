// Package link is the radio-link layer of the relay node.
//
// A Link drives a radio.Stack: it joins the network, submits uplinks
// once the session is up and routes downlinks to the settings and
// command consumers by port. It implements radio.EventSink, so the stack
// calls back into it when a join, link check, transmission or reception
// completes.
//
// Send and the event handlers are meant to run on one goroutine (the
// node's event loop). State, LastOutcome and LinkQuality may be read
// from anywhere.
package link

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Archie3d/lora-relay-node/pkg/event_loop"
	"github.com/Archie3d/lora-relay-node/pkg/radio"
	"github.com/brocaar/lorawan"
	"github.com/brocaar/lorawan/band"
	"github.com/charmbracelet/log"
)

const (
	DefaultTxPower     = 20
	DefaultDataRate    = 3
	DefaultRX2DataRate = 3 // SF9, used once joined
)

// SettingsConsumer receives settings records sent by the network.
type SettingsConsumer interface {
	PacketPort() int
	// RecordSize is the exact size of a settings record in bytes.
	RecordSize() int
	// DataRateADR returns the packed radio byte: bit 7 enables ADR, the
	// low nibble selects the data rate.
	DataRateADR() byte
	ApplyDownlink(record []byte)
}

// CommandConsumer receives single-byte commands sent by the network.
type CommandConsumer interface {
	PacketPort() int
	Receive(command byte)
}

// Scheduler runs a callback at a later time. event_loop.EventLoop
// satisfies it.
type Scheduler interface {
	Post(callback event_loop.CallbackFunc, scheduledBy time.Time)
}

type Config struct {
	Region       band.Name
	TxPower      int
	DataRate     int
	RX2Frequency uint32
	RX2DataRate  int

	// ABP fallback session. A zero DevAddr skips the ABP join.
	DevAddr lorawan.DevAddr
	NwkSKey lorawan.AES128Key
	AppSKey lorawan.AES128Key

	// RejoinBackoff delays rejoin requests after failed joins. The zero
	// value rejoins immediately on every failure.
	RejoinBackoff Backoff

	// EnforcePayloadSize rejects uplinks larger than the stack reports
	// for the current data rate.
	EnforcePayloadSize bool
}

func DefaultConfig() Config {
	return Config{
		Region:       radio.DefaultRegion,
		TxPower:      DefaultTxPower,
		DataRate:     DefaultDataRate,
		RX2Frequency: 869525000,
		RX2DataRate:  DefaultRX2DataRate,
	}
}

type SessionState int

const (
	Unjoined SessionState = iota
	Joining
	Joined
)

func (s SessionState) String() string {
	switch s {
	case Unjoined:
		return "unjoined"
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	}
	return "unknown"
}

type Link struct {
	config    Config
	stack     radio.Stack
	settings  SettingsConsumer
	commands  CommandConsumer
	scheduler Scheduler
	logger    *log.Logger

	joining        atomic.Bool
	rejoinAttempts int

	downlinkBuffer [DownlinkCapacity]byte

	mutex       sync.Mutex
	lastOutcome *Outcome
	quality     LinkQuality
	observers   []func(LinkQuality)
}

type Option func(l *Link)

// WithScheduler is required for a non-zero rejoin backoff.
func WithScheduler(s Scheduler) Option {
	return func(l *Link) {
		l.scheduler = s
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(l *Link) {
		l.logger = logger
	}
}

// New creates a link on top of the given stack. Either consumer may be
// nil, in which case frames for it are dropped like any unknown port.
func New(stack radio.Stack, settings SettingsConsumer, commands CommandConsumer, config Config, opts ...Option) *Link {
	l := &Link{
		config:   config,
		stack:    stack,
		settings: settings,
		commands: commands,
		logger:   log.WithPrefix("link"),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// State reports the session state. Joined comes live from the stack.
func (l *Link) State() SessionState {
	if l.stack.Joined() {
		return Joined
	}
	if l.joining.Load() {
		return Joining
	}
	return Unjoined
}

var _ radio.EventSink = (*Link)(nil)
