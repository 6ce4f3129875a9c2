// Package command handles single-byte commands sent by the network on the
// command port.
package command

import (
	"sync"

	"github.com/charmbracelet/log"
)

const DefaultPort = 30

// Command codes with an action on the node.
const (
	CodeNoop        byte = 0x00
	CodeResetConfig byte = 0x10
)

type Action func(code byte)

// Handler runs the action registered for a command code and forwards
// every received command to its publishers.
type Handler struct {
	port   int
	logger *log.Logger

	mutex      sync.Mutex
	actions    map[byte]Action
	publishers []func(code byte, known bool)
}

type Option func(*Handler)

func WithPort(port int) Option {
	return func(h *Handler) {
		h.port = port
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		port:    DefaultPort,
		logger:  log.WithPrefix("command"),
		actions: make(map[byte]Action),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Handle registers action for code, replacing any previous one.
func (h *Handler) Handle(code byte, action Action) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.actions[code] = action
}

// Publish registers fn to be told about every received command.
func (h *Handler) Publish(fn func(code byte, known bool)) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.publishers = append(h.publishers, fn)
}

func (h *Handler) PacketPort() int {
	return h.port
}

func (h *Handler) Receive(code byte) {
	h.mutex.Lock()
	action, known := h.actions[code]
	publishers := append([]func(byte, bool){}, h.publishers...)
	h.mutex.Unlock()

	if known {
		h.logger.Info("Command received", "code", code)
		action(code)
	} else {
		h.logger.Warn("Unknown command", "code", code)
	}

	for _, fn := range publishers {
		fn(code, known)
	}
}
