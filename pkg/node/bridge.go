package node

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Archie3d/lora-relay-node/pkg/link"
	"github.com/Archie3d/lora-relay-node/pkg/settings"
	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
)

const (
	SubjectUplink    = "out.uplink"
	SubjectTxOutcome = "in.tx_outcome"
	SubjectCommand   = "in.command"
	SubjectSettings  = "in.settings"
	SubjectLinkCheck = "in.link_check"

	// Longest wait for an uplink to report completion
	outcomeTimeout = 5 * time.Minute
)

type UplinkRequest struct {
	Port    uint8  `json:"port"`
	Payload []byte `json:"payload"`
}

type UplinkReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type TxOutcomeMessage struct {
	Port        uint8     `json:"port"`
	Size        int       `json:"size"`
	Status      string    `json:"status"`
	Delivered   bool      `json:"delivered"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type CommandMessage struct {
	Code  byte `json:"code"`
	Known bool `json:"known"`
}

// Publisher is the subset of *nats.Conn the bridge publishes through.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Sender submits an uplink on behalf of a remote application.
type Sender interface {
	Send(ctx context.Context, port uint8, payload []byte) (*link.Outcome, error)
}

// Bridge connects the link to NATS: uplink requests come in, outcomes,
// commands, settings and link checks go out.
type Bridge struct {
	prefix    string
	publisher Publisher
	sender    Sender
	logger    *log.Logger

	subscription *nats.Subscription

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Guards wg.Go against a concurrent Stop
	mutex   sync.Mutex
	stopped bool
}

func NewBridge(prefix string, publisher Publisher, sender Sender) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())

	return &Bridge{
		prefix:    prefix,
		publisher: publisher,
		sender:    sender,
		logger:    log.WithPrefix("nats"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (b *Bridge) Subject(name string) string {
	return b.prefix + "." + name
}

// Subscribe starts accepting uplink requests.
func (b *Bridge) Subscribe(nc *nats.Conn) error {
	sub, err := nc.Subscribe(b.Subject(SubjectUplink), b.handleUplink)
	if err != nil {
		return err
	}

	b.subscription = sub
	return nil
}

func (b *Bridge) Stop() {
	if b.subscription != nil {
		b.subscription.Unsubscribe()
	}

	b.mutex.Lock()
	b.stopped = true
	b.cancel()
	b.mutex.Unlock()

	b.wg.Wait()
}

func (b *Bridge) handleUplink(msg *nats.Msg) {
	var request UplinkRequest

	if err := json.Unmarshal(msg.Data, &request); err != nil {
		b.logger.Warn("Invalid uplink request", "err", err)
		b.reply(msg, err)
		return
	}

	outcome, err := b.sender.Send(b.ctx, request.Port, request.Payload)
	b.reply(msg, err)

	if err != nil {
		b.logger.Debug("Uplink not sent", "port", request.Port, "err", err)
		return
	}

	b.watchOutcome(outcome)
}

// watchOutcome publishes the outcome once it resolves. Nothing is
// watched after Stop.
func (b *Bridge) watchOutcome(outcome *link.Outcome) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.stopped {
		return
	}

	b.wg.Go(func() {
		ctx, cancel := context.WithTimeout(b.ctx, outcomeTimeout)
		defer cancel()

		if _, err := outcome.Wait(ctx); err != nil {
			return
		}

		b.PublishOutcome(outcome)
	})
}

func (b *Bridge) reply(msg *nats.Msg, err error) {
	if msg.Reply == "" {
		return
	}

	reply := UplinkReply{OK: err == nil}
	if err != nil {
		reply.Error = err.Error()
	}

	b.publishJSON(msg.Reply, reply)
}

func (b *Bridge) PublishOutcome(outcome *link.Outcome) {
	b.publishJSON(b.Subject(SubjectTxOutcome), TxOutcomeMessage{
		Port:        outcome.Port,
		Size:        outcome.Size,
		Status:      outcome.Status().String(),
		Delivered:   outcome.Delivered(),
		SubmittedAt: outcome.SubmittedAt,
	})
}

func (b *Bridge) PublishCommand(code byte, known bool) {
	b.publishJSON(b.Subject(SubjectCommand), CommandMessage{Code: code, Known: known})
}

func (b *Bridge) PublishSettings(record settings.Record) {
	b.publishJSON(b.Subject(SubjectSettings), record)
}

func (b *Bridge) PublishLinkQuality(quality link.LinkQuality) {
	b.publishJSON(b.Subject(SubjectLinkCheck), quality)
}

func (b *Bridge) publishJSON(subject string, v any) {
	if b.publisher == nil {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("Encode message error", "subject", subject, "err", err)
		return
	}

	if err := b.publisher.Publish(subject, data); err != nil {
		b.logger.Warn("Publish error", "subject", subject, "err", err)
	}
}
