package link

import (
	"github.com/Archie3d/lora-relay-node/pkg/types"
	"github.com/pkg/errors"
)

// Send submits an unconfirmed uplink. It fails without touching the radio
// when there is no session or a transmission is still in flight. The
// returned outcome starts pending and is settled by the next transmission
// done event.
func (l *Link) Send(port uint8, payload []byte) (*Outcome, error) {
	if !l.stack.Joined() {
		uplinkCounter("not_joined").Inc()
		l.logger.Debug("Uplink refused, not joined", "port", port)
		return nil, &types.NotJoinedError{}
	}

	if l.stack.Busy() {
		uplinkCounter("busy").Inc()
		l.logger.Debug("Uplink refused, radio busy", "port", port)
		return nil, &types.BusyError{}
	}

	l.applyRadioParameters()

	if l.config.EnforcePayloadSize {
		if limit := l.stack.MaxPayloadSize(); limit > 0 && len(payload) > limit {
			uplinkCounter("too_large").Inc()
			return nil, &types.PayloadSizeError{Size: len(payload), Max: limit}
		}
	}

	response, err := l.stack.SendPacket(port, payload, false)
	if err != nil {
		uplinkCounter("error").Inc()
		return nil, errors.Wrap(err, "send packet error")
	}

	if response <= 0 {
		uplinkCounter("rejected").Inc()
		return nil, &types.RejectedError{Code: response}
	}

	outcome := newOutcome(port, len(payload))

	l.mutex.Lock()
	previous := l.lastOutcome
	l.lastOutcome = outcome
	l.mutex.Unlock()

	if previous != nil {
		previous.resolve(OutcomeSuperseded)
	}

	uplinkCounter("submitted").Inc()
	l.logger.Debug("Uplink submitted", "port", port, "size", len(payload))

	return outcome, nil
}

func (l *Link) applyRadioParameters() {
	if l.settings == nil {
		return
	}

	params := ParseRadioParameters(l.settings.DataRateADR(), l.config.TxPower)

	l.warnOnError("set adr", l.stack.SetADR(params.ADR))
	l.warnOnError("set data rate", l.stack.SetDataRate(params.DataRate))
}

// OnTransmit settles the last submitted uplink.
func (l *Link) OnTransmit() {
	l.mutex.Lock()
	outcome := l.lastOutcome
	l.mutex.Unlock()

	if l.stack.LinkGateways() == 0 {
		transmitDoneCounter("disconnected").Inc()
		l.logger.Warn("Transmission done, no gateway reachable")

		if outcome != nil {
			outcome.resolve(OutcomeDisconnected)
		}
		return
	}

	transmitDoneCounter("delivered").Inc()

	if outcome != nil {
		outcome.resolve(OutcomeDelivered)
	}
}

// LastOutcome returns the outcome of the most recently accepted uplink,
// or nil if nothing has been sent yet.
func (l *Link) LastOutcome() *Outcome {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.lastOutcome
}

// Delivered reports whether the most recently accepted uplink was
// confirmed delivered. An uplink settled as disconnected, because its
// transmission finished with no gateway reachable, stays undelivered for
// good: later done events do not revisit it. Only a new Send can make
// Delivered true again.
func (l *Link) Delivered() bool {
	outcome := l.LastOutcome()
	return outcome != nil && outcome.Delivered()
}
