package link

import (
	"math"
	"time"

	"github.com/Archie3d/lora-relay-node/pkg/event_loop"
	"github.com/brocaar/lorawan"
	"github.com/pkg/errors"
)

const (
	// RejoinRetryDelay spaces out retries of refused rejoin requests when
	// no backoff is configured.
	RejoinRetryDelay = 5 * time.Second

	// MaxImmediateRejoinRetries bounds retries of refused rejoin requests
	// on a link without a scheduler.
	MaxImmediateRejoinRetries = 3
)

// Backoff spaces out rejoin requests: the n-th consecutive failure waits
// Initial * Factor^n, capped at Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
}

func (b Backoff) Enabled() bool {
	return b.Initial > 0
}

func (b Backoff) Delay(attempt int) time.Duration {
	if !b.Enabled() {
		return 0
	}

	factor := b.Factor
	if factor < 1 {
		factor = 1
	}

	delay := time.Duration(float64(b.Initial) * math.Pow(factor, float64(attempt)))
	if b.Max > 0 && (delay > b.Max || delay <= 0) {
		delay = b.Max
	}
	return delay
}

// Initialize brings up the radio and attempts the ABP join, or an OTAA
// join when no ABP session is provisioned. Only a radio that cannot start
// is reported as an error; being initialized does not mean being joined.
func (l *Link) Initialize() error {
	if err := l.stack.Begin(l.config.Region); err != nil {
		return errors.Wrap(err, "radio begin error")
	}

	// Single channel deployment, no duty cycle accounting
	l.warnOnError("set duty cycle", l.stack.SetDutyCycle(false))
	l.warnOnError("set tx power", l.stack.SetTxPower(l.config.TxPower))
	l.warnOnError("set data rate", l.stack.SetDataRate(l.config.DataRate))
	l.warnOnError("set public network", l.stack.SetPublicNetwork(true))

	l.stack.SetEventSink(l)

	// Lets a reboot under poor signal resume the previous session
	l.warnOnError("set save session", l.stack.SetSaveSession(true))

	if l.config.DevAddr == (lorawan.DevAddr{}) {
		l.logger.Info("No ABP session provisioned, joining over the air")
		l.requestOTAA()
		return nil
	}

	err := l.stack.JoinABP(l.config.DevAddr, l.config.NwkSKey, l.config.AppSKey)
	if err != nil {
		l.logger.Warn("ABP join failed", "dev_addr", l.config.DevAddr, "err", err)
	} else {
		l.logger.Info("ABP join requested", "dev_addr", l.config.DevAddr)
	}

	return nil
}

// Joined reports whether the stack currently holds a network session.
func (l *Link) Joined() bool {
	return l.stack.Joined()
}

// OnJoin handles the result of a join attempt.
func (l *Link) OnJoin() {
	l.joining.Store(false)

	if l.stack.Joined() {
		joinEventCounter("joined").Inc()
		l.rejoinAttempts = 0

		l.logger.Info("Joined",
			"rx2_frequency", l.config.RX2Frequency,
			"rx2_dr", l.config.RX2DataRate,
		)

		l.warnOnError("set rx2 channel", l.stack.SetRX2Channel(l.config.RX2Frequency, l.config.RX2DataRate))
		return
	}

	joinEventCounter("failed").Inc()
	l.requestRejoin()
}

func (l *Link) requestRejoin() {
	delay := l.config.RejoinBackoff.Delay(l.rejoinAttempts)

	if delay <= 0 || l.scheduler == nil {
		l.rejoin()
		return
	}

	l.logger.Info("Rejoin scheduled", "in", delay, "attempt", l.rejoinAttempts+1)
	l.joining.Store(true)

	l.scheduler.Post(func(el event_loop.EventLoop) {
		if l.stack.Joined() {
			l.joining.Store(false)
			return
		}
		l.rejoin()
	}, time.Now().Add(delay))
}

func (l *Link) rejoin() {
	l.rejoinAttempts++
	l.logger.Info("Rejoin", "attempt", l.rejoinAttempts)

	l.requestOTAA()
}

// requestOTAA asks the stack to join. A refused request produces no join
// event, so it is retried here: later on the scheduler when there is one,
// otherwise right away a bounded number of times.
func (l *Link) requestOTAA() {
	l.joining.Store(true)

	for refused := 1; ; refused++ {
		rjc.Inc()

		err := l.stack.RejoinOTAA()
		if err == nil {
			return
		}

		l.logger.Warn("Rejoin request failed", "err", err)

		if l.scheduler != nil {
			l.scheduleRetry()
			return
		}

		if refused >= MaxImmediateRejoinRetries {
			l.joining.Store(false)
			l.logger.Error("Rejoin requests keep failing, giving up", "requests", refused)
			return
		}
	}
}

func (l *Link) scheduleRetry() {
	delay := l.config.RejoinBackoff.Delay(l.rejoinAttempts)
	if delay <= 0 {
		delay = RejoinRetryDelay
	}

	l.logger.Info("Rejoin request retry scheduled", "in", delay)

	l.scheduler.Post(func(el event_loop.EventLoop) {
		if l.stack.Joined() {
			l.joining.Store(false)
			return
		}
		l.rejoin()
	}, time.Now().Add(delay))
}

func (l *Link) warnOnError(what string, err error) {
	if err != nil {
		l.logger.Warn("Radio configuration failed", "op", what, "err", err)
	}
}
