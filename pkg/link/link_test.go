package link

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Archie3d/lora-relay-node/pkg/event_loop"
	"github.com/Archie3d/lora-relay-node/pkg/radio/radiotest"
	"github.com/Archie3d/lora-relay-node/pkg/types"
	"github.com/brocaar/lorawan"
	"github.com/brocaar/lorawan/band"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	settingsPort = 3
	commandPort  = 30
	recordSize   = 8
)

type settingsSpy struct {
	packed  byte
	applied [][]byte
}

func (s *settingsSpy) PacketPort() int   { return settingsPort }
func (s *settingsSpy) RecordSize() int   { return recordSize }
func (s *settingsSpy) DataRateADR() byte { return s.packed }
func (s *settingsSpy) ApplyDownlink(record []byte) {
	s.applied = append(s.applied, record)
}

type commandSpy struct {
	received []byte
}

func (c *commandSpy) PacketPort() int { return commandPort }
func (c *commandSpy) Receive(command byte) {
	c.received = append(c.received, command)
}

type postedEvent struct {
	callback    event_loop.CallbackFunc
	scheduledBy time.Time
}

type schedulerSpy struct {
	posted []postedEvent
}

func (s *schedulerSpy) Post(callback event_loop.CallbackFunc, scheduledBy time.Time) {
	s.posted = append(s.posted, postedEvent{callback: callback, scheduledBy: scheduledBy})
}

func (s *schedulerSpy) runAll() {
	posted := s.posted
	s.posted = nil
	for _, ev := range posted {
		ev.callback(nil)
	}
}

type fixture struct {
	stack    *radiotest.Stack
	settings *settingsSpy
	commands *commandSpy
	link     *Link
}

func newFixture(t *testing.T, config Config, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		stack:    radiotest.NewStack(),
		settings: &settingsSpy{packed: 0x85},
		commands: &commandSpy{},
	}
	f.link = New(f.stack, f.settings, f.commands, config, opts...)
	require.NoError(t, f.link.Initialize())

	return f
}

func TestInitialize(t *testing.T) {
	config := DefaultConfig()
	config.DevAddr = lorawan.DevAddr{0x26, 0x01, 0x1b, 0xda}
	config.NwkSKey = lorawan.AES128Key{0x01}
	config.AppSKey = lorawan.AES128Key{0x02}

	f := newFixture(t, config)

	assert.Equal(t, band.EU868, f.stack.Region)
	require.NotNil(t, f.stack.DutyCycle)
	assert.False(t, *f.stack.DutyCycle)
	require.NotNil(t, f.stack.TxPower)
	assert.Equal(t, 20, *f.stack.TxPower)
	assert.Equal(t, []int{3}, f.stack.DataRates)
	require.NotNil(t, f.stack.PublicNetwork)
	assert.True(t, *f.stack.PublicNetwork)
	require.NotNil(t, f.stack.SaveSession)
	assert.True(t, *f.stack.SaveSession)

	require.Len(t, f.stack.ABPJoins, 1)
	assert.Equal(t, config.DevAddr, f.stack.ABPJoins[0].DevAddr)
	assert.Equal(t, config.NwkSKey, f.stack.ABPJoins[0].NwkSKey)
	assert.Equal(t, config.AppSKey, f.stack.ABPJoins[0].AppSKey)

	// Initialized is not joined
	assert.False(t, f.link.Joined())
	assert.Equal(t, Unjoined, f.link.State())
}

func TestInitializeWithoutABPKeys(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	// Without an ABP session the link joins over the air
	assert.Empty(t, f.stack.ABPJoins)
	assert.Equal(t, 1, f.stack.Rejoins)
	assert.Equal(t, Joining, f.link.State())
}

func TestInitializeRetriesRefusedJoinRequest(t *testing.T) {
	scheduler := &schedulerSpy{}

	stack := radiotest.NewStack()
	stack.RejoinErrors = []error{errors.New("request timeout")}

	l := New(stack, nil, nil, DefaultConfig(), WithScheduler(scheduler))
	require.NoError(t, l.Initialize())

	assert.Equal(t, 1, stack.Rejoins)
	assert.Equal(t, Joining, l.State())
	require.Len(t, scheduler.posted, 1)

	scheduler.runAll()
	assert.Equal(t, 2, stack.Rejoins)
	assert.Empty(t, scheduler.posted)
}

func TestInitializeABPFailureIsNotFatal(t *testing.T) {
	stack := radiotest.NewStack()
	stack.JoinABPError = errors.New("no keys")

	config := DefaultConfig()
	config.DevAddr = lorawan.DevAddr{0x01, 0x02, 0x03, 0x04}

	l := New(stack, nil, nil, config)
	assert.NoError(t, l.Initialize())
	assert.Len(t, stack.ABPJoins, 1)
}

func TestInitializeFailsWhenRadioDoesNotStart(t *testing.T) {
	stack := radiotest.NewStack()
	stack.BeginError = radiotest.ErrBeginFailed

	l := New(stack, nil, nil, DefaultConfig())
	err := l.Initialize()

	assert.ErrorIs(t, err, radiotest.ErrBeginFailed)
	assert.Nil(t, stack.SaveSession)
	assert.Empty(t, stack.ABPJoins)
}

func TestJoinedIsLive(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	f.stack.SetJoined(true)
	assert.True(t, f.link.Joined())
	assert.Equal(t, Joined, f.link.State())

	f.stack.SetJoined(false)
	assert.False(t, f.link.Joined())
}

func TestJoinSuccessConfiguresRX2(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	f.stack.Join(true)

	assert.Equal(t, []radiotest.RX2Channel{{Frequency: 869525000, DataRate: 3}}, f.stack.RX2Channels)
	// Only the join request of Initialize
	assert.Equal(t, 1, f.stack.Rejoins)
}

func TestJoinFailureRejoinsOnce(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	f.stack.Join(false)

	assert.Equal(t, 2, f.stack.Rejoins)
	assert.Empty(t, f.stack.RX2Channels)
	assert.Equal(t, Joining, f.link.State())

	// Every failure triggers another immediate rejoin
	f.stack.Join(false)
	f.stack.Join(false)
	assert.Equal(t, 4, f.stack.Rejoins)
}

func TestRefusedRejoinRequestIsRetried(t *testing.T) {
	scheduler := &schedulerSpy{}

	f := newFixture(t, DefaultConfig(), WithScheduler(scheduler))
	f.stack.RejoinErrors = []error{errors.New("request timeout")}

	before := time.Now()
	f.stack.Join(false)

	assert.Equal(t, 2, f.stack.Rejoins)
	assert.Equal(t, Joining, f.link.State())
	require.Len(t, scheduler.posted, 1)
	assert.WithinDuration(t, before.Add(RejoinRetryDelay), scheduler.posted[0].scheduledBy, 100*time.Millisecond)

	scheduler.runAll()
	assert.Equal(t, 3, f.stack.Rejoins)
	assert.Empty(t, scheduler.posted)

	// No retry once the session is up
	f.stack.RejoinErrors = []error{errors.New("request timeout")}
	f.stack.Join(false)
	require.Len(t, scheduler.posted, 1)
	f.stack.SetJoined(true)
	scheduler.runAll()
	assert.Equal(t, 4, f.stack.Rejoins)
	assert.Equal(t, Joined, f.link.State())
}

func TestRefusedRejoinRequestWithoutScheduler(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	f.stack.RejoinErrors = []error{errors.New("request timeout")}
	f.stack.Join(false)

	// Retried right away
	assert.Equal(t, 3, f.stack.Rejoins)
	assert.Equal(t, Joining, f.link.State())

	errs := make([]error, MaxImmediateRejoinRetries)
	for i := range errs {
		errs[i] = errors.New("request timeout")
	}
	f.stack.RejoinErrors = errs
	f.stack.Join(false)

	assert.Equal(t, 3+MaxImmediateRejoinRetries, f.stack.Rejoins)
	assert.Equal(t, Unjoined, f.link.State())
}

func TestRejoinBackoff(t *testing.T) {
	scheduler := &schedulerSpy{}

	config := DefaultConfig()
	config.RejoinBackoff = Backoff{Initial: time.Second, Max: 4 * time.Second, Factor: 2}

	f := newFixture(t, config, WithScheduler(scheduler))

	before := time.Now()
	f.stack.Join(false)

	// Only the join request of Initialize so far
	assert.Equal(t, 1, f.stack.Rejoins)
	require.Len(t, scheduler.posted, 1)
	assert.WithinDuration(t, before.Add(time.Second), scheduler.posted[0].scheduledBy, 100*time.Millisecond)
	assert.Equal(t, Joining, f.link.State())

	scheduler.runAll()
	assert.Equal(t, 2, f.stack.Rejoins)

	f.stack.Join(false)
	require.Len(t, scheduler.posted, 1)
	assert.WithinDuration(t, time.Now().Add(2*time.Second), scheduler.posted[0].scheduledBy, 100*time.Millisecond)
	scheduler.runAll()
	assert.Equal(t, 3, f.stack.Rejoins)

	// A join in the meantime cancels the pending rejoin
	f.stack.Join(false)
	f.stack.SetJoined(true)
	scheduler.runAll()
	assert.Equal(t, 3, f.stack.Rejoins)
	assert.Equal(t, Joined, f.link.State())
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: 10 * time.Second, Factor: 3}

	assert.Equal(t, time.Second, b.Delay(0))
	assert.Equal(t, 3*time.Second, b.Delay(1))
	assert.Equal(t, 9*time.Second, b.Delay(2))
	assert.Equal(t, 10*time.Second, b.Delay(3))
	assert.Equal(t, 10*time.Second, b.Delay(100))

	assert.Equal(t, time.Duration(0), Backoff{}.Delay(5))
}

func TestSendNotJoined(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.stack.SetBusy(true)

	outcome, err := f.link.Send(1, []byte{0x01})

	var notJoined *types.NotJoinedError
	assert.ErrorAs(t, err, &notJoined)
	assert.Nil(t, outcome)
	assert.Empty(t, f.stack.Sent)
}

func TestSendBusy(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.stack.SetJoined(true)
	f.stack.SetBusy(true)

	outcome, err := f.link.Send(1, []byte{0x01})

	var busy *types.BusyError
	assert.ErrorAs(t, err, &busy)
	assert.Nil(t, outcome)
	assert.Empty(t, f.stack.Sent)
}

func TestSendAppliesRadioParameters(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.stack.SetJoined(true)
	f.settings.packed = 0x85

	_, err := f.link.Send(7, []byte{0xAA, 0xBB})
	require.NoError(t, err)

	assert.Equal(t, []bool{true}, f.stack.ADR)
	assert.Equal(t, []int{3, 5}, f.stack.DataRates)
	assert.Equal(t, []radiotest.Packet{{Port: 7, Payload: []byte{0xAA, 0xBB}}}, f.stack.Sent)
	assert.Equal(t, []bool{false}, f.stack.Confirmed)
}

func TestSendOutcome(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.stack.SetJoined(true)
	f.stack.SetGateways(2)

	outcome, err := f.link.Send(1, []byte{0x01})
	require.NoError(t, err)

	assert.False(t, outcome.Delivered())
	assert.Equal(t, OutcomePending, outcome.Status())
	assert.False(t, f.link.Delivered())

	f.stack.TransmitDone()

	assert.True(t, outcome.Delivered())
	assert.True(t, f.link.Delivered())

	delivered, err := outcome.Wait(context.Background())
	assert.NoError(t, err)
	assert.True(t, delivered)
}

func TestSendResetsPreviousOutcome(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.stack.SetJoined(true)
	f.stack.SetGateways(1)

	_, err := f.link.Send(1, []byte{0x01})
	require.NoError(t, err)
	f.stack.TransmitDone()
	assert.True(t, f.link.Delivered())

	_, err = f.link.Send(1, []byte{0x02})
	require.NoError(t, err)
	assert.False(t, f.link.Delivered())
}

func TestTransmitDoneWithoutGateways(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.stack.SetJoined(true)
	f.stack.SetGateways(0)

	outcome, err := f.link.Send(1, []byte{0x01})
	require.NoError(t, err)

	f.stack.TransmitDone()

	assert.False(t, outcome.Delivered())
	assert.Equal(t, OutcomeDisconnected, outcome.Status())

	// A later event does not revive it
	f.stack.SetGateways(3)
	f.stack.TransmitDone()
	assert.False(t, outcome.Delivered())
	assert.Equal(t, OutcomeDisconnected, outcome.Status())
	assert.False(t, f.link.Delivered())

	// Only a new uplink does
	next, err := f.link.Send(1, []byte{0x02})
	require.NoError(t, err)
	f.stack.TransmitDone()
	assert.True(t, next.Delivered())
	assert.True(t, f.link.Delivered())
}

func TestSendRejectedKeepsOutcome(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.stack.SetJoined(true)
	f.stack.SetGateways(1)

	first, err := f.link.Send(1, []byte{0x01})
	require.NoError(t, err)
	f.stack.TransmitDone()

	f.stack.SendResult = 0
	outcome, err := f.link.Send(1, []byte{0x02})

	var rejected *types.RejectedError
	assert.ErrorAs(t, err, &rejected)
	assert.Nil(t, outcome)
	assert.Same(t, first, f.link.LastOutcome())
	assert.True(t, f.link.Delivered())
}

func TestSendSupersedesPendingOutcome(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.stack.SetJoined(true)

	first, err := f.link.Send(1, []byte{0x01})
	require.NoError(t, err)

	_, err = f.link.Send(1, []byte{0x02})
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuperseded, first.Status())
	assert.False(t, first.Delivered())
}

func TestSendPayloadSize(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.stack.SetJoined(true)
	f.stack.MaxPayload = 4

	// Not enforced by default
	_, err := f.link.Send(1, make([]byte, 10))
	assert.NoError(t, err)

	config := DefaultConfig()
	config.EnforcePayloadSize = true
	g := newFixture(t, config)
	g.stack.SetJoined(true)
	g.stack.MaxPayload = 4

	_, err = g.link.Send(1, make([]byte, 5))
	var tooLarge *types.PayloadSizeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, 4, tooLarge.Max)
	assert.Empty(t, g.stack.Sent)

	_, err = g.link.Send(1, make([]byte, 4))
	assert.NoError(t, err)
}

func TestOutcomeWaitTimeout(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.stack.SetJoined(true)

	outcome, err := f.link.Send(1, []byte{0x01})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	delivered, err := outcome.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, delivered)
}

func TestSettingsDownlink(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	record := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	f.stack.Receive(settingsPort, record)

	require.Len(t, f.settings.applied, 1)
	assert.Equal(t, record, f.settings.applied[0])
	assert.Empty(t, f.commands.received)
}

func TestSettingsDownlinkWrongSize(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	f.stack.Receive(settingsPort, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9})
	f.stack.Receive(settingsPort, []byte{1, 2, 3, 4, 5, 6, 7})
	f.stack.Receive(settingsPort, []byte{1})

	assert.Empty(t, f.settings.applied)
}

func TestSettingsRecordIsCopied(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	f.stack.Receive(settingsPort, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	f.stack.Receive(commandPort, []byte{0x09})

	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, f.settings.applied[0])
}

func TestCommandDownlink(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	f.stack.Receive(commandPort, []byte{0x05})
	f.stack.Receive(commandPort, []byte{0x05, 0x06})
	f.stack.Receive(commandPort, []byte{0x07})

	assert.Equal(t, []byte{0x05, 0x07}, f.commands.received)
	assert.Empty(t, f.settings.applied)
}

func TestUnknownPortDropped(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	f.stack.Receive(99, []byte{0x05})
	f.stack.Receive(99, []byte{1, 2, 3, 4, 5, 6, 7, 8})

	assert.Empty(t, f.commands.received)
	assert.Empty(t, f.settings.applied)
}

func TestReceiveWithoutPacket(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	f.stack.ReceiveEmpty()
	f.stack.Receive(commandPort, nil)

	assert.Empty(t, f.commands.received)
}

func TestOversizeDownlinkRejected(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	f.stack.ReceiveWithLength(commandPort, []byte{0x05}, DownlinkCapacity+1)

	assert.Empty(t, f.commands.received)
}

func TestNilConsumers(t *testing.T) {
	stack := radiotest.NewStack()
	l := New(stack, nil, nil, DefaultConfig())
	require.NoError(t, l.Initialize())

	stack.Receive(settingsPort, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	stack.SetJoined(true)

	_, err := l.Send(1, []byte{0x01})
	assert.NoError(t, err)
	assert.Empty(t, stack.ADR)
}

func TestLinkCheck(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	var observed []LinkQuality
	f.link.OnLinkQuality(func(q LinkQuality) {
		observed = append(observed, q)
	})

	assert.True(t, f.link.LinkQuality().CheckedAt.IsZero())

	f.stack.LinkCheck(-97, 7.5, 12, 2)

	quality := f.link.LinkQuality()
	assert.Equal(t, -97, quality.RSSI)
	assert.Equal(t, 7.5, quality.SNR)
	assert.Equal(t, 12, quality.Margin)
	assert.Equal(t, 2, quality.Gateways)
	assert.False(t, quality.CheckedAt.IsZero())

	require.Len(t, observed, 1)
	assert.Equal(t, quality, observed[0])
}

func TestSessionStateString(t *testing.T) {
	assert.Equal(t, "unjoined", Unjoined.String())
	assert.Equal(t, "joining", Joining.String())
	assert.Equal(t, "joined", Joined.String())
}
