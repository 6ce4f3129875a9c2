// Package radiotest provides a scriptable radio.Stack for tests.
//
// Events are fired synchronously on the caller's goroutine, which makes
// the order of callbacks in a test fully deterministic.
package radiotest

import (
	"errors"
	"sync"

	"github.com/Archie3d/lora-relay-node/pkg/radio"
	"github.com/brocaar/lorawan"
	"github.com/brocaar/lorawan/band"
)

var ErrBeginFailed = errors.New("radio did not start")

type Packet struct {
	Port    uint8
	Payload []byte
}

type RX2Channel struct {
	Frequency uint32
	DataRate  int
}

type ABPJoin struct {
	DevAddr lorawan.DevAddr
	NwkSKey lorawan.AES128Key
	AppSKey lorawan.AES128Key
}

// Stack is a fake radio.Stack. Exported fields script its behaviour,
// the recorded fields capture what the code under test asked for.
type Stack struct {
	mu sync.Mutex

	// Scripted behaviour
	BeginError   error
	JoinABPError error
	// RejoinErrors are returned by successive RejoinOTAA calls, one each
	RejoinErrors []error
	JoinedState  bool
	BusyState    bool
	SendResult   int
	SendError    error
	MaxPayload   int

	// Last link check and downlink metadata
	RSSI     int
	SNR      float64
	Margin   int
	Gateways int

	pending     *Packet
	pendingSize int

	sink radio.EventSink

	// Recorded calls
	Region        band.Name
	DutyCycle     *bool
	TxPower       *int
	DataRates     []int
	ADR           []bool
	PublicNetwork *bool
	SaveSession   *bool
	ABPJoins      []ABPJoin
	Rejoins       int
	RX2Channels   []RX2Channel
	Sent          []Packet
	Confirmed     []bool
}

func NewStack() *Stack {
	return &Stack{
		SendResult: 1,
		MaxPayload: 242,
	}
}

func (s *Stack) Begin(region band.Name) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Region = region
	return s.BeginError
}

func (s *Stack) SetDutyCycle(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DutyCycle = &enabled
	return nil
}

func (s *Stack) SetTxPower(dBm int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TxPower = &dBm
	return nil
}

func (s *Stack) SetDataRate(dr int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DataRates = append(s.DataRates, dr)
	return nil
}

func (s *Stack) SetADR(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ADR = append(s.ADR, enabled)
	return nil
}

func (s *Stack) SetPublicNetwork(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PublicNetwork = &enabled
	return nil
}

func (s *Stack) SetSaveSession(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SaveSession = &enabled
	return nil
}

func (s *Stack) SetRX2Channel(frequency uint32, dr int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RX2Channels = append(s.RX2Channels, RX2Channel{Frequency: frequency, DataRate: dr})
	return nil
}

func (s *Stack) JoinABP(devAddr lorawan.DevAddr, nwkSKey, appSKey lorawan.AES128Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ABPJoins = append(s.ABPJoins, ABPJoin{DevAddr: devAddr, NwkSKey: nwkSKey, AppSKey: appSKey})
	return s.JoinABPError
}

func (s *Stack) RejoinOTAA() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Rejoins++

	if len(s.RejoinErrors) == 0 {
		return nil
	}

	err := s.RejoinErrors[0]
	s.RejoinErrors = s.RejoinErrors[1:]
	return err
}

func (s *Stack) Joined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.JoinedState
}

func (s *Stack) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.BusyState
}

func (s *Stack) SendPacket(port uint8, payload []byte, confirmed bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SendError != nil {
		return 0, s.SendError
	}

	if s.SendResult > 0 {
		s.Sent = append(s.Sent, Packet{Port: port, Payload: append([]byte(nil), payload...)})
		s.Confirmed = append(s.Confirmed, confirmed)
	}
	return s.SendResult, nil
}

func (s *Stack) MaxPayloadSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.MaxPayload
}

func (s *Stack) ParsePacket() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

func (s *Stack) Read(buf []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return 0
	}

	copy(buf, s.pending.Payload)
	return s.pendingSize
}

func (s *Stack) RemotePort() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return 0
	}
	return int(s.pending.Port)
}

func (s *Stack) LastRSSI() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.RSSI
}

func (s *Stack) LastSNR() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SNR
}

func (s *Stack) LinkMargin() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Margin
}

func (s *Stack) LinkGateways() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Gateways
}

func (s *Stack) SetEventSink(sink radio.EventSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

func (s *Stack) SetJoined(joined bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.JoinedState = joined
}

func (s *Stack) SetBusy(busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BusyState = busy
}

func (s *Stack) SetGateways(gateways int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Gateways = gateways
}

func (s *Stack) eventSink() radio.EventSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink
}

// Join sets the join state and fires OnJoin.
func (s *Stack) Join(success bool) {
	s.SetJoined(success)
	if sink := s.eventSink(); sink != nil {
		sink.OnJoin()
	}
}

// LinkCheck records link check values and fires OnLinkCheck.
func (s *Stack) LinkCheck(rssi int, snr float64, margin, gateways int) {
	s.mu.Lock()
	s.RSSI = rssi
	s.SNR = snr
	s.Margin = margin
	s.Gateways = gateways
	s.mu.Unlock()

	if sink := s.eventSink(); sink != nil {
		sink.OnLinkCheck()
	}
}

// TransmitDone fires OnTransmit.
func (s *Stack) TransmitDone() {
	if sink := s.eventSink(); sink != nil {
		sink.OnTransmit()
	}
}

// Receive makes a frame available and fires OnReceive. The frame is
// consumed once the sink returns.
func (s *Stack) Receive(port uint8, payload []byte) {
	s.ReceiveWithLength(port, payload, len(payload))
}

// ReceiveWithLength is like Receive but lets the test report a frame
// length different from the payload it delivers.
func (s *Stack) ReceiveWithLength(port uint8, payload []byte, length int) {
	s.mu.Lock()
	s.pending = &Packet{Port: port, Payload: append([]byte(nil), payload...)}
	s.pendingSize = length
	s.mu.Unlock()

	if sink := s.eventSink(); sink != nil {
		sink.OnReceive()
	}

	s.mu.Lock()
	s.pending = nil
	s.pendingSize = 0
	s.mu.Unlock()
}

// ReceiveEmpty fires OnReceive without a frame waiting.
func (s *Stack) ReceiveEmpty() {
	if sink := s.eventSink(); sink != nil {
		sink.OnReceive()
	}
}

var _ radio.Stack = (*Stack)(nil)
