package client

import (
	"io"
	"sync"
	"time"

	"github.com/Archie3d/lora-relay-node/pkg/event_loop"
	"github.com/Archie3d/lora-relay-node/pkg/radio"
	"github.com/brocaar/lorawan"
	"github.com/brocaar/lorawan/band"
	"github.com/charmbracelet/log"
)

const DEFAULT_REQUEST_TIMEOUT = time.Second

// Modem drives a LoRaWAN modem that runs the MAC on its own and talks
// the framed serial protocol. It implements radio.Stack.
//
// Modem events are handed to the event sink through the event loop, so
// sink callbacks run on the loop goroutine.
type Modem struct {
	api       *ApiClient
	eventLoop event_loop.EventLoop
	timeout   time.Duration
	logger    *log.Logger

	quit   chan struct{}
	wg     sync.WaitGroup
	closed sync.Once

	mutex     sync.Mutex
	sink      radio.EventSink
	rxPacket  *RxPacket
	linkCheck LinkCheck
	rssi_dBm  int
	snr_dB    float64
}

func NewModem(eventLoop event_loop.EventLoop) *Modem {
	return &Modem{
		api:       NewApiClient(),
		eventLoop: eventLoop,
		timeout:   DEFAULT_REQUEST_TIMEOUT,
		logger:    log.WithPrefix("modem"),
		quit:      make(chan struct{}),
	}
}

// Open the serial port to the modem and start handling its events.
func (m *Modem) Open(portName string) error {
	if err := m.api.Open(portName); err != nil {
		return err
	}

	m.start()
	return nil
}

// Attach is Open over an arbitrary transport.
func (m *Modem) Attach(transport io.ReadWriteCloser) error {
	if err := m.api.Attach(transport); err != nil {
		return err
	}

	m.start()
	return nil
}

func (m *Modem) Close() error {
	m.closed.Do(func() {
		close(m.quit)
	})

	err := m.api.Close()
	m.wg.Wait()

	return err
}

func (m *Modem) SetRequestTimeout(timeout time.Duration) {
	m.timeout = timeout
}

func (m *Modem) start() {
	m.wg.Go(func() {
	loop:
		for {
			select {
			case <-m.quit:
				break loop
			case event := <-m.api.Events:
				m.handleEvent(event)
			case err := <-m.api.Errors:
				m.logger.Warn("Modem link error", "err", err)
			}
		}
	})
}

func (m *Modem) handleEvent(event ApiMessage) {
	switch ev := event.(type) {
	case *JoinEvent:
		m.logger.Debug("Join event", "joined", ev.Joined)
		m.dispatch(func(sink radio.EventSink) {
			sink.OnJoin()
		})

	case *LinkCheck:
		m.mutex.Lock()
		m.linkCheck = *ev
		m.rssi_dBm = int(ev.RSSI_dBm)
		m.snr_dB = ev.SNR_dB()
		m.mutex.Unlock()

		m.dispatch(func(sink radio.EventSink) {
			sink.OnLinkCheck()
		})

	case *TxDone:
		m.dispatch(func(sink radio.EventSink) {
			sink.OnTransmit()
		})

	case *RxPacket:
		m.dispatch(func(sink radio.EventSink) {
			// The packet is only readable while the sink handles it
			m.mutex.Lock()
			m.rxPacket = ev
			m.rssi_dBm = int(ev.RSSI_dBm)
			m.snr_dB = ev.SNR_dB()
			m.mutex.Unlock()

			sink.OnReceive()

			m.mutex.Lock()
			m.rxPacket = nil
			m.mutex.Unlock()
		})

	case *LogMessage:
		m.logger.Debug(ev.Text)
	}
}

func (m *Modem) dispatch(callback func(sink radio.EventSink)) {
	m.eventLoop.Put(func(el event_loop.EventLoop) {
		m.mutex.Lock()
		sink := m.sink
		m.mutex.Unlock()

		if sink != nil {
			callback(sink)
		}
	})
}

func (m *Modem) Version() (*Version, error) {
	version := &Version{}
	if err := m.api.SendRequest(version, m.timeout); err != nil {
		return nil, err
	}
	return version, nil
}

func (m *Modem) Begin(region band.Name) error {
	return m.api.SendRequest(&Begin{Region: string(region)}, m.timeout)
}

func (m *Modem) SetDutyCycle(enabled bool) error {
	return m.api.SendRequest(&DutyCycle{Enabled: enabled}, m.timeout)
}

func (m *Modem) SetTxPower(dBm int) error {
	return m.api.SendRequest(&TxPower{Power_dBm: int8(dBm)}, m.timeout)
}

func (m *Modem) SetDataRate(dr int) error {
	return m.api.SendRequest(&DataRate{DataRate: byte(dr)}, m.timeout)
}

func (m *Modem) SetADR(enabled bool) error {
	return m.api.SendRequest(&ADR{Enabled: enabled}, m.timeout)
}

func (m *Modem) SetPublicNetwork(enabled bool) error {
	return m.api.SendRequest(&PublicNetwork{Enabled: enabled}, m.timeout)
}

func (m *Modem) SetSaveSession(enabled bool) error {
	return m.api.SendRequest(&SaveSession{Enabled: enabled}, m.timeout)
}

func (m *Modem) SetRX2Channel(frequency uint32, dr int) error {
	return m.api.SendRequest(&RX2Channel{Frequency_Hz: frequency, DataRate: byte(dr)}, m.timeout)
}

func (m *Modem) JoinABP(devAddr lorawan.DevAddr, nwkSKey, appSKey lorawan.AES128Key) error {
	return m.api.SendRequest(&JoinABP{
		DevAddr: devAddr,
		NwkSKey: nwkSKey,
		AppSKey: appSKey,
	}, m.timeout)
}

func (m *Modem) RejoinOTAA() error {
	return m.api.SendRequest(&RejoinOTAA{}, m.timeout)
}

func (m *Modem) status() (*Status, error) {
	status := &Status{}
	if err := m.api.SendRequest(status, m.timeout); err != nil {
		return nil, err
	}
	return status, nil
}

// Joined asks the modem. An unanswered query counts as not joined.
func (m *Modem) Joined() bool {
	status, err := m.status()
	if err != nil {
		m.logger.Warn("Status query failed", "err", err)
		return false
	}
	return status.Joined
}

// Busy asks the modem. An unanswered query counts as busy.
func (m *Modem) Busy() bool {
	status, err := m.status()
	if err != nil {
		m.logger.Warn("Status query failed", "err", err)
		return true
	}
	return status.Busy
}

func (m *Modem) MaxPayloadSize() int {
	status, err := m.status()
	if err != nil {
		return 0
	}
	return int(status.MaxPayloadSize)
}

func (m *Modem) SendPacket(port uint8, payload []byte, confirmed bool) (int, error) {
	request := &SendPacket{
		Port:      port,
		Confirmed: confirmed,
		Data:      payload,
	}

	if err := m.api.SendRequest(request, m.timeout); err != nil {
		return 0, err
	}
	return int(request.Result), nil
}

func (m *Modem) ParsePacket() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.rxPacket != nil
}

func (m *Modem) Read(buf []byte) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.rxPacket == nil {
		return 0
	}

	copy(buf, m.rxPacket.Data)
	return len(m.rxPacket.Data)
}

func (m *Modem) RemotePort() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.rxPacket == nil {
		return 0
	}
	return int(m.rxPacket.Port)
}

func (m *Modem) LastRSSI() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.rssi_dBm
}

func (m *Modem) LastSNR() float64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.snr_dB
}

func (m *Modem) LinkMargin() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return int(m.linkCheck.Margin_dB)
}

func (m *Modem) LinkGateways() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return int(m.linkCheck.Gateways)
}

func (m *Modem) SetEventSink(sink radio.EventSink) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sink = sink
}

var _ radio.Stack = (*Modem)(nil)
