// Package radio describes the LoRaWAN radio stack the link layer drives.
//
// The stack owns the MAC: it joins, keeps the session, schedules receive
// windows and reports what happened through an EventSink. Implementations
// are expected to invoke the sink from a single goroutine.
package radio

import (
	"github.com/brocaar/lorawan"
	"github.com/brocaar/lorawan/band"
)

// EventSink receives the asynchronous notifications of a Stack.
// Handlers must not call Stack.SendPacket.
type EventSink interface {
	// OnJoin is called after a join or rejoin attempt completes,
	// successful or not. Stack.Joined reports the result.
	OnJoin()
	// OnLinkCheck is called when a link check answer arrived.
	OnLinkCheck()
	// OnTransmit is called after a transmission attempt completed.
	OnTransmit()
	// OnReceive is called when a downlink frame is available.
	OnReceive()
}

type Stack interface {
	Begin(region band.Name) error
	SetDutyCycle(enabled bool) error
	SetTxPower(dBm int) error
	SetDataRate(dr int) error
	SetADR(enabled bool) error
	SetPublicNetwork(enabled bool) error
	SetSaveSession(enabled bool) error
	SetRX2Channel(frequency uint32, dr int) error

	JoinABP(devAddr lorawan.DevAddr, nwkSKey, appSKey lorawan.AES128Key) error
	RejoinOTAA() error
	Joined() bool
	Busy() bool

	// SendPacket queues an uplink. A positive return value means the
	// frame was accepted.
	SendPacket(port uint8, payload []byte, confirmed bool) (int, error)
	MaxPayloadSize() int

	// ParsePacket reports whether a received frame is waiting.
	ParsePacket() bool
	// Read copies the waiting frame into buf and returns the frame
	// length. The length may exceed len(buf) when the frame did not fit.
	Read(buf []byte) int
	RemotePort() int

	LastRSSI() int
	LastSNR() float64
	LinkMargin() int
	LinkGateways() int

	SetEventSink(sink EventSink)
}
