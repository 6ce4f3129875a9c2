package client

import (
	"encoding/binary"
	"fmt"
)

const (
	// Requests to the modem
	MSG_INVALID            = 0x00
	MSG_GET_VERSION        = 0x01
	MSG_BEGIN              = 0x02
	MSG_SET_DUTY_CYCLE     = 0x03
	MSG_SET_TX_POWER       = 0x04
	MSG_SET_DATA_RATE      = 0x05
	MSG_SET_ADR            = 0x06
	MSG_SET_PUBLIC_NETWORK = 0x07
	MSG_SET_SAVE_SESSION   = 0x08
	MSG_SET_RX2_CHANNEL    = 0x09
	MSG_JOIN_ABP           = 0x0A
	MSG_REJOIN_OTAA        = 0x0B
	MSG_GET_STATUS         = 0x0C
	MSG_SEND_PACKET        = 0x0D

	// Responses from the modem, request type with the top bit set
	MSG_RESPONSE = 0x80

	MSG_VERSION        = MSG_GET_VERSION | MSG_RESPONSE
	MSG_BEGUN          = MSG_BEGIN | MSG_RESPONSE
	MSG_DUTY_CYCLE     = MSG_SET_DUTY_CYCLE | MSG_RESPONSE
	MSG_TX_POWER       = MSG_SET_TX_POWER | MSG_RESPONSE
	MSG_DATA_RATE      = MSG_SET_DATA_RATE | MSG_RESPONSE
	MSG_ADR            = MSG_SET_ADR | MSG_RESPONSE
	MSG_PUBLIC_NETWORK = MSG_SET_PUBLIC_NETWORK | MSG_RESPONSE
	MSG_SAVE_SESSION   = MSG_SET_SAVE_SESSION | MSG_RESPONSE
	MSG_RX2_CHANNEL    = MSG_SET_RX2_CHANNEL | MSG_RESPONSE
	MSG_ABP_JOINED     = MSG_JOIN_ABP | MSG_RESPONSE
	MSG_REJOINING      = MSG_REJOIN_OTAA | MSG_RESPONSE
	MSG_STATUS         = MSG_GET_STATUS | MSG_RESPONSE
	MSG_PACKET_SENT    = MSG_SEND_PACKET | MSG_RESPONSE

	// Unsolicited messages (from the modem)
	MSG_JOIN_EVENT = 0x90
	MSG_LINK_CHECK = 0x91
	MSG_TX_DONE    = 0x92
	MSG_RX_PACKET  = 0x93
	MSG_LOGGING    = 0x9F

	MSG_EVENT_FIRST = MSG_JOIN_EVENT
	MSG_EVENT_LAST  = MSG_LOGGING
)

// Status codes carried by configuration responses
const (
	STATUS_OK          = 0x00
	STATUS_FAILED      = 0x01
	STATUS_UNSUPPORTED = 0x02
	STATUS_BUSY        = 0x03
)

type ApiMessage interface {
	SerializeRequest() Message
	DeserializeResponse(msg *Message) error
}

func IsUnsolicited(messageType byte) bool {
	return messageType >= MSG_EVENT_FIRST && messageType <= MSG_EVENT_LAST
}

func boolToByte(b bool) byte {
	if b {
		return 0x01
	}

	return 0x00
}

func byteToBool(b byte) bool {
	return b != 0x00
}

type MessageTypeError struct{}

func (e *MessageTypeError) Error() string {
	return "invalid message type"
}

type MessagePayloadSizeError struct{}

func (e *MessagePayloadSizeError) Error() string {
	return "invalid message payload size"
}

// StatusError is returned when the modem refuses a configuration request.
type StatusError struct {
	Request byte
	Status  byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("modem request 0x%02X failed with status 0x%02X", e.Request, e.Status)
}

// Result is implemented by requests answered with a status byte.
type Result interface {
	Err() error
}

type status struct {
	request byte
	Status  byte
}

func (s *status) deserialize(msg *Message, responseType byte) error {
	if msg.Type != responseType {
		return &MessageTypeError{}
	}

	if len(msg.Payload) != 1 {
		return &MessagePayloadSizeError{}
	}

	s.request = responseType &^ MSG_RESPONSE
	s.Status = msg.Payload[0]

	return nil
}

func (s *status) Err() error {
	if s.Status == STATUS_OK {
		return nil
	}
	return &StatusError{Request: s.request, Status: s.Status}
}

//------------------------------------------------------------------------------

type Version struct {
	Major byte
	Minor byte
	Patch byte
}

func (m *Version) SerializeRequest() Message {
	return Message{
		Type:    MSG_GET_VERSION,
		Payload: []byte{},
	}
}

func (m *Version) DeserializeResponse(msg *Message) error {
	if msg.Type != MSG_VERSION {
		return &MessageTypeError{}
	}

	if len(msg.Payload) != 3 {
		return &MessagePayloadSizeError{}
	}

	m.Major = msg.Payload[0]
	m.Minor = msg.Payload[1]
	m.Patch = msg.Payload[2]

	return nil
}

func (m *Version) String() string {
	return fmt.Sprintf("%d.%d.%d", m.Major, m.Minor, m.Patch)
}

//------------------------------------------------------------------------------

type Begin struct {
	status
	Region string
}

func (m *Begin) SerializeRequest() Message {
	return Message{
		Type:    MSG_BEGIN,
		Payload: []byte(m.Region),
	}
}

func (m *Begin) DeserializeResponse(msg *Message) error {
	return m.deserialize(msg, MSG_BEGUN)
}

//------------------------------------------------------------------------------

type DutyCycle struct {
	status
	Enabled bool
}

func (m *DutyCycle) SerializeRequest() Message {
	return Message{
		Type:    MSG_SET_DUTY_CYCLE,
		Payload: []byte{boolToByte(m.Enabled)},
	}
}

func (m *DutyCycle) DeserializeResponse(msg *Message) error {
	return m.deserialize(msg, MSG_DUTY_CYCLE)
}

//------------------------------------------------------------------------------

type TxPower struct {
	status
	Power_dBm int8
}

func (m *TxPower) SerializeRequest() Message {
	return Message{
		Type:    MSG_SET_TX_POWER,
		Payload: []byte{byte(m.Power_dBm)},
	}
}

func (m *TxPower) DeserializeResponse(msg *Message) error {
	return m.deserialize(msg, MSG_TX_POWER)
}

//------------------------------------------------------------------------------

type DataRate struct {
	status
	DataRate byte
}

func (m *DataRate) SerializeRequest() Message {
	return Message{
		Type:    MSG_SET_DATA_RATE,
		Payload: []byte{m.DataRate},
	}
}

func (m *DataRate) DeserializeResponse(msg *Message) error {
	return m.deserialize(msg, MSG_DATA_RATE)
}

//------------------------------------------------------------------------------

type ADR struct {
	status
	Enabled bool
}

func (m *ADR) SerializeRequest() Message {
	return Message{
		Type:    MSG_SET_ADR,
		Payload: []byte{boolToByte(m.Enabled)},
	}
}

func (m *ADR) DeserializeResponse(msg *Message) error {
	return m.deserialize(msg, MSG_ADR)
}

//------------------------------------------------------------------------------

type PublicNetwork struct {
	status
	Enabled bool
}

func (m *PublicNetwork) SerializeRequest() Message {
	return Message{
		Type:    MSG_SET_PUBLIC_NETWORK,
		Payload: []byte{boolToByte(m.Enabled)},
	}
}

func (m *PublicNetwork) DeserializeResponse(msg *Message) error {
	return m.deserialize(msg, MSG_PUBLIC_NETWORK)
}

//------------------------------------------------------------------------------

type SaveSession struct {
	status
	Enabled bool
}

func (m *SaveSession) SerializeRequest() Message {
	return Message{
		Type:    MSG_SET_SAVE_SESSION,
		Payload: []byte{boolToByte(m.Enabled)},
	}
}

func (m *SaveSession) DeserializeResponse(msg *Message) error {
	return m.deserialize(msg, MSG_SAVE_SESSION)
}

//------------------------------------------------------------------------------

type RX2Channel struct {
	status
	Frequency_Hz uint32
	DataRate     byte
}

func (m *RX2Channel) SerializeRequest() Message {
	message := Message{
		Type:    MSG_SET_RX2_CHANNEL,
		Payload: make([]byte, 5),
	}

	binary.LittleEndian.PutUint32(message.Payload[0:4], m.Frequency_Hz)
	message.Payload[4] = m.DataRate

	return message
}

func (m *RX2Channel) DeserializeResponse(msg *Message) error {
	return m.deserialize(msg, MSG_RX2_CHANNEL)
}

//------------------------------------------------------------------------------

type JoinABP struct {
	status
	DevAddr [4]byte
	NwkSKey [16]byte
	AppSKey [16]byte
}

func (m *JoinABP) SerializeRequest() Message {
	payload := make([]byte, 0, 36)
	payload = append(payload, m.DevAddr[:]...)
	payload = append(payload, m.NwkSKey[:]...)
	payload = append(payload, m.AppSKey[:]...)

	return Message{
		Type:    MSG_JOIN_ABP,
		Payload: payload,
	}
}

func (m *JoinABP) DeserializeResponse(msg *Message) error {
	return m.deserialize(msg, MSG_ABP_JOINED)
}

//------------------------------------------------------------------------------

type RejoinOTAA struct {
	status
}

func (m *RejoinOTAA) SerializeRequest() Message {
	return Message{
		Type:    MSG_REJOIN_OTAA,
		Payload: []byte{},
	}
}

func (m *RejoinOTAA) DeserializeResponse(msg *Message) error {
	return m.deserialize(msg, MSG_REJOINING)
}

//------------------------------------------------------------------------------

type Status struct {
	Joined         bool
	Busy           bool
	MaxPayloadSize byte
}

func (m *Status) SerializeRequest() Message {
	return Message{
		Type:    MSG_GET_STATUS,
		Payload: []byte{},
	}
}

func (m *Status) DeserializeResponse(msg *Message) error {
	if msg.Type != MSG_STATUS {
		return &MessageTypeError{}
	}

	if len(msg.Payload) != 3 {
		return &MessagePayloadSizeError{}
	}

	m.Joined = byteToBool(msg.Payload[0])
	m.Busy = byteToBool(msg.Payload[1])
	m.MaxPayloadSize = msg.Payload[2]

	return nil
}

//------------------------------------------------------------------------------

type SendPacket struct {
	Port      byte
	Confirmed bool
	Data      []byte

	// Result is positive when the modem queued the frame
	Result int16
}

func (m *SendPacket) SerializeRequest() Message {
	message := Message{
		Type:    MSG_SEND_PACKET,
		Payload: make([]byte, len(m.Data)+2),
	}

	message.Payload[0] = m.Port
	message.Payload[1] = boolToByte(m.Confirmed)
	copy(message.Payload[2:], m.Data)

	return message
}

func (m *SendPacket) DeserializeResponse(msg *Message) error {
	if msg.Type != MSG_PACKET_SENT {
		return &MessageTypeError{}
	}

	if len(msg.Payload) != 2 {
		return &MessagePayloadSizeError{}
	}

	m.Result = int16(binary.LittleEndian.Uint16(msg.Payload))

	return nil
}

//==============================================================================
/*
Unsolicited messages from the modem
*/

type JoinEvent struct {
	Joined bool
}

func (m *JoinEvent) SerializeRequest() Message {
	return Message{
		Type:    MSG_JOIN_EVENT,
		Payload: []byte{boolToByte(m.Joined)},
	}
}

func (m *JoinEvent) DeserializeResponse(msg *Message) error {
	if msg.Type != MSG_JOIN_EVENT {
		return &MessageTypeError{}
	}

	if len(msg.Payload) != 1 {
		return &MessagePayloadSizeError{}
	}

	m.Joined = byteToBool(msg.Payload[0])

	return nil
}

//------------------------------------------------------------------------------

type LinkCheck struct {
	RSSI_dBm  int16
	SNR_qdB   int8 // quarter dB
	Margin_dB byte
	Gateways  byte
}

func (m *LinkCheck) SerializeRequest() Message {
	message := Message{
		Type:    MSG_LINK_CHECK,
		Payload: make([]byte, 5),
	}

	binary.LittleEndian.PutUint16(message.Payload[0:2], uint16(m.RSSI_dBm))
	message.Payload[2] = byte(m.SNR_qdB)
	message.Payload[3] = m.Margin_dB
	message.Payload[4] = m.Gateways

	return message
}

func (m *LinkCheck) DeserializeResponse(msg *Message) error {
	if msg.Type != MSG_LINK_CHECK {
		return &MessageTypeError{}
	}

	if len(msg.Payload) != 5 {
		return &MessagePayloadSizeError{}
	}

	m.RSSI_dBm = int16(binary.LittleEndian.Uint16(msg.Payload[0:2]))
	m.SNR_qdB = int8(msg.Payload[2])
	m.Margin_dB = msg.Payload[3]
	m.Gateways = msg.Payload[4]

	return nil
}

func (m *LinkCheck) SNR_dB() float64 {
	return float64(m.SNR_qdB) / 4
}

//------------------------------------------------------------------------------

type TxDone struct {
}

func (m *TxDone) SerializeRequest() Message {
	return Message{
		Type:    MSG_TX_DONE,
		Payload: []byte{},
	}
}

func (m *TxDone) DeserializeResponse(msg *Message) error {
	if msg.Type != MSG_TX_DONE {
		return &MessageTypeError{}
	}

	if len(msg.Payload) != 0 {
		return &MessagePayloadSizeError{}
	}

	return nil
}

//------------------------------------------------------------------------------

type RxPacket struct {
	Port     byte
	RSSI_dBm int16
	SNR_qdB  int8
	Data     []byte
}

func (m *RxPacket) SerializeRequest() Message {
	message := Message{
		Type:    MSG_RX_PACKET,
		Payload: make([]byte, 4+len(m.Data)),
	}

	message.Payload[0] = m.Port
	binary.LittleEndian.PutUint16(message.Payload[1:3], uint16(m.RSSI_dBm))
	message.Payload[3] = byte(m.SNR_qdB)
	copy(message.Payload[4:], m.Data)

	return message
}

func (m *RxPacket) DeserializeResponse(msg *Message) error {
	if msg.Type != MSG_RX_PACKET {
		return &MessageTypeError{}
	}

	if len(msg.Payload) < 4 {
		return &MessagePayloadSizeError{}
	}

	m.Port = msg.Payload[0]
	m.RSSI_dBm = int16(binary.LittleEndian.Uint16(msg.Payload[1:3]))
	m.SNR_qdB = int8(msg.Payload[3])

	m.Data = make([]byte, len(msg.Payload)-4)
	copy(m.Data, msg.Payload[4:])

	return nil
}

func (m *RxPacket) SNR_dB() float64 {
	return float64(m.SNR_qdB) / 4
}

//------------------------------------------------------------------------------

type LogMessage struct {
	Text string
}

func (m *LogMessage) SerializeRequest() Message {
	return Message{
		Type:    MSG_LOGGING,
		Payload: []byte(m.Text),
	}
}

func (m *LogMessage) DeserializeResponse(msg *Message) error {
	if msg.Type != MSG_LOGGING {
		return &MessageTypeError{}
	}

	m.Text = string(msg.Payload)

	return nil
}
