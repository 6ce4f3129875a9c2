package client

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Archie3d/lora-relay-node/pkg/types"
	"github.com/pkg/errors"
	"go.bug.st/serial"
)

const (
	DEFAULT_BAUD_RATE = 115200

	// Serial read timeout, a read returning nothing is reported as
	// types.TimeoutError
	READ_TIMEOUT = 1 * time.Second

	START         = 0xAA
	ESCAPE        = 0x7D
	ESCAPE_START  = 0x8A
	ESCAPE_ESCAPE = 0x5D

	MAX_PAYLOAD_SIZE = 1024
)

var errPortNotOpen = errors.New("port is not open")

func crc16(crc0 uint16, data []byte) uint16 {
	crc := crc0
	for _, b := range data {
		a := (crc >> 8) ^ uint16(b)
		crc = (a << 2) ^ (a << 1) ^ a ^ (crc << 8)
	}
	return crc
}

func escape(data []byte) []byte {
	escaped := make([]byte, 0, len(data))

	for _, b := range data {
		switch b {
		case START:
			escaped = append(escaped, ESCAPE, ESCAPE_START)
		case ESCAPE:
			escaped = append(escaped, ESCAPE, ESCAPE_ESCAPE)
		default:
			escaped = append(escaped, b)
		}
	}
	return escaped
}

// Encode a message into a complete frame, START byte included.
func encodeFrame(message *Message) []byte {
	data := make([]byte, 0, len(message.Payload)+5)

	data = append(data, message.Type)

	payloadLength := uint16(len(message.Payload))
	data = append(data, byte(payloadLength&0xFF), byte(payloadLength>>8))

	data = append(data, message.Payload...)

	crc := crc16(0, data)
	data = append(data, byte(crc&0xFF), byte(crc>>8))

	return append([]byte{START}, escape(data)...)
}

type Message struct {
	Type    byte
	Payload []byte
}

// SerialClient exchanges framed messages with the modem:
//
//	START | type | length (LE16) | payload | CRC16 (LE16)
//
// Everything after START is escaped so START never appears inside a frame.
type SerialClient struct {
	port io.ReadWriteCloser
	open atomic.Bool

	writeMutex sync.Mutex
}

func NewSerialClient() *SerialClient {
	return &SerialClient{}
}

func (c *SerialClient) Open(portName string) error {
	mode := &serial.Mode{
		BaudRate: DEFAULT_BAUD_RATE,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return errors.Wrapf(err, "open serial port %s error", portName)
	}

	if err := port.SetReadTimeout(READ_TIMEOUT); err != nil {
		port.Close()
		return errors.Wrap(err, "set read timeout error")
	}

	c.port = port
	c.open.Store(true)
	return nil
}

// Attach uses an already open transport instead of a serial port.
func (c *SerialClient) Attach(transport io.ReadWriteCloser) {
	c.port = transport
	c.open.Store(true)
}

func (c *SerialClient) Close() error {
	if !c.open.Swap(false) {
		return nil
	}

	return c.port.Close()
}

func (c *SerialClient) IsOpen() bool {
	return c.open.Load()
}

func (c *SerialClient) recvByte() (byte, error) {
	if !c.IsOpen() {
		return 0, errPortNotOpen
	}

	buf := make([]byte, 1)
	n, err := c.port.Read(buf)

	if err != nil {
		return 0, err
	}

	if n != 1 {
		return 0, &types.TimeoutError{}
	}

	if buf[0] != ESCAPE {
		return buf[0], nil
	}

	// Read the next byte for the escape sequence
	n, err = c.port.Read(buf)
	if err != nil {
		return 0, err
	}

	if n < 1 {
		return 0, errors.New("incomplete escape sequence")
	}

	switch buf[0] {
	case ESCAPE_START:
		return START, nil
	case ESCAPE_ESCAPE:
		return ESCAPE, nil
	}

	return 0, errors.Errorf("invalid escape sequence 0x%02X", buf[0])
}

/*
Send a message to the modem.
*/
func (c *SerialClient) SendMessage(message *Message) error {
	if !c.IsOpen() {
		return errPortNotOpen
	}

	frame := encodeFrame(message)

	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	n, err := c.port.Write(frame)
	if err != nil {
		return errors.Wrap(err, "write frame error")
	}

	if n < len(frame) {
		return &types.TimeoutError{}
	}

	return nil
}

/*
Receive a message from the modem. Bytes preceding a START are skipped.
*/
func (c *SerialClient) ReceiveMessage() (*Message, error) {
	if !c.IsOpen() {
		return nil, errPortNotOpen
	}

	for {
		b, err := c.recvByte()
		if err != nil {
			return nil, err
		}

		if b == START {
			break
		}
	}

	header := make([]byte, 3)
	for i := range header {
		b, err := c.recvByte()
		if err != nil {
			return nil, err
		}
		header[i] = b
	}

	payloadLength := uint16(header[2])<<8 | uint16(header[1])
	if payloadLength > MAX_PAYLOAD_SIZE {
		return nil, errors.Errorf("frame payload of %d bytes is too large", payloadLength)
	}

	payload := make([]byte, payloadLength)
	for i := range payload {
		b, err := c.recvByte()
		if err != nil {
			return nil, err
		}
		payload[i] = b
	}

	crcLsb, err := c.recvByte()
	if err != nil {
		return nil, err
	}

	crcMsb, err := c.recvByte()
	if err != nil {
		return nil, err
	}

	crc := uint16(crcMsb)<<8 | uint16(crcLsb)
	calculatedCrc := crc16(crc16(0, header), payload)

	if crc != calculatedCrc {
		return nil, errors.New("CRC mismatch")
	}

	return &Message{
		Type:    header[0],
		Payload: payload,
	}, nil
}
