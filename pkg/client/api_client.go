package client

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Archie3d/lora-relay-node/pkg/types"
	"github.com/pkg/errors"
)

var errClientClosed = errors.New("api client closed")

// ApiClient turns the framed serial stream into request/response calls
// plus a channel of unsolicited modem events.
type ApiClient struct {
	serial *SerialClient
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	requestMutex sync.Mutex
	responses    chan *Message

	Events chan ApiMessage
	Errors chan error
}

func NewApiClient() *ApiClient {
	return &ApiClient{
		serial:    NewSerialClient(),
		responses: make(chan *Message, 1),
		Events:    make(chan ApiMessage, 16),
		Errors:    make(chan error, 4),
	}
}

func (c *ApiClient) Open(portName string) error {
	if c.serial.IsOpen() {
		return fmt.Errorf("serial port already open")
	}

	if err := c.serial.Open(portName); err != nil {
		return err
	}

	c.start()
	return nil
}

// Attach runs the client over an already open transport.
func (c *ApiClient) Attach(transport io.ReadWriteCloser) error {
	if c.serial.IsOpen() {
		return fmt.Errorf("transport already attached")
	}

	c.serial.Attach(transport)
	c.start()
	return nil
}

func (c *ApiClient) start() {
	c.ctx, c.cancel = context.WithCancel(context.Background())

	// Receive data from the modem
	c.wg.Go(func() {
		for {
			if c.ctx.Err() != nil {
				return
			}

			msg, err := c.serial.ReceiveMessage()
			if err != nil {
				var timeout *types.TimeoutError
				if errors.As(err, &timeout) {
					continue
				}

				if c.ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, errPortNotOpen) {
					return
				}

				// Corrupted frame, resynchronise on the next START
				c.reportError(err)
				continue
			}

			if err := c.handleMessage(msg); err != nil {
				c.reportError(err)
			}
		}
	})
}

func (c *ApiClient) Close() error {
	if c.cancel == nil {
		return nil
	}
	c.cancel()

	err := c.serial.Close()
	c.wg.Wait()

	return err
}

func (c *ApiClient) reportError(err error) {
	select {
	case c.Errors <- err:
	default:
		// Nobody is listening, drop it
	}
}

func (c *ApiClient) handleMessage(message *Message) error {
	if !IsUnsolicited(message.Type) {
		c.pushResponse(message)
		return nil
	}

	var msg ApiMessage

	switch message.Type {
	case MSG_JOIN_EVENT:
		msg = &JoinEvent{}
	case MSG_LINK_CHECK:
		msg = &LinkCheck{}
	case MSG_TX_DONE:
		msg = &TxDone{}
	case MSG_RX_PACKET:
		msg = &RxPacket{}
	case MSG_LOGGING:
		msg = &LogMessage{}
	default:
		return fmt.Errorf("invalid message 0x%02X received from modem", message.Type)
	}

	if err := msg.DeserializeResponse(message); err != nil {
		return errors.Wrapf(err, "decode message 0x%02X error", message.Type)
	}

	select {
	case c.Events <- msg:
	case <-c.ctx.Done():
	}

	return nil
}

// Keep only the latest response; a stale one belongs to a request that
// already timed out.
func (c *ApiClient) pushResponse(message *Message) {
	for {
		select {
		case c.responses <- message:
			return
		default:
		}

		select {
		case <-c.responses:
		default:
		}
	}
}

// SendRequest sends a request and decodes the matching response into
// msg. Requests are serialised, one in flight at a time.
func (c *ApiClient) SendRequest(msg ApiMessage, timeout time.Duration) error {
	if c.ctx == nil {
		return errPortNotOpen
	}

	c.requestMutex.Lock()
	defer c.requestMutex.Unlock()

	// Drop a late response to a previous request
	select {
	case <-c.responses:
	default:
	}

	request := msg.SerializeRequest()
	if err := c.serial.SendMessage(&request); err != nil {
		return err
	}

	expected := request.Type | MSG_RESPONSE
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case res := <-c.responses:
			if res.Type != expected {
				continue
			}

			if err := msg.DeserializeResponse(res); err != nil {
				return err
			}

			if result, ok := msg.(Result); ok {
				return result.Err()
			}
			return nil
		case <-deadline.C:
			return &types.TimeoutError{}
		case <-c.ctx.Done():
			return errClientClosed
		}
	}
}
