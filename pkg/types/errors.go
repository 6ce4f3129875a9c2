package types

import "fmt"

type TimeoutError struct{}

func (e *TimeoutError) Error() string {
	return "timeout"
}

// BusyError is returned when the radio is still servicing a previous
// transmission.
type BusyError struct{}

func (e *BusyError) Error() string {
	return "busy"
}

// NotJoinedError is returned when an uplink is attempted without an
// active network session.
type NotJoinedError struct{}

func (e *NotJoinedError) Error() string {
	return "not joined"
}

type PayloadSizeError struct {
	Size int
	Max  int
}

func (e *PayloadSizeError) Error() string {
	return fmt.Sprintf("payload of %d bytes exceeds maximum of %d bytes", e.Size, e.Max)
}

// RejectedError is returned when the radio stack refuses a frame.
type RejectedError struct {
	Code int
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("radio rejected frame (code %d)", e.Code)
}
