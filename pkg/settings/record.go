// Package settings holds the device settings record that the network can
// replace with a downlink on the settings port.
package settings

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// RecordSize is the size of an encoded Record in bytes.
const RecordSize = 8

const (
	DefaultDataRateADR  = 0x03 // DR3, ADR off
	DefaultSendInterval = 300
	DefaultLowBatteryMV = 3300

	maxDataRate = 15
	adrFlag     = 0x80
)

// Record is the settings layout shared with the network server. All
// fields are little endian on the wire.
//
//	0  DataRateADR   bit 7 ADR, low nibble data rate
//	1  Flags
//	2  SendInterval  seconds between uplinks
//	4  LowBatteryMV  low battery threshold
//	6  Reserved
type Record struct {
	DataRateADR  byte   `json:"data_rate_adr"`
	Flags        byte   `json:"flags"`
	SendInterval uint16 `json:"send_interval"`
	LowBatteryMV uint16 `json:"low_battery_mv"`
	Reserved     uint16 `json:"reserved"`
}

func DefaultRecord() Record {
	return Record{
		DataRateADR:  DefaultDataRateADR,
		SendInterval: DefaultSendInterval,
		LowBatteryMV: DefaultLowBatteryMV,
	}
}

func DecodeRecord(data []byte) (Record, error) {
	if len(data) != RecordSize {
		return Record{}, errors.Errorf("settings record must be %d bytes, got %d", RecordSize, len(data))
	}

	return Record{
		DataRateADR:  data[0],
		Flags:        data[1],
		SendInterval: binary.LittleEndian.Uint16(data[2:4]),
		LowBatteryMV: binary.LittleEndian.Uint16(data[4:6]),
		Reserved:     binary.LittleEndian.Uint16(data[6:8]),
	}, nil
}

func (r Record) Encode() []byte {
	data := make([]byte, RecordSize)

	data[0] = r.DataRateADR
	data[1] = r.Flags
	binary.LittleEndian.PutUint16(data[2:4], r.SendInterval)
	binary.LittleEndian.PutUint16(data[4:6], r.LowBatteryMV)
	binary.LittleEndian.PutUint16(data[6:8], r.Reserved)

	return data
}

func (r Record) DataRate() int {
	return int(r.DataRateADR &^ adrFlag)
}

func (r Record) ADR() bool {
	return r.DataRateADR&adrFlag != 0
}

func (r Record) Validate() error {
	// Bits 4-6 of the radio byte are unused
	if r.DataRate() > maxDataRate {
		return errors.Errorf("invalid data rate %d", r.DataRate())
	}

	if r.SendInterval == 0 {
		return errors.New("send interval must be at least one second")
	}

	return nil
}
