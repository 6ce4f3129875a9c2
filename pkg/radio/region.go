package radio

import (
	"github.com/brocaar/lorawan"
	"github.com/brocaar/lorawan/band"
	"github.com/pkg/errors"
)

const DefaultRegion = band.EU868

// Band returns the regional parameters for the given region name.
func Band(region band.Name) (band.Band, error) {
	b, err := band.GetConfig(region, false, lorawan.DwellTimeNoLimit)
	if err != nil {
		return nil, errors.Wrapf(err, "get band config error (%s)", region)
	}
	return b, nil
}

// DefaultRX2Frequency returns the regional RX2 frequency in Hz.
func DefaultRX2Frequency(region band.Name) (uint32, error) {
	b, err := Band(region)
	if err != nil {
		return 0, err
	}
	return uint32(b.GetDefaults().RX2Frequency), nil
}

// MaxPayloadSize returns the largest application payload the region
// allows at the given data rate.
func MaxPayloadSize(region band.Name, dr int) (int, error) {
	b, err := Band(region)
	if err != nil {
		return 0, err
	}

	size, err := b.GetMaxPayloadSizeForDataRateIndex("", "", dr)
	if err != nil {
		return 0, errors.Wrapf(err, "get max payload size error (dr %d)", dr)
	}
	return size.N, nil
}

// SpreadingFactor returns the LoRa spreading factor of a data rate, or
// zero for non-LoRa modulations.
func SpreadingFactor(region band.Name, dr int) (int, error) {
	b, err := Band(region)
	if err != nil {
		return 0, err
	}

	rate, err := b.GetDataRate(dr)
	if err != nil {
		return 0, errors.Wrapf(err, "get data rate error (dr %d)", dr)
	}

	if rate.Modulation != band.LoRaModulation {
		return 0, nil
	}
	return rate.SpreadFactor, nil
}
