package link

const (
	adrFlag      = 0x80
	dataRateMask = 0x0f
)

// RadioParameters are applied to the stack before each uplink.
type RadioParameters struct {
	DataRate int
	ADR      bool
	TxPower  int
}

// ParseRadioParameters unpacks the settings radio byte.
func ParseRadioParameters(packed byte, txPower int) RadioParameters {
	return RadioParameters{
		DataRate: int(packed & dataRateMask),
		ADR:      packed&adrFlag != 0,
		TxPower:  txPower,
	}
}

// Pack is the inverse of ParseRadioParameters. TxPower is not part of
// the packed byte.
func (p RadioParameters) Pack() byte {
	packed := byte(p.DataRate) & dataRateMask
	if p.ADR {
		packed |= adrFlag
	}
	return packed
}
