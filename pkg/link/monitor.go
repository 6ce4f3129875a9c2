package link

import (
	"slices"
	"time"
)

type LinkQuality struct {
	RSSI      int       `json:"rssi"`
	SNR       float64   `json:"snr"`
	Margin    int       `json:"margin"`
	Gateways  int       `json:"gateways"`
	CheckedAt time.Time `json:"checked_at"`
}

// OnLinkCheck records the answer of the last link check.
func (l *Link) OnLinkCheck() {
	quality := LinkQuality{
		RSSI:      l.stack.LastRSSI(),
		SNR:       l.stack.LastSNR(),
		Margin:    l.stack.LinkMargin(),
		Gateways:  l.stack.LinkGateways(),
		CheckedAt: time.Now(),
	}

	l.mutex.Lock()
	l.quality = quality
	observers := slices.Clone(l.observers)
	l.mutex.Unlock()

	rssiGauge.Set(float64(quality.RSSI))
	snrGauge.Set(quality.SNR)
	marginGauge.Set(float64(quality.Margin))
	gatewaysGauge.Set(float64(quality.Gateways))

	l.logger.Debug("Link check",
		"rssi", quality.RSSI,
		"snr", quality.SNR,
		"margin", quality.Margin,
		"gateways", quality.Gateways,
	)

	for _, observer := range observers {
		observer(quality)
	}
}

// LinkQuality returns the last link check. CheckedAt is zero if no check
// has been answered yet.
func (l *Link) LinkQuality() LinkQuality {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.quality
}

// OnLinkQuality registers an observer called from OnLinkCheck. Observers
// must return quickly.
func (l *Link) OnLinkQuality(observer func(LinkQuality)) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.observers = append(l.observers, observer)
}
