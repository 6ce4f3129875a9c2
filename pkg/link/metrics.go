package link

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_link_join_event_count",
		Help: "The number of join events reported by the radio (per result).",
	}, []string{"result"})
	rjc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_link_rejoin_request_count",
		Help: "The number of OTAA rejoin requests issued.",
	})
	uc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_link_uplink_count",
		Help: "The number of uplink attempts (per result).",
	}, []string{"result"})
	tc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_link_transmit_done_count",
		Help: "The number of completed transmissions (per outcome).",
	}, []string{"outcome"})
	dc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_link_downlink_count",
		Help: "The number of received downlink frames (per consumer or discard reason).",
	}, []string{"route"})

	rssiGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_link_rssi_dbm",
		Help: "RSSI of the last link check.",
	})
	snrGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_link_snr_db",
		Help: "SNR of the last link check.",
	})
	marginGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_link_margin_db",
		Help: "Demodulation margin of the last link check.",
	})
	gatewaysGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_link_gateways",
		Help: "Number of gateways that received the last link check.",
	})
)

func joinEventCounter(result string) prometheus.Counter {
	return jc.With(prometheus.Labels{"result": result})
}

func uplinkCounter(result string) prometheus.Counter {
	return uc.With(prometheus.Labels{"result": result})
}

func transmitDoneCounter(outcome string) prometheus.Counter {
	return tc.With(prometheus.Labels{"outcome": outcome})
}

func downlinkCounter(route string) prometheus.Counter {
	return dc.With(prometheus.Labels{"route": route})
}
