package ws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricUpgradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "uwuchat_upgrade_rejections_total",
	Help: "Websocket upgrades refused before the handshake, by reason.",
}, []string{"reason"})
