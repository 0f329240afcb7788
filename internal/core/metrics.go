package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnectedUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "uwuchat_connected_users",
		Help: "Registered users currently connected.",
	})

	metricInboundFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uwuchat_inbound_frames_total",
		Help: "Client frames received, by decoded type.",
	}, []string{"type"})

	metricMalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uwuchat_malformed_frames_total",
		Help: "Inbound frames dropped by the decoder.",
	})

	metricPublishedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uwuchat_published_frames_total",
		Help: "Frames published to a channel, by channel kind.",
	}, []string{"kind"})

	metricDroppedSubscribers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uwuchat_dropped_subscribers_total",
		Help: "Connections dropped because their outbound queue overflowed.",
	})

	metricIdleDemotions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uwuchat_idle_demotions_total",
		Help: "Status demotions performed by the idle detector.",
	})
)
