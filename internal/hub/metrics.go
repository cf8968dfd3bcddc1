package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connections",
		Help: "Open transport connections",
	})

	metricOnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_online_users",
		Help: "Usernames registered in the presence directory",
	})

	metricMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_messages_total",
		Help: "Messages appended to room history",
	}, []string{"kind"})

	metricDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_commands_dropped_total",
		Help: "Commands silently discarded because a precondition failed",
	}, []string{"reason"})

	metricJoinFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_join_failures_total",
		Help: "Rejected joinGroup attempts",
	}, []string{"code"})

	metricHistoryTrimmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_history_trimmed_total",
		Help: "History entries evicted by the per-room cap",
	})
)
