package models

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	indexLabel = "index"
)

var (
	worldAgentCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agent_count",
		Help: "The number of agents in a world.",
	}, []string{indexLabel})

	worldAgentCountTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_count_total",
		Help: "The total number of agents added to a world.",
	}, []string{indexLabel})

	worldViewerCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "viewer_count",
		Help: "The number of viewers watching a world.",
	}, []string{indexLabel})
)

func instrumentIncreaseAgentGauge(index string) {
	worldAgentCount.
		With(prometheus.Labels{indexLabel: index}).
		Inc()
}

func instrumentDecreaseAgentGauge(index string) {
	worldAgentCount.
		With(prometheus.Labels{indexLabel: index}).
		Dec()
}

func instrumentCountAgent(index string) {
	worldAgentCountTotal.
		With(prometheus.Labels{indexLabel: index}).
		Inc()
}

func instrumentViewerGauge(index string, delta float64) {
	worldViewerCount.
		With(prometheus.Labels{indexLabel: index}).
		Add(delta)
}
