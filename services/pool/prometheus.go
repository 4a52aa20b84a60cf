package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusVerifiedPeers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "headers_client_verified_peers",
		Help: "Number of verified peer sessions currently installed",
	})

	prometheusKnownAddresses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "headers_client_known_addresses",
		Help: "Number of peer addresses in the metrics database",
	})

	prometheusChainHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "headers_client_chain_height",
		Help: "Height of the longest chain tip",
	})
)
