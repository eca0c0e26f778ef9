package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// registryTimeoutsTotal counts timeouts attributed to the head transport
	registryTimeoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apitransport_registry_timeouts_total",
		Help: "Total number of timeouts attributed to the preferred transport",
	}, []string{"transport"})

	// registryStaleReportsTotal counts outcome reports dropped because the
	// reported transport was no longer preferred
	registryStaleReportsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apitransport_registry_stale_reports_total",
		Help: "Total number of outcome reports for transports that were no longer preferred",
	})

	// registryDemotionsTotal counts head transports moved to the tail
	registryDemotionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apitransport_registry_demotions_total",
		Help: "Total number of preferred transports demoted after repeated timeouts",
	}, []string{"transport"})

	// registrySetTotal counts wholesale replacements of the transport set
	registrySetTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apitransport_registry_set_total",
		Help: "Total number of times the transport set was replaced",
	})

	// registrySize is moved by deltas so that several registries in one
	// process add up instead of overwriting each other
	registrySize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "apitransport_registry_transports",
		Help: "Number of transports currently registered, summed across registries",
	})
)
