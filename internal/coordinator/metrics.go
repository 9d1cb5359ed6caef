package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modelmgr",
		Subsystem: "coordinator",
		Name:      "loads_total",
		Help:      "Completed model loads per slot.",
	}, []string{"slot"})

	unloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modelmgr",
		Subsystem: "coordinator",
		Name:      "unloads_total",
		Help:      "Completed model unloads per slot.",
	}, []string{"slot"})
)
