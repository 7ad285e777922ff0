package prometheus

import (
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "powerlink"

var (
	// CacheOps counts cache calls by operation and result (hit, miss, ok, error).
	CacheOps = promauto.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Cache operations by operation and result.",
	}, []string{"op", "result"})

	LinksCreated = promauto.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "links_created_total",
		Help:      "Links persisted successfully.",
	})

	// CodeCollisions counts candidates rejected as taken, by where the collision was seen.
	CodeCollisions = promauto.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Subsystem: "shortcode",
		Name:      "collisions_total",
		Help:      "Short-code candidates rejected during probing.",
	}, []string{"source"})

	CodeLengthGrowth = promauto.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Subsystem: "shortcode",
		Name:      "length_growth_total",
		Help:      "Times code generation grew the code length after exhausting attempts.",
	})

	Redirects = promauto.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "redirects_total",
		Help:      "Redirect resolutions by result.",
	}, []string{"result"})

	ClickFailures = promauto.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "click_record_failures_total",
		Help:      "Click increments that could not be recorded.",
	}, []string{"stage"})
)
