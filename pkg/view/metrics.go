package view

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	compilesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vellum_template_compiles_total",
		Help: "Total number of template compilations",
	})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vellum_template_cache_hits_total",
		Help: "Total number of compiled-template cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vellum_template_cache_misses_total",
		Help: "Total number of compiled-template cache misses",
	})

	renderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vellum_template_render_duration_seconds",
		Help:    "Template render duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"template"})
)
