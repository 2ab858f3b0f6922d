package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chartloom_uploads_total",
		Help: "Dataset uploads by result",
	}, []string{"result"})

	chartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chartloom_chart_requests_total",
		Help: "Chart and export requests by chart type and result",
	}, []string{"chart_type", "result"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chartloom_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"method", "route", "status"})

	datasetsStored = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chartloom_datasets",
		Help: "Datasets currently held in memory",
	})

	evictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chartloom_dataset_evictions_total",
		Help: "Datasets evicted from the store by reason",
	}, []string{"reason"})
)
