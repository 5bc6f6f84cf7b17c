package models

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	appKeyLabel = "app_key"
)

var (
	sceneCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scene_count",
		Help: "The number of scenes.",
	}, []string{appKeyLabel})

	sceneCountTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scene_count_total",
		Help: "The total number of scenes.",
	}, []string{appKeyLabel})

	sceneEntityCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scene_entity_count",
		Help: "The number of entities placed in scenes.",
	}, []string{appKeyLabel})

	sceneFrameLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scene_frame_latency_seconds",
		Help:    "The time spent repositioning entities and running frame handlers.",
		Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05},
	}, []string{appKeyLabel})
)

func instrumentIncreaseSceneGauge(appKey string) {
	sceneCount.
		With(prometheus.Labels{appKeyLabel: appKey}).
		Inc()
}

func instrumentDecreaseSceneGauge(appKey string) {
	sceneCount.
		With(prometheus.Labels{appKeyLabel: appKey}).
		Dec()
}

func instrumentCountScene(appKey string) {
	sceneCountTotal.
		With(prometheus.Labels{appKeyLabel: appKey}).
		Inc()
}

func instrumentEntityGauge(appKey string, delta float64) {
	sceneEntityCount.
		With(prometheus.Labels{appKeyLabel: appKey}).
		Add(delta)
}

func instrumentFrameLatency(appKey string, d time.Duration) {
	sceneFrameLatency.
		With(prometheus.Labels{appKeyLabel: appKey}).
		Observe(d.Seconds())
}
