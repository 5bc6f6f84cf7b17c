package octree

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	operationLabel = "operation"
)

var (
	octreeResizeCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "octree_resize_count_total",
		Help: "The total number of octree root and node resizes.",
	}, []string{operationLabel})

	octreeAddFailureCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "octree_add_failure_count_total",
		Help: "The total number of entities that did not fit in an octree after growing it.",
	})
)

func instrumentGrow() {
	octreeResizeCount.
		With(prometheus.Labels{operationLabel: "grow"}).
		Inc()
}

func instrumentShrink() {
	octreeResizeCount.
		With(prometheus.Labels{operationLabel: "shrink"}).
		Inc()
}

func instrumentSplit() {
	octreeResizeCount.
		With(prometheus.Labels{operationLabel: "split"}).
		Inc()
}

func instrumentMerge() {
	octreeResizeCount.
		With(prometheus.Labels{operationLabel: "merge"}).
		Inc()
}

func instrumentAddFailure() {
	octreeAddFailureCount.Inc()
}
