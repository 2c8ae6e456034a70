package voxterra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricChunksIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxterra_chunks_ingested_total",
		Help: "The total number of voxel chunks ingested into the collider.",
	})

	metricColliderPackedRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voxterra_collider_packed_ratio",
		Help: "The fraction of non-empty chunks already bit-packed.",
	})

	metricTilesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxterra_atlas_tiles_applied_total",
		Help: "The total number of heightmap tiles rendered into the atlas.",
	})

	metricTileFetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxterra_atlas_tile_fetches_total",
		Help: "The total number of tile sample fetches issued.",
	})

	metricPropInstances = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voxterra_prop_instances",
		Help: "The number of prop instances resident across all batches.",
	})

	metricPoolPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voxterra_pool_pending_tasks",
		Help: "The number of worker-pool tasks submitted but not finished.",
	})
)

func instrumentChunkIngested() {
	metricChunksIngested.Inc()
}

func instrumentTilesApplied(n int) {
	metricTilesApplied.Add(float64(n))
}

func instrumentTileFetch() {
	metricTileFetches.Inc()
}

func instrumentFrameGauges(packedRatio float64, propInstances, poolPending int) {
	metricColliderPackedRatio.Set(packedRatio)
	metricPropInstances.Set(float64(propInstances))
	metricPoolPending.Set(float64(poolPending))
}
