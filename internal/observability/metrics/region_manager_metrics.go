package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"regionmaster/internal/regionmanager"
)

// RegionManagerCollector exposes regionmanager.Manager state as Prometheus
// gauges, registered through promauto.With(reg).
type RegionManagerCollector struct {
	onlineMetaRegions prometheus.Gauge
	allMetaOnline     prometheus.Gauge
	rootLocated       prometheus.Gauge
	serverCount       prometheus.Gauge
	totalLoad         prometheus.Gauge
	preferredPending  prometheus.Gauge
	splitQueueLen     prometheus.Gauge
	compactQueueLen   prometheus.Gauge
	majorCompactLen   prometheus.Gauge
	flushQueueLen     prometheus.Gauge
}

// NewRegionManagerCollector creates a collector registered on reg (the
// default registry if nil).
func NewRegionManagerCollector(reg prometheus.Registerer, namespace string) *RegionManagerCollector {
	if namespace == "" {
		namespace = "regionmaster"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	builder := promauto.With(reg)
	return &RegionManagerCollector{
		onlineMetaRegions: builder.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "meta_regions_online",
			Help:      "Number of meta regions currently known to be online.",
		}),
		allMetaOnline: builder.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "meta_regions_all_online",
			Help:      "Whether every meta region is online and root is located (1=yes, 0=no).",
		}),
		rootLocated: builder.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "root_region_located",
			Help:      "Whether the root region's location is currently known (1=yes, 0=no).",
		}),
		serverCount: builder.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_count",
			Help:      "Number of region servers that have reported a heartbeat.",
		}),
		totalLoad: builder.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fleet_total_load",
			Help:      "Sum of the most recently reported load across all region servers.",
		}),
		preferredPending: builder.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "preferred_assignment_pending",
			Help:      "Number of regions currently under a preferred assignment hold.",
		}),
		splitQueueLen: builder.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "action_queue_split_length",
			Help:      "Number of regions with a pending split action.",
		}),
		compactQueueLen: builder.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "action_queue_compact_length",
			Help:      "Number of regions with a pending compact action.",
		}),
		majorCompactLen: builder.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "action_queue_major_compact_length",
			Help:      "Number of regions with a pending major compact action.",
		}),
		flushQueueLen: builder.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "action_queue_flush_length",
			Help:      "Number of regions with a pending flush action.",
		}),
	}
}

// Observe updates the gauges from a Manager snapshot.
func (c *RegionManagerCollector) Observe(stats regionmanager.Stats) {
	c.onlineMetaRegions.Set(float64(stats.OnlineMetaRegions))
	c.rootLocated.Set(boolToFloat(stats.RootLocated))
	c.allMetaOnline.Set(boolToFloat(stats.AllMetaOnline))
	c.serverCount.Set(float64(stats.ServerCount))
	c.totalLoad.Set(float64(stats.TotalLoad))
	c.preferredPending.Set(float64(stats.PreferredPending))
	c.splitQueueLen.Set(float64(stats.SplitQueueLen))
	c.compactQueueLen.Set(float64(stats.CompactQueueLen))
	c.majorCompactLen.Set(float64(stats.MajorCompactLen))
	c.flushQueueLen.Set(float64(stats.FlushQueueLen))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
