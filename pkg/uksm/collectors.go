package uksm

import "github.com/prometheus/client_golang/prometheus"

// SchedulerCollector exposes queue depths and tracker count as prometheus
// gauges, built from live accessor methods so a scrape never holds the
// scheduler lock longer than one snapshot.
type SchedulerCollector struct {
	s *Scheduler

	unmergeDepth *prometheus.Desc
	delDepth     *prometheus.Desc
	refreshDepth *prometheus.Desc
	mergeDepth   *prometheus.Desc
	trackers     *prometheus.Desc
}

// NewSchedulerCollector builds a prometheus.Collector over s.
func NewSchedulerCollector(s *Scheduler) *SchedulerCollector {
	return &SchedulerCollector{
		s:            s,
		unmergeDepth: prometheus.NewDesc("uksmd_queue_depth_unmerge", "Pending unmerge queue entries.", nil, nil),
		delDepth:     prometheus.NewDesc("uksmd_queue_depth_del", "Pending delete queue entries.", nil, nil),
		refreshDepth: prometheus.NewDesc("uksmd_queue_depth_refresh", "Pending refresh queue entries.", nil, nil),
		mergeDepth:   prometheus.NewDesc("uksmd_queue_depth_merge", "Pending merge queue entries.", nil, nil),
		trackers:     prometheus.NewDesc("uksmd_trackers", "Live per-process page trackers.", nil, nil),
	}
}

func (c *SchedulerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.unmergeDepth
	ch <- c.delDepth
	ch <- c.refreshDepth
	ch <- c.mergeDepth
	ch <- c.trackers
}

func (c *SchedulerCollector) Collect(ch chan<- prometheus.Metric) {
	unmerge, del, refresh, merge := c.s.QueueDepths()
	ch <- prometheus.MustNewConstMetric(c.unmergeDepth, prometheus.GaugeValue, float64(unmerge))
	ch <- prometheus.MustNewConstMetric(c.delDepth, prometheus.GaugeValue, float64(del))
	ch <- prometheus.MustNewConstMetric(c.refreshDepth, prometheus.GaugeValue, float64(refresh))
	ch <- prometheus.MustNewConstMetric(c.mergeDepth, prometheus.GaugeValue, float64(merge))
	ch <- prometheus.MustNewConstMetric(c.trackers, prometheus.GaugeValue, float64(c.s.TrackerCount()))
}

// MergeIndexCollector exposes the merge index's crc and class counts.
type MergeIndexCollector struct {
	idx *MergeIndex

	crcs    *prometheus.Desc
	classes *prometheus.Desc
}

// NewMergeIndexCollector builds a prometheus.Collector over idx.
func NewMergeIndexCollector(idx *MergeIndex) *MergeIndexCollector {
	return &MergeIndexCollector{
		idx:     idx,
		crcs:    prometheus.NewDesc("uksmd_merge_index_crcs", "Distinct fingerprints with at least one equivalence class.", nil, nil),
		classes: prometheus.NewDesc("uksmd_merge_index_classes", "Total equivalence classes across all fingerprints.", nil, nil),
	}
}

func (c *MergeIndexCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.crcs
	ch <- c.classes
}

func (c *MergeIndexCollector) Collect(ch chan<- prometheus.Metric) {
	crcs, classes := c.idx.Counts()
	ch <- prometheus.MustNewConstMetric(c.crcs, prometheus.GaugeValue, float64(crcs))
	ch <- prometheus.MustNewConstMetric(c.classes, prometheus.GaugeValue, float64(classes))
}

// GatewayCollector exposes the kernel gateway's running merge-outcome
// counters.
type GatewayCollector struct {
	gw *Gateway

	merged       *prometheus.Desc
	notIdentical *prometheus.Desc
	ioErrors     *prometheus.Desc
}

// NewGatewayCollector builds a prometheus.Collector over gw.
func NewGatewayCollector(gw *Gateway) *GatewayCollector {
	return &GatewayCollector{
		gw:           gw,
		merged:       prometheus.NewDesc("uksmd_gateway_merged_total", "Pages the kernel accepted into a merge.", nil, nil),
		notIdentical: prometheus.NewDesc("uksmd_gateway_not_identical_total", "Compare/merge attempts the kernel refused as not identical.", nil, nil),
		ioErrors:     prometheus.NewDesc("uksmd_gateway_io_errors_total", "Kernel control-node I/O errors that were not the not-identical signal.", nil, nil),
	}
}

func (c *GatewayCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.merged
	ch <- c.notIdentical
	ch <- c.ioErrors
}

func (c *GatewayCollector) Collect(ch chan<- prometheus.Metric) {
	merged, notIdentical, ioErrors := c.gw.Counters()
	ch <- prometheus.MustNewConstMetric(c.merged, prometheus.CounterValue, float64(merged))
	ch <- prometheus.MustNewConstMetric(c.notIdentical, prometheus.CounterValue, float64(notIdentical))
	ch <- prometheus.MustNewConstMetric(c.ioErrors, prometheus.CounterValue, float64(ioErrors))
}
