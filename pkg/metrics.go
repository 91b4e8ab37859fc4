package multiqueue

// metrics.go contains a thin abstraction over Prometheus so that the
// multiqueue can be used with or without metrics.  When the user passes a
// *prometheus.Registry in New(..., WithMetrics(reg)), a collector scraping
// the handle counters is registered.  Otherwise the hot path pays for
// nothing beyond its own uncontended atomic counters.
//
// All series are **handle-level**; aggregation is done on the Prometheus
// side via sum() / rate().  Metric names follow Prometheus conventions,
// suffixed with "_total" for counters.
//
// ┌────────────────────────────────────────┐
// │ Metric                   │ Type │ Label │
// ├───────────────────────────┼──────┼───────┤
// │ multiqueue_pushes_total   │ Ctr  │ handle│
// │ multiqueue_pops_total     │ Ctr  │ handle│
// │ multiqueue_locked_push_total Ctr │ handle│
// │ multiqueue_locked_pop_total  Ctr │ handle│
// │ multiqueue_stale_pop_total   Ctr │ handle│
// │ multiqueue_empty_pop_total   Ctr │ handle│
// │ multiqueue_scan_pops_total   Ctr │ handle│
// │ multiqueue_queues         │ Gge  │   –   │
// └────────────────────────────────────────┘
//
// © 2025 multiqueue authors. MIT License.

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type mqCollector[K Key, V any] struct {
	mq *MultiQueue[K, V]

	pushes     *prometheus.Desc
	pops       *prometheus.Desc
	lockedPush *prometheus.Desc
	lockedPop  *prometheus.Desc
	stalePop   *prometheus.Desc
	emptyPop   *prometheus.Desc
	scanPops   *prometheus.Desc
	queues     *prometheus.Desc
}

func newCollector[K Key, V any](mq *MultiQueue[K, V]) *mqCollector[K, V] {
	label := []string{"handle"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("multiqueue_"+name, help, label, nil)
	}
	return &mqCollector[K, V]{
		mq:         mq,
		pushes:     desc("pushes_total", "Number of successful pushes."),
		pops:       desc("pops_total", "Number of successful pops."),
		lockedPush: desc("locked_push_total", "Push attempts that lost the guard lock."),
		lockedPop:  desc("locked_pop_total", "Pop attempts that lost the guard lock."),
		stalePop:   desc("stale_pop_total", "Pops aborted because the locked sub-queue was empty or its top moved."),
		emptyPop:   desc("empty_pop_total", "Pop rounds observing only empty candidates."),
		scanPops:   desc("scan_pops_total", "Pops satisfied by the fallback linear scan."),
		queues:     prometheus.NewDesc("multiqueue_queues", "Number of sub-queues.", nil, nil),
	}
}

func (c *mqCollector[K, V]) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pushes
	ch <- c.pops
	ch <- c.lockedPush
	ch <- c.lockedPop
	ch <- c.stalePop
	ch <- c.emptyPop
	ch <- c.scanPops
	ch <- c.queues
}

func (c *mqCollector[K, V]) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.queues, prometheus.GaugeValue, float64(c.mq.NumQueues()))

	c.mq.mu.Lock()
	handles := make([]*Handle[K, V], len(c.mq.handles))
	copy(handles, c.mq.handles)
	c.mq.mu.Unlock()

	counter := func(d *prometheus.Desc, v int64, handle string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), handle)
	}
	for _, h := range handles {
		s := h.Stats()
		id := strconv.Itoa(h.id)
		counter(c.pushes, s.Pushes, id)
		counter(c.pops, s.Pops, id)
		counter(c.lockedPush, s.LockedPush, id)
		counter(c.lockedPop, s.LockedPop, id)
		counter(c.stalePop, s.StalePop, id)
		counter(c.emptyPop, s.EmptyPop, id)
		counter(c.scanPops, s.ScanPops, id)
	}
}
