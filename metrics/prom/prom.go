// Package prom exports cache metrics to Prometheus.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/layercache/backend/memory"
	"github.com/IvanBrykalov/layercache/cache"
)

// Adapter implements cache.Metrics and memory.Metrics. One Adapter can be
// shared by the coordinator and every memory layer; series are labelled by
// layer name. Safe for concurrent use.
type Adapter struct {
	hits        *prometheus.CounterVec
	misses      prometheus.Counter
	backfills   *prometheus.CounterVec
	layerErrors *prometheus.CounterVec
	evicts      *prometheus.CounterVec
	sizeEnt     *prometheus.GaugeVec
	sizeCost    *prometheus.GaugeVec
}

var (
	_ cache.Metrics  = (*Adapter)(nil)
	_ memory.Metrics = (*Adapter)(nil)
)

// New constructs and registers the adapter.
//   - reg:         registry to register with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:     Prometheus namespace and subsystem
//   - constLabels: static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels}
	}
	gauge := func(name, help string) prometheus.GaugeOpts {
		return prometheus.GaugeOpts{Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels}
	}

	a := &Adapter{
		hits:        prometheus.NewCounterVec(opts("hits_total", "Reads satisfied, by the layer that held the item"), []string{"layer"}),
		misses:      prometheus.NewCounter(opts("misses_total", "Reads that missed every layer")),
		backfills:   prometheus.NewCounterVec(opts("backfills_total", "Items copied into a faster layer after a read"), []string{"layer"}),
		layerErrors: prometheus.NewCounterVec(opts("layer_errors_total", "Layer failures by operation"), []string{"layer", "op"}),
		evicts:      prometheus.NewCounterVec(opts("evictions_total", "Memory layer evictions by reason"), []string{"layer", "reason"}),
		sizeEnt:     prometheus.NewGaugeVec(gauge("size_entries", "Resident entries of the last touched shard"), []string{"layer"}),
		sizeCost:    prometheus.NewGaugeVec(gauge("size_cost", "Resident cost of the last touched shard"), []string{"layer"}),
	}
	reg.MustRegister(a.hits, a.misses, a.backfills, a.layerErrors, a.evicts, a.sizeEnt, a.sizeCost)
	return a
}

// Hit counts a read served by layer.
func (a *Adapter) Hit(layer string) { a.hits.WithLabelValues(layer).Inc() }

// Miss counts a read that found nothing.
func (a *Adapter) Miss() { a.misses.Inc() }

// BackFill counts a copy into layer.
func (a *Adapter) BackFill(layer string) { a.backfills.WithLabelValues(layer).Inc() }

// LayerError counts a failure of op at layer.
func (a *Adapter) LayerError(layer string, op cache.Op) {
	a.layerErrors.WithLabelValues(layer, string(op)).Inc()
}

// Evict counts a memory-layer eviction.
func (a *Adapter) Evict(layer string, r memory.EvictReason) {
	a.evicts.WithLabelValues(layer, r.String()).Inc()
}

// Size records the shard size of a memory layer.
func (a *Adapter) Size(layer string, entries int, cost int64) {
	a.sizeEnt.WithLabelValues(layer).Set(float64(entries))
	a.sizeCost.WithLabelValues(layer).Set(float64(cost))
}
