package cog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments chunk decode activity for the ambient observability
// stack (SPEC_FULL.md §1.1), wired on github.com/prometheus/client_golang
// the way cmd/webserver in the retrieved qrank corpus exposes its own
// counters via promhttp. Unlike qrank's process-wide defaults, COG readers
// are frequently instantiated per-request, so the constructor takes an
// explicit prometheus.Registerer rather than reaching for the global one.
type Metrics struct {
	chunksDecoded   *prometheus.CounterVec
	chunksSparse    prometheus.Counter
	decodeErrors    *prometheus.CounterVec
	decodeDuration  *prometheus.HistogramVec
	bytesDecoded    prometheus.Counter
}

// NewMetrics registers the chunk-decode instrument set on reg and returns
// the handle used to record observations.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		chunksDecoded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cog",
			Name:      "chunks_decoded_total",
			Help:      "Chunks successfully decoded, labeled by compression codec.",
		}, []string{"compression"}),
		chunksSparse: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cog",
			Name:      "chunks_sparse_total",
			Help:      "Chunks that were sparse (zero offset/size) and filled with nodata.",
		}),
		decodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cog",
			Name:      "chunk_decode_errors_total",
			Help:      "Chunk decode failures, labeled by compression codec.",
		}, []string{"compression"}),
		decodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cog",
			Name:      "chunk_decode_duration_seconds",
			Help:      "Time spent decoding one chunk, labeled by compression codec.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"compression"}),
		bytesDecoded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cog",
			Name:      "bytes_decoded_total",
			Help:      "Total decompressed byte count across all chunks.",
		}),
	}
}

func (m *Metrics) observeDecode(kind Compression, seconds float64, outputBytes int) {
	if m == nil {
		return
	}
	label := kind.String()
	m.chunksDecoded.WithLabelValues(label).Inc()
	m.decodeDuration.WithLabelValues(label).Observe(seconds)
	m.bytesDecoded.Add(float64(outputBytes))
}

func (m *Metrics) observeError(kind Compression) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) observeSparse() {
	if m == nil {
		return
	}
	m.chunksSparse.Inc()
}
