package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idearoom_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "idearoom_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Realtime gateway metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "idearoom_ws_connections",
			Help: "Open websocket connections",
		},
	)

	WSMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idearoom_ws_messages_total",
			Help: "Inbound websocket messages by type",
		},
		[]string{"type"},
	)

	WSSlowConsumers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "idearoom_ws_slow_consumers_total",
			Help: "Connections closed because their send buffer was full",
		},
	)

	RoomJoins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idearoom_room_joins_total",
			Help: "Join attempts by result",
		},
		[]string{"result"}, // "ok", "not_found", "unavailable"
	)

	// Mutation processor metrics
	Mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idearoom_mutations_total",
			Help: "Processed mutations by kind and result",
		},
		[]string{"kind", "result"}, // result: "applied", "noop", "invalid", "error"
	)

	MutationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "idearoom_mutation_duration_seconds",
			Help:    "Time from dequeue to committed state",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5},
		},
	)

	RoomWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "idearoom_room_workers",
			Help: "Rooms with a live mutation worker",
		},
	)

	// Room state store metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "idearoom_redis_latency_seconds",
			Help:    "Room state load/save latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	StateConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "idearoom_state_conflicts_total",
			Help: "Optimistic transaction conflicts on room state",
		},
	)

	CorruptDocuments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "idearoom_corrupt_documents_total",
			Help: "Room documents that failed to decode and were reset",
		},
	)

	// Event log and snapshot metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idearoom_events_published_total",
			Help: "Events published to the durable log by result",
		},
		[]string{"result"}, // "ok", "error"
	)

	EventsConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "idearoom_events_consumed_total",
			Help: "Events received by the snapshot builder",
		},
	)

	SnapshotsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idearoom_snapshots_written_total",
			Help: "Snapshot flushes by result",
		},
		[]string{"result"}, // "ok", "error"
	)

	BufferedEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "idearoom_snapshot_buffered_events",
			Help: "Events held in snapshot buffers awaiting a full batch",
		},
	)

	SnapshotStoreLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "idearoom_snapshot_store_latency_seconds",
			Help:    "Snapshot insert latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idearoom_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idearoom_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)
)
