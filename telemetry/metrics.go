package telemetry

var (
	// FetchBuckets for snapshot fetch latency (network or database round trip)
	FetchBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
)

// Event pipeline
var (
	// EventsReceivedTotal counts events entering the pipeline by source (push, poll) and entity
	EventsReceivedTotal CounterVec = noopCounterVec{}

	// EventsDeduplicated counts duplicate events dropped per entity
	EventsDeduplicated CounterVec = noopCounterVec{}

	// DecodeErrorsTotal counts malformed push frames dropped
	DecodeErrorsTotal Counter = NoopStat{}

	// HandlerPanicsTotal counts subscriber callbacks that panicked, by topic
	HandlerPanicsTotal CounterVec = noopCounterVec{}

	// DedupSetSize tracks the number of remembered event ids
	DedupSetSize Gauge = NoopStat{}

	// ActiveBindings tracks subscription bindings per entity
	ActiveBindings GaugeVec = noopGaugeVec{}
)

// Connection
var (
	// ConnectionStatus is 1 for the current status label and 0 for the rest
	ConnectionStatus GaugeVec = noopGaugeVec{}

	// ReconnectAttemptsTotal counts scheduled reconnect attempts
	ReconnectAttemptsTotal Counter = NoopStat{}

	// HeartbeatFailuresTotal counts pings that could not be sent
	HeartbeatFailuresTotal Counter = NoopStat{}

	// MessagesSentTotal counts outbound frames by result (ok, failed, dropped)
	MessagesSentTotal CounterVec = noopCounterVec{}

	// TransportMode is 1 for the active mode (push, poll)
	TransportMode GaugeVec = noopGaugeVec{}
)

// Polling
var (
	// PollCyclesTotal counts poll cycles by entity and result (changed, idle, error, baseline)
	PollCyclesTotal CounterVec = noopCounterVec{}

	// PollIntervalSeconds tracks the current adaptive interval per entity
	PollIntervalSeconds GaugeVec = noopGaugeVec{}

	// PollFetchSeconds measures snapshot fetch latency per entity
	PollFetchSeconds HistogramVec = noopHistogramVec{}

	// ActivePollLoops tracks running poll loops
	ActivePollLoops Gauge = NoopStat{}
)

// Cache
var (
	// CacheOperationsTotal counts cache operations by kind (patch, invalidate, remove, refetch)
	CacheOperationsTotal CounterVec = noopCounterVec{}

	// CacheEntries tracks the number of cached queries
	CacheEntries Gauge = NoopStat{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	EventsReceivedTotal = NewCounterVec(
		"events_received_total",
		"Events entering the pipeline by source and entity",
		[]string{"source", "entity"},
	)
	EventsDeduplicated = NewCounterVec(
		"events_deduplicated_total",
		"Duplicate events dropped",
		[]string{"entity"},
	)
	DecodeErrorsTotal = NewCounter(
		"decode_errors_total",
		"Malformed push frames dropped",
	)
	HandlerPanicsTotal = NewCounterVec(
		"handler_panics_total",
		"Subscriber callbacks that panicked",
		[]string{"topic"},
	)
	DedupSetSize = NewGauge(
		"dedup_set_size",
		"Remembered event ids",
	)
	ActiveBindings = NewGaugeVec(
		"active_bindings",
		"Subscription bindings per entity",
		[]string{"entity"},
	)

	ConnectionStatus = NewGaugeVec(
		"connection_status",
		"Current push channel status (1 for the active label)",
		[]string{"status"},
	)
	ReconnectAttemptsTotal = NewCounter(
		"reconnect_attempts_total",
		"Scheduled reconnect attempts",
	)
	HeartbeatFailuresTotal = NewCounter(
		"heartbeat_failures_total",
		"Heartbeat pings that failed to send",
	)
	MessagesSentTotal = NewCounterVec(
		"messages_sent_total",
		"Outbound frames by result",
		[]string{"result"},
	)
	TransportMode = NewGaugeVec(
		"transport_mode",
		"Active delivery mode (1 for the active label)",
		[]string{"mode"},
	)

	PollCyclesTotal = NewCounterVec(
		"poll_cycles_total",
		"Poll cycles by entity and result",
		[]string{"entity", "result"},
	)
	PollIntervalSeconds = NewGaugeVec(
		"poll_interval_seconds",
		"Current adaptive poll interval",
		[]string{"entity"},
	)
	PollFetchSeconds = NewHistogramVec(
		"poll_fetch_seconds",
		"Snapshot fetch latency",
		[]string{"entity"},
		FetchBuckets,
	)
	ActivePollLoops = NewGauge(
		"active_poll_loops",
		"Running poll loops",
	)

	CacheOperationsTotal = NewCounterVec(
		"cache_operations_total",
		"Cache operations by kind",
		[]string{"kind"},
	)
	CacheEntries = NewGauge(
		"cache_entries",
		"Cached queries",
	)
}

// SetConnectionStatus flips the status gauge to the given label
func SetConnectionStatus(current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		ConnectionStatus.With(s).Set(v)
	}
}

// SetTransportMode flips the mode gauge to the given label
func SetTransportMode(mode string) {
	for _, m := range []string{"push", "poll"} {
		v := 0.0
		if m == mode {
			v = 1
		}
		TransportMode.With(m).Set(v)
	}
}
