// Package telemetry keeps in-process counters for the pipe and socket endpoints.
package telemetry

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// Metrics groups the counters of one process on a private set.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	set *metrics.Set

	pipePayloads   *metrics.Counter
	pipeBytes      *metrics.Counter
	connections    *metrics.Counter
	requestBytes   *metrics.Counter
	responsesTotal *metrics.Counter
}

// New registers the endpoint counters on a fresh set.
func New() *Metrics {
	set := metrics.NewSet()
	return &Metrics{
		set:            set,
		pipePayloads:   set.NewCounter("pgtuna_pipe_payloads_total"),
		pipeBytes:      set.NewCounter("pgtuna_pipe_bytes_total"),
		connections:    set.NewCounter("pgtuna_socket_connections_total"),
		requestBytes:   set.NewCounter("pgtuna_socket_request_bytes_total"),
		responsesTotal: set.NewCounter("pgtuna_socket_responses_total"),
	}
}

// PayloadWritten records one payload of n bytes written to the pipe.
func (m *Metrics) PayloadWritten(n int) {
	if m == nil {
		return
	}
	m.pipePayloads.Inc()
	m.pipeBytes.Add(n)
}

// ConnectionAccepted records one accepted socket client.
func (m *Metrics) ConnectionAccepted() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

// RequestRead records the size of one fully read request.
func (m *Metrics) RequestRead(n int) {
	if m == nil {
		return
	}
	m.requestBytes.Add(n)
}

// ResponseWritten records one response sent to a client.
func (m *Metrics) ResponseWritten() {
	if m == nil {
		return
	}
	m.responsesTotal.Inc()
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	PipePayloads uint64
	PipeBytes    uint64
	Connections  uint64
	RequestBytes uint64
	Responses    uint64
}

// Snapshot reads the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		PipePayloads: m.pipePayloads.Get(),
		PipeBytes:    m.pipeBytes.Get(),
		Connections:  m.connections.Get(),
		RequestBytes: m.requestBytes.Get(),
		Responses:    m.responsesTotal.Get(),
	}
}

// LogAttrs flattens the snapshot into slog key/value pairs.
func (s Snapshot) LogAttrs() []any {
	return []any{
		"pipe_payloads", s.PipePayloads,
		"pipe_bytes", s.PipeBytes,
		"connections", s.Connections,
		"request_bytes", s.RequestBytes,
		"responses", s.Responses,
	}
}

// WritePrometheus writes the counters in Prometheus text exposition format.
func (m *Metrics) WritePrometheus(w io.Writer) {
	if m == nil {
		return
	}
	m.set.WritePrometheus(w)
}
