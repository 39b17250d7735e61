package telemetry

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetricsSnapshotCountsEvents(t *testing.T) {
	m := New()
	m.PayloadWritten(2)
	m.PayloadWritten(2)
	m.ConnectionAccepted()
	m.RequestRead(11)
	m.ResponseWritten()

	require.Equal(t, Snapshot{
		PipePayloads: 2,
		PipeBytes:    4,
		Connections:  1,
		RequestBytes: 11,
		Responses:    1,
	}, m.Snapshot())
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.PayloadWritten(2)
	m.ConnectionAccepted()
	m.RequestRead(3)
	m.ResponseWritten()

	require.Equal(t, Snapshot{}, m.Snapshot())

	var buf bytes.Buffer
	m.WritePrometheus(&buf)
	require.Empty(t, buf.String())
}

func TestWritePrometheusUsesPrivateSet(t *testing.T) {
	first := New()
	second := New()
	first.ConnectionAccepted()

	var buf bytes.Buffer
	first.WritePrometheus(&buf)
	require.Contains(t, buf.String(), "pgtuna_socket_connections_total 1")

	buf.Reset()
	second.WritePrometheus(&buf)
	require.Contains(t, buf.String(), "pgtuna_socket_connections_total 0")
}

func TestSnapshotLogAttrsArePairs(t *testing.T) {
	attrs := Snapshot{PipePayloads: 5}.LogAttrs()
	require.Len(t, attrs, 10)
	require.Equal(t, "pipe_payloads", attrs[0])
	require.Equal(t, uint64(5), attrs[1])
}
