package ipc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/pgtuna/internal/fsm"
	"github.com/rbright/pgtuna/internal/telemetry"
)

var errBrokenStream = errors.New("broken stream")

type fakeConn struct {
	reader   io.Reader
	written  bytes.Buffer
	writeErr error
	closed   bool
}

func (c *fakeConn) Read(p []byte) (int, error) {
	return c.reader.Read(p)
}

func (c *fakeConn) Write(p []byte) (int, error) {
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	return c.written.Write(p)
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errBrokenStream
}

func startServer(t *testing.T, metrics *telemetry.Metrics) (string, *Listener, <-chan error) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "pgtuna.sock")
	listener, err := NewBuilder().WithPath(socketPath).Build(context.Background())
	require.NoError(t, err)

	serveDone := make(chan error, 1)
	go func() {
		server := &Server{Metrics: metrics}
		serveDone <- server.Serve(listener)
	}()
	return socketPath, listener, serveDone
}

func TestServeAnswersSequentialClients(t *testing.T) {
	metrics := telemetry.New()
	socketPath, listener, serveDone := startServer(t, metrics)

	requests := []string{"", "SHOW work_mem;", "héllo wörld", "SELECT 1"}
	for _, req := range requests {
		resp, err := Send(context.Background(), socketPath, []byte(req), time.Second)
		require.NoError(t, err)
		require.Equal(t, Response, string(resp))
	}

	require.NoError(t, listener.Close())
	err := <-serveDone
	require.ErrorIs(t, err, ErrAcceptFailed)
	require.ErrorIs(t, err, net.ErrClosed)

	snap := metrics.Snapshot()
	require.Equal(t, uint64(len(requests)), snap.Connections)
	require.Equal(t, uint64(len(requests)), snap.Responses)
}

func TestServeStopsOnInvalidEncoding(t *testing.T) {
	socketPath, listener, serveDone := startServer(t, nil)
	defer listener.Close()

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0xff, 0xfe, 0xfd})
	require.NoError(t, err)
	require.NoError(t, conn.(*net.UnixConn).CloseWrite())

	select {
	case err := <-serveDone:
		require.ErrorIs(t, err, ErrInvalidEncoding)
	case <-time.After(5 * time.Second):
		t.Fatal("server kept running after an invalid request")
	}

	resp, err := io.ReadAll(conn)
	require.NoError(t, err)
	require.Empty(t, resp)
}

func TestServeBlocksOnHalfOpenClient(t *testing.T) {
	socketPath, listener, serveDone := startServer(t, nil)

	stalled, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer stalled.Close()
	_, err = stalled.Write([]byte("still talking"))
	require.NoError(t, err)

	_, err = Send(context.Background(), socketPath, []byte("next"), 150*time.Millisecond)
	require.Error(t, err)
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	require.True(t, netErr.Timeout())

	require.NoError(t, stalled.(*net.UnixConn).CloseWrite())
	resp, err := io.ReadAll(stalled)
	require.NoError(t, err)
	require.Equal(t, Response, string(resp))

	require.NoError(t, listener.Close())
	select {
	case <-serveDone:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after listener close")
	}
}

func TestHandleConnectionEmptyRequest(t *testing.T) {
	conn := &fakeConn{reader: bytes.NewReader(nil)}
	server := &Server{}

	require.NoError(t, server.HandleConnection(conn))
	require.Equal(t, Response, conn.written.String())
	require.True(t, conn.closed)
}

func TestHandleConnectionIgnoresRequestContent(t *testing.T) {
	for _, req := range []string{"a", "shared_buffers?", string(bytes.Repeat([]byte("x"), 1<<16))} {
		conn := &fakeConn{reader: bytes.NewReader([]byte(req))}
		require.NoError(t, (&Server{}).HandleConnection(conn))
		require.Equal(t, Response, conn.written.String())
	}
}

func TestHandleConnectionLogsBoundedRequest(t *testing.T) {
	var logs bytes.Buffer
	server := &Server{Logger: slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))}

	request := strings.Repeat("é", 1000)
	conn := &fakeConn{reader: strings.NewReader(request)}
	require.NoError(t, server.HandleConnection(conn))

	require.Contains(t, logs.String(), "bytes=2000")
	require.Contains(t, logs.String(), strings.Repeat("é", 32)+"...")
	require.NotContains(t, logs.String(), strings.Repeat("é", 33))
}

func TestRequestPreview(t *testing.T) {
	require.Equal(t, "SHOW work_mem", requestPreview([]byte("SHOW work_mem")))

	exact := strings.Repeat("a", loggedRequestLimit)
	require.Equal(t, exact, requestPreview([]byte(exact)))

	// the rune straddling the limit is dropped whole
	straddling := strings.Repeat("a", loggedRequestLimit-1) + "é"
	require.Equal(t, strings.Repeat("a", loggedRequestLimit-1)+"...", requestPreview([]byte(straddling)))
}

func TestHandleConnectionErrors(t *testing.T) {
	tests := []struct {
		name    string
		conn    *fakeConn
		wantErr error
	}{
		{name: "invalid utf-8", conn: &fakeConn{reader: bytes.NewReader([]byte{0xc3, 0x28})}, wantErr: ErrInvalidEncoding},
		{name: "read failure", conn: &fakeConn{reader: failingReader{}}, wantErr: ErrReadFailed},
		{name: "write failure", conn: &fakeConn{reader: bytes.NewReader([]byte("ok")), writeErr: errBrokenStream}, wantErr: ErrWriteFailed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (&Server{}).HandleConnection(tc.conn)
			require.ErrorIs(t, err, tc.wantErr)
			require.True(t, tc.conn.closed)
			if !errors.Is(tc.wantErr, ErrWriteFailed) {
				require.Zero(t, tc.conn.written.Len())
			}
		})
	}
}

type scriptedEndpoint struct {
	results []error
	conns   int
}

func (e *scriptedEndpoint) AcceptConnection() (net.Conn, net.Addr, error) {
	if len(e.results) == 0 {
		return nil, nil, errBrokenStream
	}
	err := e.results[0]
	e.results = e.results[1:]
	if err != nil {
		return nil, nil, err
	}
	e.conns++
	server, client := net.Pipe()
	go func() {
		_ = client.Close()
	}()
	return server, nil, nil
}

func TestServeRetriesWouldBlockAndStopsOnAcceptError(t *testing.T) {
	endpoint := &scriptedEndpoint{results: []error{ErrWouldBlock, ErrWouldBlock}}

	server := &Server{}
	err := server.Serve(endpoint)
	require.ErrorIs(t, err, ErrAcceptFailed)
	require.ErrorIs(t, err, errBrokenStream)
	require.Zero(t, endpoint.conns)
	require.Equal(t, fsm.StateStopped, server.State())
}

func TestSendMissingSocket(t *testing.T) {
	_, err := Send(context.Background(), filepath.Join(t.TempDir(), "absent.sock"), []byte("x"), 100*time.Millisecond)
	require.Error(t, err)
	require.True(t, isSocketMissing(err))
}

func TestProbe(t *testing.T) {
	socketPath, listener, serveDone := startServer(t, nil)

	alive, err := Probe(context.Background(), socketPath, 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, alive)

	require.NoError(t, listener.Close())
	<-serveDone

	alive, err = Probe(context.Background(), socketPath, 100*time.Millisecond)
	require.NoError(t, err)
	require.False(t, alive)
}

func ExampleSend() {
	socketPath := filepath.Join("/tmp", fmt.Sprintf("pgtuna-example-%d.sock", time.Now().UnixNano()))
	listener, err := NewBuilder().WithPath(socketPath).Build(context.Background())
	if err != nil {
		fmt.Println(err)
		return
	}
	defer listener.Close()
	go func() { _ = (&Server{}).Serve(listener) }()

	resp, err := Send(context.Background(), socketPath, []byte("how much work_mem?"), time.Second)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(string(resp))
	// Output: work_mem = 64MB
}
