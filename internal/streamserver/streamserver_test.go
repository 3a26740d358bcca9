package streamserver

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShivamForkedRepos/ndrop/internal/duktocodec"
	"github.com/ShivamForkedRepos/ndrop/internal/metrics"
	"github.com/ShivamForkedRepos/ndrop/internal/recv"
)

type capturingHandler struct {
	mu    sync.Mutex
	texts []string
}

func (h *capturingHandler) OnDirectory(string)                                    {}
func (h *capturingHandler) OnFileBegin(string, int64)                             {}
func (h *capturingHandler) OnFileChunk(string, []byte, int64, int64, int64, int64) {}
func (h *capturingHandler) OnFileFinish(string)                                   {}
func (h *capturingHandler) OnText(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.texts = append(h.texts, text)
}
func (h *capturingHandler) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.texts...)
}

func waitForListener(t *testing.T, s *Server) net.Addr {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.listener != nil {
			return s.listener.Addr()
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("server never started listening")
	return nil
}

func TestServerDecodesTextSentOverLoopback(t *testing.T) {
	h := &capturingHandler{}
	conns := metrics.NewConnectionCounter()
	m := metrics.New()
	var doneCount int
	var doneMu sync.Mutex

	s := &Server{
		NewDecoder: func(handler recv.Handler) FrameDecoder { return duktocodec.NewDecoder(handler) },
		NewHandler: func() recv.Handler { return h },
		Conns:      conns,
		Metrics:    m,
		OnConnDone: func() {
			doneMu.Lock()
			doneCount++
			doneMu.Unlock()
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx, "127.0.0.1", 0) }()

	addr := waitForListener(t, s)
	_, portStr, err := net.SplitHostPort(addr.String())
	require.NoError(t, err)

	conn, err := net.Dial("tcp4", net.JoinHostPort("127.0.0.1", portStr))
	require.NoError(t, err)
	enc := duktocodec.NewEncoder(4096)
	require.NoError(t, enc.EncodeText(conn, "hello over loopback"))
	conn.Close()

	require.Eventually(t, func() bool {
		return len(h.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"hello over loopback"}, h.snapshot())

	cancel()
	require.Eventually(t, func() bool {
		doneMu.Lock()
		defer doneMu.Unlock()
		return doneCount == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.EqualValues(t, 0, conns.Active())
	assert.Greater(t, m.Snapshot().BytesReceived, uint64(0))

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestServerRejectsMalformedFrame(t *testing.T) {
	h := &capturingHandler{}
	s := &Server{
		NewDecoder: func(handler recv.Handler) FrameDecoder { return duktocodec.NewDecoder(handler) },
		NewHandler: func() recv.Handler { return h },
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx, "127.0.0.1", 0)
	addr := waitForListener(t, s)
	_, portStr, _ := net.SplitHostPort(addr.String())

	conn, err := net.Dial("tcp4", net.JoinHostPort("127.0.0.1", portStr))
	require.NoError(t, err)
	// a full 16-byte header of 0xFF decodes as negative record/byte counts.
	_, err = conn.Write([]byte{
		0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
		0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	})
	require.NoError(t, err)

	// the server aborts the connection on a decode error; the peer observes
	// EOF rather than hanging.
	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
	conn.Close()
}

