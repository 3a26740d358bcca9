package orchestrator

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShivamForkedRepos/ndrop/internal/config"
	"github.com/ShivamForkedRepos/ndrop/internal/peer"
	"github.com/ShivamForkedRepos/ndrop/internal/streamclient"
	"github.com/ShivamForkedRepos/ndrop/internal/transferplan"
	"github.com/ShivamForkedRepos/ndrop/internal/xerrors"
)

func TestResolvePathRejectsTraversal(t *testing.T) {
	h := &fileHandler{orch: &Orchestrator{targetDir: "/var/ndrop/incoming"}}

	for _, bad := range []string{"../escape.txt", "/etc/passwd", "..", "a/../../escape.txt"} {
		_, err := h.resolvePath(bad)
		assert.Error(t, err, "expected rejection for %q", bad)
		assert.IsType(t, xerrors.IOError{}, err)
	}
}

func TestResolvePathAcceptsOrdinaryRelativePath(t *testing.T) {
	h := &fileHandler{orch: &Orchestrator{targetDir: "/var/ndrop/incoming"}}
	got, err := h.resolvePath("sub/dir/file.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/var/ndrop/incoming", "sub/dir/file.txt"), got)
}

type recordingSink struct {
	mu             sync.Mutex
	peersAdded     []peer.Peer
	peersRemoved   []peer.Peer
	recvBegins     []string
	recvFinishes   []string
	recvTexts      []string
	requestFinishes int
}

func (s *recordingSink) OnPeerAdded(p peer.Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peersAdded = append(s.peersAdded, p)
}
func (s *recordingSink) OnPeerRemoved(p peer.Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peersRemoved = append(s.peersRemoved, p)
}
func (s *recordingSink) OnRecvFileBegin(relPath string, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recvBegins = append(s.recvBegins, relPath)
}
func (s *recordingSink) OnRecvFileChunk(string, []byte, int64, int64, int64, int64) {}
func (s *recordingSink) OnRecvFileFinish(relPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recvFinishes = append(s.recvFinishes, relPath)
}
func (s *recordingSink) OnRecvText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recvTexts = append(s.recvTexts, text)
}
func (s *recordingSink) OnSendFileChunk(string, []byte, int64, int64, int64, int64) {}
func (s *recordingSink) OnSendFinish()                                             {}
func (s *recordingSink) OnRequestFinish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestFinishes++
}

func (s *recordingSink) snapshotFinishes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.recvFinishes...)
}

func (s *recordingSink) requestFinishCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestFinishes
}

func waitForDial(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp4", addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("nothing ever accepted connections on %s", addr)
}

func TestOrchestratorReceivesFilesFromDirectStreamClient(t *testing.T) {
	recvDir := t.TempDir()
	sendRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(sendRoot, "note.txt"), []byte("integration test payload"), 0o644))

	sink := &recordingSink{}
	opts := config.Options{
		Mode:      config.ModeDukto,
		TargetDir: recvDir,
		TCPPort:   58241,
		UDPPort:   58242,
	}
	orch, err := New(opts, sink)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	startDone := make(chan error, 1)
	go func() { startDone <- orch.Start(ctx) }()

	addr := net.JoinHostPort("127.0.0.1", "58241")
	waitForDial(t, addr)

	plan, err := transferplan.Build([]string{sendRoot})
	require.NoError(t, err)

	client := &streamclient.Client{Protocol: peer.Dukto, ChunkSize: 4096}
	require.NoError(t, client.SendFiles(context.Background(), "127.0.0.1", 58241, plan, nil, nil))

	require.Eventually(t, func() bool {
		return len(sink.snapshotFinishes()) == 1
	}, 2*time.Second, 20*time.Millisecond)

	received, err := os.ReadFile(filepath.Join(recvDir, filepath.Base(sendRoot), "note.txt"))
	require.NoError(t, err)
	assert.Equal(t, "integration test payload", string(received))

	// two inbound connections completed: waitForDial's readiness probe and
	// the transfer itself.
	require.Eventually(t, func() bool {
		return sink.requestFinishCount() == 2
	}, 2*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		active, _ := orch.ActiveConnections()
		return active == 0
	}, 2*time.Second, 20*time.Millisecond)
	_, peak := orch.ActiveConnections()
	assert.GreaterOrEqual(t, peak, int64(1))

	cancel()
	select {
	case <-startDone:
	case <-time.After(3 * time.Second):
		t.Fatal("orchestrator never stopped")
	}
}

func TestOrchestratorSendTextRefusedForUnenabledProtocol(t *testing.T) {
	sink := &recordingSink{}
	opts := config.Options{
		Mode:      config.ModeDukto,
		TargetDir: t.TempDir(),
		TCPPort:   58243,
		UDPPort:   58244,
	}
	orch, err := New(opts, sink)
	require.NoError(t, err)

	err = orch.SendText(context.Background(), peer.Peer{Protocol: peer.NitroShare, Address: "127.0.0.1", Port: 1}, "hi")
	assert.IsType(t, xerrors.ProtocolMismatch{}, err)
}
