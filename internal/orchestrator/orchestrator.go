// Package orchestrator implements NetDropOrchestrator (§4.7): the
// composition root binding DiscoveryService, StreamServer, and
// StreamClient for every enabled protocol behind one control surface and
// one application sink.
//
// Composes one config+logger-driven process running both wire protocols
// side by side, using golang.org/x/sync/errgroup for the task group §5
// requires.
package orchestrator

import (
	"context"
	"crypto/tls"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ShivamForkedRepos/ndrop/internal/config"
	"github.com/ShivamForkedRepos/ndrop/internal/discovery"
	"github.com/ShivamForkedRepos/ndrop/internal/duktocodec"
	"github.com/ShivamForkedRepos/ndrop/internal/identity"
	"github.com/ShivamForkedRepos/ndrop/internal/metrics"
	"github.com/ShivamForkedRepos/ndrop/internal/netinfo"
	"github.com/ShivamForkedRepos/ndrop/internal/nitrosharecodec"
	"github.com/ShivamForkedRepos/ndrop/internal/peer"
	"github.com/ShivamForkedRepos/ndrop/internal/recv"
	"github.com/ShivamForkedRepos/ndrop/internal/streamclient"
	"github.com/ShivamForkedRepos/ndrop/internal/streamserver"
	"github.com/ShivamForkedRepos/ndrop/internal/transferplan"
	"github.com/ShivamForkedRepos/ndrop/internal/xerrors"
	"github.com/ShivamForkedRepos/ndrop/internal/xlog"
)

// Sink is the application callback surface of §6. Calls are not serialized
// across goroutines: peer events arrive from the peer-event loop and, when
// idle eviction is enabled, OnPeerRemoved also from the eviction sweep;
// receive callbacks and OnRequestFinish arrive from each inbound
// connection's worker, concurrently across connections; send callbacks
// arrive on the goroutine that called SendText/SendFiles. An implementation
// shared between these goroutines guards its own state.
type Sink interface {
	OnPeerAdded(peer.Peer)
	OnPeerRemoved(peer.Peer)
	OnRecvFileBegin(relPath string, size int64)
	OnRecvFileChunk(relPath string, chunk []byte, bytesInFile, fileSize, bytesTotal, totalSize int64)
	OnRecvFileFinish(relPath string)
	OnRecvText(text string)
	OnSendFileChunk(relPath string, chunk []byte, bytesInFile, fileSize, bytesTotal, totalSize int64)
	OnSendFinish()
	OnRequestFinish()
}

// Orchestrator composes both wire protocols behind one control surface
// (§4.7). One instance serves one Options configuration.
type Orchestrator struct {
	opts     config.Options
	resolved config.Resolved
	sink     Sink
	identity identity.Identity
	table    *peer.Table
	metrics  *metrics.TransferMetrics
	conns    *metrics.ConnectionCounter

	targetMu  sync.RWMutex
	targetDir string

	clients map[peer.Protocol]*streamclient.Client

	cancel context.CancelFunc
	g      *errgroup.Group
}

// New validates opts and constructs an Orchestrator, deriving the local
// signature and resolving default ports. It does not bind any socket; that
// happens in Start.
func New(opts config.Options, sink Sink) (*Orchestrator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	id, err := identity.Local()
	if err != nil {
		return nil, xerrors.ConfigError{Field: "identity", Message: err.Error()}
	}
	return &Orchestrator{
		opts:      opts,
		resolved:  opts.Resolve(duktocodec.DefaultTCPPort, nitrosharecodec.DefaultUDPPort, nitrosharecodec.DefaultTCPPort),
		sink:      sink,
		identity:  id,
		table:     peer.NewTable(),
		metrics:   metrics.New(),
		conns:     metrics.NewConnectionCounter(),
		targetDir: opts.TargetDir,
		clients:   make(map[peer.Protocol]*streamclient.Client),
	}, nil
}

func (o *Orchestrator) enabled(p peer.Protocol) bool {
	switch o.opts.Mode {
	case config.ModeBoth:
		return true
	case config.ModeDukto:
		return p == peer.Dukto
	case config.ModeNitroShare:
		return p == peer.NitroShare
	default:
		return false
	}
}

// Start binds every enabled protocol's discovery listener and stream
// server and runs until ctx is cancelled or Stop is called. It returns
// once every task has unwound; a bind failure for any component aborts the
// whole startup (§7: "Start() failures unwind fully").
func (o *Orchestrator) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	g, gctx := errgroup.WithContext(runCtx)
	o.g = g

	addrs, err := netinfo.Enumerate(o.opts.Listen)
	if err != nil {
		cancel()
		return err
	}

	events := make(chan peer.Event, 32)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev := <-events:
				o.dispatchPeerEvent(ev)
			}
		}
	})

	if o.enabled(peer.Dukto) {
		svc := &discovery.Service{
			Protocol:   peer.Dukto,
			Table:      o.table,
			Events:     events,
			Signature:  o.identity.Signature(),
			TCPPort:    o.resolved.DuktoTCPPort,
			Broadcasts: addrs.Broadcasts,
		}
		g.Go(func() error { return svc.Run(gctx, o.opts.Listen, o.resolved.DuktoUDPPort) })

		srv := &streamserver.Server{
			NewDecoder: func(h recv.Handler) streamserver.FrameDecoder { return duktocodec.NewDecoder(h) },
			NewHandler: o.recvHandler,
			Conns:      o.conns,
			OnConnDone: o.sink.OnRequestFinish,
		}
		if o.opts.TLSEnabled() {
			tlsCfg, err := loadServerTLS(o.opts)
			if err != nil {
				cancel()
				g.Wait()
				return err
			}
			srv.TLSConfig = tlsCfg
		}
		g.Go(func() error { return srv.Run(gctx, o.opts.Listen, o.resolved.DuktoTCPPort) })

		o.clients[peer.Dukto] = &streamclient.Client{Protocol: peer.Dukto, ChunkSize: 32 * 1024, TLSConfig: clientTLS(o.opts)}
	}

	if o.enabled(peer.NitroShare) {
		svc := &discovery.Service{
			Protocol:   peer.NitroShare,
			Table:      o.table,
			Events:     events,
			Signature:  o.identity.Signature(),
			TCPPort:    o.resolved.NitroShareTCPPort,
			Broadcasts: addrs.Broadcasts,
		}
		g.Go(func() error { return svc.Run(gctx, o.opts.Listen, o.resolved.NitroShareUDPPort) })

		srv := &streamserver.Server{
			NewDecoder: func(h recv.Handler) streamserver.FrameDecoder { return nitrosharecodec.NewDecoder(h) },
			NewHandler: o.recvHandler,
			Conns:      o.conns,
			OnConnDone: o.sink.OnRequestFinish,
		}
		g.Go(func() error { return srv.Run(gctx, o.opts.Listen, o.resolved.NitroShareTCPPort) })

		o.clients[peer.NitroShare] = &streamclient.Client{Protocol: peer.NitroShare, ChunkSize: 32 * 1024}
	}

	if o.opts.PeerIdleTimeoutSeconds > 0 {
		g.Go(func() error { return o.idleEvictionLoop(gctx) })
	}

	return g.Wait()
}

// Stop triggers goodbyes, closes listeners, and waits for the discovery,
// accept-loop, peer-event and eviction tasks to unwind (§4.7, §5). Inbound
// connection workers already running are not waited for; each ends when
// its peer closes the connection.
func (o *Orchestrator) Stop() error {
	if o.cancel == nil {
		return nil
	}
	o.cancel()
	return o.g.Wait()
}

func (o *Orchestrator) dispatchPeerEvent(ev peer.Event) {
	switch ev.Kind {
	case peer.Added:
		o.sink.OnPeerAdded(ev.Peer)
	case peer.Removed:
		o.sink.OnPeerRemoved(ev.Peer)
	}
}

// SnapshotPeers returns every currently known peer (§4.4 snapshotPeers()).
func (o *Orchestrator) SnapshotPeers() []peer.Peer {
	return o.table.Snapshot()
}

// SetTargetDir changes the directory received files are materialized
// under. Safe to call concurrently with in-flight receives; a receive in
// progress finishes under whichever directory was set when it began its
// first write.
func (o *Orchestrator) SetTargetDir(path string) {
	o.targetMu.Lock()
	defer o.targetMu.Unlock()
	o.targetDir = path
}

func (o *Orchestrator) currentTargetDir() string {
	o.targetMu.RLock()
	defer o.targetMu.RUnlock()
	return o.targetDir
}

// SendText sends text to peer p. Refused synchronously as a
// ProtocolMismatch when p speaks NitroShare (§4.3, §7).
func (o *Orchestrator) SendText(ctx context.Context, p peer.Peer, text string) error {
	c, ok := o.clients[p.Protocol]
	if !ok {
		return xerrors.ProtocolMismatch{Reason: "protocol not enabled: " + string(p.Protocol)}
	}
	err := c.SendText(ctx, p.Address, p.Port, text)
	o.sink.OnSendFinish()
	return err
}

// SendFiles builds a TransferPlan from roots and streams it to peer p.
func (o *Orchestrator) SendFiles(ctx context.Context, p peer.Peer, roots []string) error {
	c, ok := o.clients[p.Protocol]
	if !ok {
		return xerrors.ProtocolMismatch{Reason: "protocol not enabled: " + string(p.Protocol)}
	}
	plan, err := transferplan.Build(roots)
	if err != nil {
		return err
	}
	onChunk := func(relPath string, chunk []byte, bytesInFile, fileSize, bytesTotal, totalSize int64) {
		o.metrics.AddBytesSent(uint64(len(chunk)))
		o.sink.OnSendFileChunk(relPath, chunk, bytesInFile, fileSize, bytesTotal, totalSize)
	}
	onFinish := func(relPath string) {
		o.metrics.AddFileSent()
	}
	err = c.SendFiles(ctx, p.Address, p.Port, plan, onChunk, onFinish)
	o.sink.OnSendFinish()
	return err
}

// Metrics returns a snapshot of this orchestrator's observed throughput.
func (o *Orchestrator) Metrics() metrics.Snapshot {
	return o.metrics.Snapshot()
}

// ActiveConnections returns the current and peak number of concurrently
// accepted stream-server connections across every enabled protocol.
func (o *Orchestrator) ActiveConnections() (active, peak int64) {
	return o.conns.Active(), o.conns.Peak()
}

func (o *Orchestrator) idleEvictionLoop(ctx context.Context) error {
	log := xlog.For("orchestrator")
	timeout := time.Duration(o.opts.PeerIdleTimeoutSeconds) * time.Second
	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			evicted := o.table.EvictIdle(timeout)
			for _, p := range evicted {
				log.Info().Str("peer", p.Address).Msg("evicted idle peer")
				o.sink.OnPeerRemoved(p)
			}
		}
	}
}

// recvHandler builds one fresh fileHandler per accepted connection, so the
// file currently being written is never shared across connections.
func (o *Orchestrator) recvHandler() recv.Handler {
	return &fileHandler{orch: o}
}

// fileHandler adapts decoded wire events onto the filesystem and the
// application sink, and into TransferMetrics, implementing recv.Handler.
type fileHandler struct {
	orch *Orchestrator

	mu      sync.Mutex
	current *os.File
}

func (h *fileHandler) resolvePath(relPath string) (string, error) {
	clean := filepath.Clean(relPath)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || filepath.IsAbs(clean) {
		return "", xerrors.IOError{Path: relPath, Err: os.ErrInvalid}
	}
	return filepath.Join(h.orch.currentTargetDir(), clean), nil
}

func (h *fileHandler) OnDirectory(relPath string) {
	abs, err := h.resolvePath(relPath)
	if err != nil {
		return
	}
	os.MkdirAll(abs, 0o755)
}

func (h *fileHandler) OnFileBegin(relPath string, size int64) {
	abs, err := h.resolvePath(relPath)
	if err != nil {
		h.orch.metrics.AddError()
		return
	}
	os.MkdirAll(filepath.Dir(abs), 0o755)
	f, err := os.Create(abs)
	if err != nil {
		h.orch.metrics.AddError()
		return
	}
	h.mu.Lock()
	h.current = f
	h.mu.Unlock()
	h.orch.sink.OnRecvFileBegin(relPath, size)
}

func (h *fileHandler) OnFileChunk(relPath string, chunk []byte, bytesInFile, fileSize, bytesTotal, totalSize int64) {
	h.mu.Lock()
	f := h.current
	h.mu.Unlock()
	if f != nil {
		f.Write(chunk)
	}
	h.orch.metrics.AddBytesReceived(uint64(len(chunk)))
	h.orch.sink.OnRecvFileChunk(relPath, chunk, bytesInFile, fileSize, bytesTotal, totalSize)
}

func (h *fileHandler) OnFileFinish(relPath string) {
	h.mu.Lock()
	f := h.current
	h.current = nil
	h.mu.Unlock()
	if f != nil {
		f.Close()
	}
	h.orch.metrics.AddFileReceived()
	h.orch.sink.OnRecvFileFinish(relPath)
}

func (h *fileHandler) OnText(text string) {
	h.orch.sink.OnRecvText(text)
}

// loadServerTLS builds a server-auth-only TLS config from the configured
// certificate/key pair (§4.5: clients are not verified).
func loadServerTLS(opts config.Options) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(opts.TLS.CertPath, opts.TLS.KeyPath)
	if err != nil {
		return nil, xerrors.ConfigError{Field: "TLS", Message: err.Error()}
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

// clientTLS returns a TLS config accepting the server's certificate
// without verifying it against a CA (the Dukto/NitroShare trust model has
// no certificate authority; peers are identified by discovery, not PKI),
// or nil when TLS is not configured.
func clientTLS(opts config.Options) *tls.Config {
	if !opts.TLSEnabled() {
		return nil
	}
	return &tls.Config{InsecureSkipVerify: true}
}
