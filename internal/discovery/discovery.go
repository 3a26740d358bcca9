// Package discovery implements DiscoveryService (§4.4): one UDP listener
// and one periodic beacon per protocol, both updating the shared peer
// table from §9's mutex-guarded Table.
//
// Each Service binds its own UDP socket and runs the receive loop and
// beacon task as a pair of goroutines under golang.org/x/sync/errgroup
// (§2.2, §5), rather than a bare goroutine/sync.WaitGroup pair.
package discovery

import (
	"context"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ShivamForkedRepos/ndrop/internal/duktocodec"
	"github.com/ShivamForkedRepos/ndrop/internal/nitrosharecodec"
	"github.com/ShivamForkedRepos/ndrop/internal/peer"
	"github.com/ShivamForkedRepos/ndrop/internal/xerrors"
)

// beaconInterval is the Dukto/NitroShare hello cadence (§4.4, §5).
const beaconInterval = 30 * time.Second

// Service runs one protocol's UDP discovery loop plus its beacon task, and
// publishes add/remove events onto Events. Each enabled protocol gets its
// own Service instance, composed by the orchestrator.
type Service struct {
	Protocol   peer.Protocol
	Table      *peer.Table
	Events     chan<- peer.Event
	Signature  string
	TCPPort    int
	Broadcasts []string

	conn          *net.UDPConn
	discoveryPort int
}

// Run binds the UDP socket for s.Protocol on udpPort and runs the receive
// loop and beacon task until ctx is cancelled. A Dukto Service sends a
// goodbye broadcast before returning (§4.4, §5 cancellation); a NitroShare
// Service sends none, since that protocol has no goodbye frame.
func (s *Service) Run(ctx context.Context, bind string, udpPort int) error {
	addr := &net.UDPAddr{Port: udpPort}
	if bind != "" {
		addr.IP = net.ParseIP(bind)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return xerrors.NetworkTransientError{Op: "listen udp " + string(s.Protocol), Err: err}
	}
	s.conn = conn
	s.discoveryPort = udpPort
	defer conn.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.receiveLoop(gctx) })
	g.Go(func() error { return s.beaconLoop(gctx) })

	err = g.Wait()
	s.sendGoodbye()
	if err == context.Canceled {
		return nil
	}
	return err
}

func (s *Service) receiveLoop(ctx context.Context) error {
	buf := make([]byte, 64*1024)
	for {
		if ctx.Err() != nil {
			return nil
		}
		s.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		s.handleDatagram(buf[:n], from)
	}
}

func (s *Service) handleDatagram(data []byte, from *net.UDPAddr) {
	switch s.Protocol {
	case peer.Dukto:
		msg, err := duktocodec.DecodeUDP(data)
		if err != nil {
			return
		}
		switch msg.Kind {
		case duktocodec.MsgHello:
			if msg.Signature == s.Signature {
				return
			}
			p := peer.Peer{
				Address:   from.IP.String(),
				Port:      msg.Port,
				Signature: msg.Signature,
				Protocol:  peer.Dukto,
				LastSeen:  time.Now(),
			}
			isNew := s.Table.Upsert(p)
			if isNew {
				s.emit(peer.Event{Kind: peer.Added, Peer: p})
			}
			if msg.Broadcast {
				s.replyHello(from)
			}
		case duktocodec.MsgGoodbye:
			k := peer.Key{Address: from.IP.String(), Protocol: peer.Dukto}
			if existed := s.Table.Remove(k); existed {
				s.emit(peer.Event{Kind: peer.Removed, Peer: peer.Peer{Address: k.Address, Protocol: peer.Dukto}})
			}
		}

	case peer.NitroShare:
		ping, err := nitrosharecodec.DecodeUDP(data)
		if err != nil {
			return
		}
		if ping.Nickname == s.Signature {
			return
		}
		p := peer.Peer{
			Address:   from.IP.String(),
			Port:      ping.TCPPort,
			Signature: ping.Nickname,
			Protocol:  peer.NitroShare,
			LastSeen:  time.Now(),
		}
		isNew := s.Table.Upsert(p)
		if isNew {
			s.emit(peer.Event{Kind: peer.Added, Peer: p})
		}
	}
}

// replyHello answers a broadcast hello with a unicast one, matching Dukto's
// reply-to-broadcast convention (§4.2.1).
func (s *Service) replyHello(to *net.UDPAddr) {
	pkt := duktocodec.PackHello(s.Signature, s.TCPPort, false)
	s.conn.WriteToUDP(pkt, to)
}

func (s *Service) beaconLoop(ctx context.Context) error {
	ticker := time.NewTicker(beaconInterval)
	defer ticker.Stop()
	s.sendHello()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sendHello()
		}
	}
}

func (s *Service) sendHello() {
	var pkt []byte
	switch s.Protocol {
	case peer.Dukto:
		pkt = duktocodec.PackHello(s.Signature, s.TCPPort, true)
	case peer.NitroShare:
		p, err := nitrosharecodec.PackPing(s.Signature, "", s.TCPPort)
		if err != nil {
			return
		}
		pkt = p
	}
	for _, bcast := range s.Broadcasts {
		addr := &net.UDPAddr{IP: net.ParseIP(bcast), Port: s.discoveryPort}
		s.conn.WriteToUDP(pkt, addr)
	}
}

func (s *Service) sendGoodbye() {
	if s.Protocol != peer.Dukto || s.conn == nil {
		return
	}
	pkt := duktocodec.PackGoodbye()
	for _, bcast := range s.Broadcasts {
		addr := &net.UDPAddr{IP: net.ParseIP(bcast), Port: s.discoveryPort}
		s.conn.WriteToUDP(pkt, addr)
	}
}

// emit is non-blocking: the receive loop must never stall on a slow sink,
// so a full Events channel drops this event rather than backing up UDP
// reads. Accepted loss — the orchestrator's single drain goroutine keeps
// the channel far from full in practice.
func (s *Service) emit(ev peer.Event) {
	select {
	case s.Events <- ev:
	default:
	}
}
