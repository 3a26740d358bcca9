// Package streamclient implements StreamClient (§4.6): dial the target's
// (address, port), write the wire header, and stream a text payload or a
// TransferPlan, reporting the same progress shape the receive side uses.
//
// One TCP connection per send, carrying whichever codec matches the
// target peer's protocol.
package streamclient

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"

	"github.com/ShivamForkedRepos/ndrop/internal/duktocodec"
	"github.com/ShivamForkedRepos/ndrop/internal/nitrosharecodec"
	"github.com/ShivamForkedRepos/ndrop/internal/peer"
	"github.com/ShivamForkedRepos/ndrop/internal/transferplan"
	"github.com/ShivamForkedRepos/ndrop/internal/xerrors"
)

// ChunkProgress reports one outbound slice of a file being sent.
type ChunkProgress func(relPath string, chunk []byte, bytesInFile, fileSize, bytesTotal, totalSize int64)

// FileFinishReporter reports that one file's bytes have all been queued.
type FileFinishReporter func(relPath string)

// Client sends to peers of a single protocol. The orchestrator holds one
// Client per enabled protocol, exactly as it holds one discovery.Service
// and one streamserver.Server per protocol.
type Client struct {
	Protocol  peer.Protocol
	ChunkSize int
	TLSConfig *tls.Config // nil means plaintext; only meaningful for Dukto
}

func (c *Client) dial(ctx context.Context, address string, port int) (net.Conn, error) {
	addr := net.JoinHostPort(address, strconv.Itoa(port))
	dialer := &net.Dialer{}
	var conn net.Conn
	var err error
	if c.TLSConfig != nil {
		conn, err = tls.DialWithDialer(dialer, "tcp4", addr, c.TLSConfig)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp4", addr)
	}
	if err != nil {
		return nil, xerrors.NetworkTransientError{Op: "dial " + string(c.Protocol), Err: err}
	}
	return conn, nil
}

// SendText delivers a Dukto text transfer. NitroShare carries no text
// transfer (§4.3); sending text to a NitroShare peer is refused
// synchronously, before any socket activity, as a ProtocolMismatch.
func (c *Client) SendText(ctx context.Context, address string, port int, text string) error {
	if c.Protocol != peer.Dukto {
		return xerrors.ProtocolMismatch{Reason: "text transfer is not supported over NitroShare"}
	}
	conn, err := c.dial(ctx, address, port)
	if err != nil {
		return err
	}
	defer conn.Close()
	enc := duktocodec.NewEncoder(c.ChunkSize)
	return enc.EncodeText(conn, text)
}

// SendFiles delivers plan over a fresh connection to (address, port),
// using the codec matching c.Protocol.
func (c *Client) SendFiles(ctx context.Context, address string, port int, plan transferplan.Plan, onChunk ChunkProgress, onFinish FileFinishReporter) error {
	conn, err := c.dial(ctx, address, port)
	if err != nil {
		return err
	}
	defer conn.Close()

	switch c.Protocol {
	case peer.Dukto:
		enc := duktocodec.NewEncoder(c.ChunkSize)
		return enc.EncodeFiles(conn, plan, duktocodec.ChunkProgress(onChunk), duktocodec.FileFinishReporter(onFinish))
	case peer.NitroShare:
		enc := nitrosharecodec.NewEncoder(c.ChunkSize)
		return enc.EncodeFiles(conn, plan, nitrosharecodec.ChunkProgress(onChunk), nitrosharecodec.FileFinishReporter(onFinish))
	default:
		return xerrors.ProtocolMismatch{Reason: "unknown protocol " + string(c.Protocol)}
	}
}
