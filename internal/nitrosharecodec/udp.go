// Package nitrosharecodec implements the NitroShare wire format: small
// JSON discovery pings over UDP and a JSON-framed TCP transfer protocol
// (§4.3). Unlike Dukto it carries no goodbye semantics and no text
// transfer.
//
// JSON identity pings and JSON-framed headers ahead of raw file bytes use
// the standard library's encoding/json, plus github.com/google/uuid for
// the session identifier each transfer carries.
package nitrosharecodec

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/ShivamForkedRepos/ndrop/internal/xerrors"
)

const (
	// DefaultUDPPort is the NitroShare discovery port.
	DefaultUDPPort = 40816
	// DefaultTCPPort is the NitroShare transfer port.
	DefaultTCPPort = 40818
)

// Ping is the JSON discovery broadcast NitroShare peers exchange in place
// of Dukto's opcode/signature hellos.
type Ping struct {
	Nickname string `json:"nickname"`
	OS       string `json:"os"`
	TCPPort  int    `json:"tcpPort"`
}

// PackPing encodes a discovery ping as a standalone JSON document (UDP
// datagrams need no length prefix; the whole datagram is one ping).
func PackPing(nickname, os string, tcpPort int) ([]byte, error) {
	return json.Marshal(Ping{Nickname: nickname, OS: os, TCPPort: tcpPort})
}

// DecodeUDP decodes one discovery ping.
func DecodeUDP(data []byte) (Ping, error) {
	var p Ping
	if err := json.Unmarshal(data, &p); err != nil {
		return Ping{}, xerrors.DecodeError{Reason: "malformed nitroshare ping: " + err.Error()}
	}
	return p, nil
}

// NewSessionID mints the per-transfer identifier the TCP transfer header
// carries (§2.2 DOMAIN STACK).
func NewSessionID() string {
	return uuid.NewString()
}
