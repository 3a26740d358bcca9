// Package config defines the options the control surface in §6 accepts,
// plus validation, as plain option structs with a Validate method.
// Persistence to disk is out of scope here: the caller owns loading and
// saving these.
package config

import (
	"net"
	"strings"

	"github.com/ShivamForkedRepos/ndrop/internal/xerrors"
)

// Mode restricts which wire protocol(s) the orchestrator binds.
type Mode string

const (
	// ModeBoth binds Dukto and NitroShare concurrently (the default).
	ModeBoth       Mode = ""
	ModeDukto      Mode = "dukto"
	ModeNitroShare Mode = "nitroshare"
)

// TLSMaterial is a certificate/key pair for the stream server. A zero value
// means plaintext TCP.
type TLSMaterial struct {
	CertPath string
	KeyPath  string
}

func (t TLSMaterial) enabled() bool {
	return t.CertPath != "" || t.KeyPath != ""
}

// Options configures one NetDropOrchestrator instance.
type Options struct {
	// Listen is the bind IP; empty means "all interfaces".
	Listen string
	// Mode restricts which protocol(s) are bound.
	Mode Mode
	// TargetDir is the filesystem root received files are written under.
	TargetDir string
	// TLS, if non-zero, wraps the Dukto TCP listener in TLS (server-auth only).
	TLS TLSMaterial
	// TCPPort overrides the Dukto TCP port (0 = default 4644).
	TCPPort int
	// UDPPort overrides the Dukto UDP port (0 = default 4644).
	UDPPort int
	// NitroShareUDPPort overrides the NitroShare discovery port (0 = protocol default).
	NitroShareUDPPort int
	// NitroShareTCPPort overrides the NitroShare transfer port (0 = protocol default).
	NitroShareTCPPort int
	// PeerIdleTimeoutSeconds evicts a peer that has not been heard from in
	// this long. Zero disables eviction (§9).
	PeerIdleTimeoutSeconds int
}

// Validate checks Options for the mistakes that must be fatal at startup
// (§7, ConfigError).
func (o Options) Validate() error {
	if o.Listen != "" && net.ParseIP(o.Listen).To4() == nil {
		return xerrors.ConfigError{Field: "Listen", Message: "not a valid IPv4 address"}
	}
	switch o.Mode {
	case ModeBoth, ModeDukto, ModeNitroShare:
	default:
		return xerrors.ConfigError{Field: "Mode", Message: `must be "", "dukto", or "nitroshare"`}
	}
	if strings.TrimSpace(o.TargetDir) == "" {
		return xerrors.ConfigError{Field: "TargetDir", Message: "must not be empty"}
	}
	if (o.TLS.CertPath == "") != (o.TLS.KeyPath == "") {
		return xerrors.ConfigError{Field: "TLS", Message: "CertPath and KeyPath must both be set or both be empty"}
	}
	for _, p := range []int{o.TCPPort, o.UDPPort, o.NitroShareUDPPort, o.NitroShareTCPPort} {
		if p < 0 || p > 65535 {
			return xerrors.ConfigError{Field: "port", Message: "must be between 0 and 65535"}
		}
	}
	if o.PeerIdleTimeoutSeconds < 0 {
		return xerrors.ConfigError{Field: "PeerIdleTimeoutSeconds", Message: "must not be negative"}
	}
	return nil
}

// TLSEnabled reports whether the Dukto stream server should wrap its
// listener in TLS.
func (o Options) TLSEnabled() bool { return o.TLS.enabled() }

// Resolved carries the defaults-filled port numbers a component actually
// binds to, keeping "0 means default" resolution out of the hot path.
type Resolved struct {
	DuktoTCPPort      int
	DuktoUDPPort      int
	NitroShareUDPPort int
	NitroShareTCPPort int
}

// Resolve fills zero-valued port fields with protocol defaults.
func (o Options) Resolve(duktoPort, nitroUDPPort, nitroTCPPort int) Resolved {
	r := Resolved{
		DuktoTCPPort:      o.TCPPort,
		DuktoUDPPort:      o.UDPPort,
		NitroShareUDPPort: o.NitroShareUDPPort,
		NitroShareTCPPort: o.NitroShareTCPPort,
	}
	if r.DuktoTCPPort == 0 {
		r.DuktoTCPPort = duktoPort
	}
	if r.DuktoUDPPort == 0 {
		r.DuktoUDPPort = duktoPort
	}
	if r.NitroShareUDPPort == 0 {
		r.NitroShareUDPPort = nitroUDPPort
	}
	if r.NitroShareTCPPort == 0 {
		r.NitroShareTCPPort = nitroTCPPort
	}
	return r
}
