package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validOptions() Options {
	return Options{
		Listen:    "192.168.1.10",
		Mode:      ModeBoth,
		TargetDir: "/tmp/ndrop",
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, validOptions().Validate())
}

func TestValidateAcceptsEmptyListen(t *testing.T) {
	o := validOptions()
	o.Listen = ""
	assert.NoError(t, o.Validate())
}

func TestValidateRejectsBadListenIP(t *testing.T) {
	o := validOptions()
	o.Listen = "not-an-ip"
	assert.Error(t, o.Validate())
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	o := validOptions()
	o.Mode = "carrier-pigeon"
	assert.Error(t, o.Validate())
}

func TestValidateAcceptsEachKnownMode(t *testing.T) {
	for _, m := range []Mode{ModeBoth, ModeDukto, ModeNitroShare} {
		o := validOptions()
		o.Mode = m
		assert.NoError(t, o.Validate())
	}
}

func TestValidateRejectsEmptyTargetDir(t *testing.T) {
	o := validOptions()
	o.TargetDir = "   "
	assert.Error(t, o.Validate())
}

func TestValidateRejectsMismatchedTLSPair(t *testing.T) {
	o := validOptions()
	o.TLS = TLSMaterial{CertPath: "cert.pem"}
	assert.Error(t, o.Validate())

	o.TLS = TLSMaterial{KeyPath: "key.pem"}
	assert.Error(t, o.Validate())
}

func TestValidateAcceptsCompleteTLSPair(t *testing.T) {
	o := validOptions()
	o.TLS = TLSMaterial{CertPath: "cert.pem", KeyPath: "key.pem"}
	assert.NoError(t, o.Validate())
}

func TestValidateRejectsOutOfRangePorts(t *testing.T) {
	base := validOptions()
	fields := []func(*Options, int){
		func(o *Options, p int) { o.TCPPort = p },
		func(o *Options, p int) { o.UDPPort = p },
		func(o *Options, p int) { o.NitroShareUDPPort = p },
		func(o *Options, p int) { o.NitroShareTCPPort = p },
	}
	for _, set := range fields {
		o := base
		set(&o, -1)
		assert.Error(t, o.Validate())

		o2 := base
		set(&o2, 70000)
		assert.Error(t, o2.Validate())
	}
}

func TestValidateRejectsNegativeIdleTimeout(t *testing.T) {
	o := validOptions()
	o.PeerIdleTimeoutSeconds = -5
	assert.Error(t, o.Validate())
}

func TestTLSEnabled(t *testing.T) {
	o := validOptions()
	assert.False(t, o.TLSEnabled())

	o.TLS = TLSMaterial{CertPath: "cert.pem", KeyPath: "key.pem"}
	assert.True(t, o.TLSEnabled())
}

func TestResolveFillsZeroPortsWithDefaults(t *testing.T) {
	o := Options{}
	r := o.Resolve(4644, 30000, 40818)
	assert.Equal(t, Resolved{
		DuktoTCPPort:      4644,
		DuktoUDPPort:      4644,
		NitroShareUDPPort: 30000,
		NitroShareTCPPort: 40818,
	}, r)
}

func TestResolvePreservesExplicitOverrides(t *testing.T) {
	o := Options{TCPPort: 5000, UDPPort: 5001, NitroShareUDPPort: 5002, NitroShareTCPPort: 5003}
	r := o.Resolve(4644, 30000, 40818)
	assert.Equal(t, Resolved{
		DuktoTCPPort:      5000,
		DuktoUDPPort:      5001,
		NitroShareUDPPort: 5002,
		NitroShareTCPPort: 5003,
	}, r)
}
