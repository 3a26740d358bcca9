package nitrosharecodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackPingDecodeUDPRoundTrip(t *testing.T) {
	data, err := PackPing("alice", "linux", 40818)
	require.NoError(t, err)

	ping, err := DecodeUDP(data)
	require.NoError(t, err)
	assert.Equal(t, "alice", ping.Nickname)
	assert.Equal(t, "linux", ping.OS)
	assert.Equal(t, 40818, ping.TCPPort)
}

func TestDecodeUDPRejectsMalformedJSON(t *testing.T) {
	_, err := DecodeUDP([]byte("not json"))
	assert.Error(t, err)
}

func TestNewSessionIDIsUnique(t *testing.T) {
	a := NewSessionID()
	b := NewSessionID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
