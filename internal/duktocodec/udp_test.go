package duktocodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackHelloDecodeUDPRoundTrip(t *testing.T) {
	cases := []struct {
		name      string
		signature string
		tcpPort   int
		broadcast bool
	}{
		{name: "broadcast default port", signature: "alice at host (linux)", tcpPort: DefaultTCPPort, broadcast: true},
		{name: "unicast default port", signature: "bob at host (darwin)", tcpPort: DefaultTCPPort, broadcast: false},
		{name: "broadcast custom port", signature: "carol at host (windows)", tcpPort: 5000, broadcast: true},
		{name: "unicast custom port", signature: "dave at host (linux)", tcpPort: 5001, broadcast: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pkt := PackHello(tc.signature, tc.tcpPort, tc.broadcast)
			msg, err := DecodeUDP(pkt)
			require.NoError(t, err)
			assert.Equal(t, MsgHello, msg.Kind)
			assert.Equal(t, tc.broadcast, msg.Broadcast)
			assert.Equal(t, tc.tcpPort, msg.Port)
			assert.Equal(t, tc.signature, msg.Signature)
		})
	}
}

func TestPackGoodbyeDecodeUDP(t *testing.T) {
	msg, err := DecodeUDP(PackGoodbye())
	require.NoError(t, err)
	assert.Equal(t, MsgGoodbye, msg.Kind)
}

func TestDecodeUDPRejectsEmptyFrame(t *testing.T) {
	_, err := DecodeUDP(nil)
	assert.Error(t, err)
}

func TestDecodeUDPRejectsUnknownOpcode(t *testing.T) {
	_, err := DecodeUDP([]byte{0xff, 'h', 'i'})
	assert.Error(t, err)
}

func TestDecodeUDPRejectsShortHelloWithPort(t *testing.T) {
	_, err := DecodeUDP([]byte{opHelloBroadcastPort, 0x01})
	assert.Error(t, err)
}
