// Package duktocodec implements the Dukto wire format: UDP discovery
// frames (§4.2.1) and TCP transfer frames with their receive state machine
// (§4.2.2–§4.2.4).
//
// Grounded on original_source/ndrop/dukto.py's DuktoPacket.pack_hello/
// pack_goodbye/unpack_udp, translated from Python's signed little-endian
// int.to_bytes/int.from_bytes into encoding/binary.LittleEndian, in the
// teacher's encoding/binary header-packing style (internal/protocol).
package duktocodec

import (
	"bytes"
	"encoding/binary"

	"github.com/ShivamForkedRepos/ndrop/internal/xerrors"
)

const (
	// DefaultUDPPort is the Dukto discovery port.
	DefaultUDPPort = 4644
	// DefaultTCPPort is the Dukto transfer port.
	DefaultTCPPort = 4644
)

const (
	opHelloBroadcast     byte = 0x01
	opHelloUnicast       byte = 0x02
	opGoodbye            byte = 0x03
	opHelloBroadcastPort byte = 0x04
	opHelloUnicastPort   byte = 0x05
)

const goodbyePayload = "Bye Bye"

// MessageKind distinguishes a decoded UDP frame's purpose.
type MessageKind int

const (
	MsgHello MessageKind = iota
	MsgGoodbye
)

// UDPMessage is the decoded form of a Dukto UDP frame. For MsgGoodbye,
// Port and Signature are unset.
type UDPMessage struct {
	Kind      MessageKind
	Broadcast bool // true if this frame arrived as a broadcast (0x01/0x04); such hellos require a unicast reply
	Port      int  // the sender's advertised TCP port (DefaultTCPPort if the frame omitted one)
	Signature string
}

// PackHello encodes a hello frame. broadcast selects opcode 0x01/0x04 vs.
// 0x02/0x05; tcpPort is omitted from the wire (and the plain opcodes used)
// when it equals DefaultTCPPort, matching pack_hello's dest/port branch.
func PackHello(signature string, tcpPort int, broadcast bool) []byte {
	var buf bytes.Buffer
	if tcpPort == DefaultTCPPort {
		if broadcast {
			buf.WriteByte(opHelloBroadcast)
		} else {
			buf.WriteByte(opHelloUnicast)
		}
	} else {
		if broadcast {
			buf.WriteByte(opHelloBroadcastPort)
		} else {
			buf.WriteByte(opHelloUnicastPort)
		}
		var portBytes [2]byte
		binary.LittleEndian.PutUint16(portBytes[:], uint16(int16(tcpPort)))
		buf.Write(portBytes[:])
	}
	buf.WriteString(signature)
	return buf.Bytes()
}

// PackGoodbye encodes the single goodbye frame (opcode 0x03, "Bye Bye").
func PackGoodbye() []byte {
	buf := make([]byte, 0, 1+len(goodbyePayload))
	buf = append(buf, opGoodbye)
	buf = append(buf, goodbyePayload...)
	return buf
}

// DecodeUDP decodes one Dukto UDP frame. Signature is returned undecoded
// from UTF-8 bytes as-is; callers compare it against the local signature
// to implement the "drop self-hellos" rule (§4.2.1), which this package
// leaves to the discovery layer since it has no notion of "self".
func DecodeUDP(data []byte) (UDPMessage, error) {
	if len(data) < 1 {
		return UDPMessage{}, xerrors.DecodeError{Reason: "empty udp frame"}
	}
	op := data[0]
	rest := data[1:]
	switch op {
	case opGoodbye:
		return UDPMessage{Kind: MsgGoodbye}, nil
	case opHelloBroadcast, opHelloUnicast:
		return UDPMessage{
			Kind:      MsgHello,
			Broadcast: op == opHelloBroadcast,
			Port:      DefaultTCPPort,
			Signature: string(rest),
		}, nil
	case opHelloBroadcastPort, opHelloUnicastPort:
		if len(rest) < 2 {
			return UDPMessage{}, xerrors.DecodeError{Reason: "hello-with-port frame too short"}
		}
		port := int(int16(binary.LittleEndian.Uint16(rest[:2])))
		return UDPMessage{
			Kind:      MsgHello,
			Broadcast: op == opHelloBroadcastPort,
			Port:      port,
			Signature: string(rest[2:]),
		}, nil
	default:
		return UDPMessage{}, xerrors.DecodeError{Reason: "unknown dukto udp opcode"}
	}
}
