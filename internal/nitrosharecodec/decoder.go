// The NitroShare receive state machine, resumable at every byte boundary
// exactly like duktocodec's Decoder (§4.3: "the decoder presents the same
// ReceiveState shape and callbacks as Dukto"). The difference is framing:
// item headers are length-prefixed JSON instead of a NUL-terminated name
// plus a fixed-width binary size, so the length prefix itself is awaited
// as its own small sub-state before the JSON payload it describes.
package nitrosharecodec

import (
	"encoding/binary"
	"encoding/json"

	"github.com/ShivamForkedRepos/ndrop/internal/recv"
	"github.com/ShivamForkedRepos/ndrop/internal/xerrors"
)

type state int

const (
	stateAwaitingTransferLen state = iota
	stateAwaitingTransferBody
	stateAwaitingItemLen
	stateAwaitingItemBody
	stateStreamingData
)

// Decoder is one connection's NitroShare receive-side state. A fresh
// Decoder is constructed per accepted connection, same discipline as
// duktocodec.Decoder.
type Decoder struct {
	handler recv.Handler

	state   state
	buf     []byte
	pending uint32 // length prefix just read, awaiting its body

	itemsExpected int
	itemsDone     int
	bytesExpected int64
	bytesDone     int64

	currentName      string
	currentSize      int64
	currentRemaining int64
}

// NewDecoder returns a Decoder awaiting a transfer header.
func NewDecoder(handler recv.Handler) *Decoder {
	return &Decoder{handler: handler, state: stateAwaitingTransferLen}
}

// Feed behaves exactly as duktocodec.Decoder.Feed: append, then advance the
// state machine as far as buffered bytes allow.
func (d *Decoder) Feed(data []byte) error {
	d.buf = append(d.buf, data...)
	for {
		progressed, err := d.step()
		if err != nil {
			return err
		}
		if !progressed {
			return nil
		}
	}
}

func (d *Decoder) takeLengthPrefix() (uint32, bool) {
	if len(d.buf) < 4 {
		return 0, false
	}
	n := binary.BigEndian.Uint32(d.buf[:4])
	d.buf = d.buf[4:]
	return n, true
}

func (d *Decoder) step() (progressed bool, err error) {
	switch d.state {
	case stateAwaitingTransferLen:
		n, ok := d.takeLengthPrefix()
		if !ok {
			return false, nil
		}
		d.pending = n
		d.state = stateAwaitingTransferBody
		return true, nil

	case stateAwaitingTransferBody:
		if uint32(len(d.buf)) < d.pending {
			return false, nil
		}
		payload := d.buf[:d.pending]
		d.buf = d.buf[d.pending:]
		var hdr TransferHeader
		if err := json.Unmarshal(payload, &hdr); err != nil {
			return false, xerrors.DecodeError{Reason: "malformed nitroshare transfer header: " + err.Error()}
		}
		if hdr.Count < 0 || hdr.Size < 0 {
			return false, xerrors.DecodeError{Reason: "negative count/size in nitroshare transfer header"}
		}
		d.itemsExpected = hdr.Count
		d.itemsDone = 0
		d.bytesExpected = hdr.Size
		d.bytesDone = 0
		if d.itemsExpected == 0 {
			d.state = stateAwaitingTransferLen
			return true, nil
		}
		d.state = stateAwaitingItemLen
		return true, nil

	case stateAwaitingItemLen:
		n, ok := d.takeLengthPrefix()
		if !ok {
			return false, nil
		}
		d.pending = n
		d.state = stateAwaitingItemBody
		return true, nil

	case stateAwaitingItemBody:
		if uint32(len(d.buf)) < d.pending {
			return false, nil
		}
		payload := d.buf[:d.pending]
		d.buf = d.buf[d.pending:]
		var item ItemHeader
		if err := json.Unmarshal(payload, &item); err != nil {
			return false, xerrors.DecodeError{Reason: "malformed nitroshare item header: " + err.Error()}
		}
		d.currentName = item.Name
		d.currentSize = item.Size
		d.currentRemaining = item.Size

		if item.Directory {
			d.handler.OnDirectory(item.Name)
			return true, d.finishItem()
		}
		d.handler.OnFileBegin(item.Name, item.Size)
		if item.Size <= 0 {
			d.handler.OnFileFinish(item.Name)
			return true, d.finishItem()
		}
		d.state = stateStreamingData
		return true, nil

	case stateStreamingData:
		if len(d.buf) == 0 {
			return false, nil
		}
		n := d.currentRemaining
		if int64(len(d.buf)) < n {
			n = int64(len(d.buf))
		}
		chunk := d.buf[:n]
		d.buf = d.buf[n:]
		d.currentRemaining -= n
		d.bytesDone += n
		d.handler.OnFileChunk(d.currentName, chunk, d.currentSize-d.currentRemaining, d.currentSize, d.bytesDone, d.bytesExpected)

		if d.currentRemaining == 0 {
			d.handler.OnFileFinish(d.currentName)
			return true, d.finishItem()
		}
		return true, nil

	default:
		return false, xerrors.DecodeError{Reason: "nitroshare decoder in unknown state"}
	}
}

// finishItem advances past one completed item and, once every item has
// been seen, returns to idle, surfacing any bytes remaining beyond the
// declared totals as a DecodeError (same resolved Open Question as
// duktocodec, §9).
func (d *Decoder) finishItem() error {
	d.itemsDone++
	if d.itemsDone < d.itemsExpected {
		d.state = stateAwaitingItemLen
		return nil
	}
	d.state = stateAwaitingTransferLen
	if d.bytesDone != d.bytesExpected {
		return xerrors.DecodeError{Reason: "nitroshare transfer byte count mismatch"}
	}
	if len(d.buf) > 0 {
		d.buf = nil
		return xerrors.DecodeError{Reason: "trailing bytes after completed nitroshare transfer"}
	}
	return nil
}
