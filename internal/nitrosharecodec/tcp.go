// TCP transfer encoding: a length-prefixed JSON transfer header, followed
// by one length-prefixed JSON item header per entry, followed by that
// item's raw bytes when it is a file (§4.3).
package nitrosharecodec

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/ShivamForkedRepos/ndrop/internal/transferplan"
	"github.com/ShivamForkedRepos/ndrop/internal/xerrors"
)

// TransferHeader precedes every NitroShare transfer, advertising the
// session identifier and the entry count/byte totals (§4.3).
type TransferHeader struct {
	SessionID string `json:"sessionId"`
	Count     int    `json:"count"`
	Size      int64  `json:"size"`
}

// ItemHeader describes one entry: {name, size, directory, created,
// last_modified, last_read} per §4.3. Timestamps are best-effort: this
// implementation stamps all three with the moment the item was sent,
// since the source filesystem's created/accessed times are not reliably
// available cross-platform from Go's standard library.
type ItemHeader struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	Directory    bool      `json:"directory"`
	Created      time.Time `json:"created"`
	LastModified time.Time `json:"last_modified"`
	LastRead     time.Time `json:"last_read"`
}

func writeLengthPrefixedJSON(w io.Writer, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// ChunkProgress mirrors duktocodec.ChunkProgress for the NitroShare sender.
type ChunkProgress func(relPath string, chunk []byte, bytesInFile, fileSize, bytesTotal, totalSize int64)

// FileFinishReporter mirrors duktocodec.FileFinishReporter.
type FileFinishReporter func(relPath string)

// Encoder streams a TransferPlan onto an io.Writer in NitroShare wire
// format. ChunkSize is fixed at construction, same instance-field
// discipline as duktocodec.Encoder (§9).
type Encoder struct {
	ChunkSize int
}

// NewEncoder builds an Encoder with the given read chunk size.
func NewEncoder(chunkSize int) *Encoder {
	if chunkSize <= 0 {
		chunkSize = 32 * 1024
	}
	return &Encoder{ChunkSize: chunkSize}
}

// EncodeFiles writes a complete NitroShare transfer for plan.
func (e *Encoder) EncodeFiles(w io.Writer, plan transferplan.Plan, onChunk ChunkProgress, onFinish FileFinishReporter) error {
	now := time.Now()
	if err := writeLengthPrefixedJSON(w, TransferHeader{
		SessionID: NewSessionID(),
		Count:     len(plan.Entries),
		Size:      plan.TotalBytes,
	}); err != nil {
		return err
	}

	var totalSent int64
	for _, ent := range plan.Entries {
		item := ItemHeader{
			Name:         ent.RelativePath,
			Size:         ent.Size,
			Directory:    ent.Kind == transferplan.Directory,
			Created:      now,
			LastModified: now,
			LastRead:     now,
		}
		if err := writeLengthPrefixedJSON(w, item); err != nil {
			return err
		}
		if item.Directory || ent.Size <= 0 {
			if onFinish != nil && !item.Directory {
				onFinish(ent.RelativePath)
			}
			continue
		}

		f, err := os.Open(ent.AbsPath())
		if err != nil {
			return xerrors.IOError{Path: ent.AbsPath(), Err: err}
		}
		var sentInFile int64
		readBuf := make([]byte, e.ChunkSize)
		var batch bytes.Buffer
		flushLimit := e.ChunkSize - 1024
		if flushLimit < 4096 {
			flushLimit = e.ChunkSize
		}
		for {
			n, rerr := f.Read(readBuf)
			if n > 0 {
				chunk := append([]byte(nil), readBuf[:n]...)
				batch.Write(chunk)
				sentInFile += int64(n)
				totalSent += int64(n)
				if onChunk != nil {
					onChunk(ent.RelativePath, chunk, sentInFile, ent.Size, totalSent, plan.TotalBytes)
				}
				if batch.Len() > flushLimit {
					if _, werr := w.Write(batch.Bytes()); werr != nil {
						f.Close()
						return werr
					}
					batch.Reset()
				}
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				f.Close()
				return xerrors.IOError{Path: ent.AbsPath(), Err: rerr}
			}
		}
		if batch.Len() > 0 {
			if _, err := w.Write(batch.Bytes()); err != nil {
				f.Close()
				return err
			}
		}
		f.Close()
		if onFinish != nil {
			onFinish(ent.RelativePath)
		}
	}
	return nil
}
