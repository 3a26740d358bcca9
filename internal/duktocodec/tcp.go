// TCP frame encoding: header + entries (§4.2.2, §4.2.4).
package duktocodec

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/ShivamForkedRepos/ndrop/internal/recv"
	"github.com/ShivamForkedRepos/ndrop/internal/transferplan"
	"github.com/ShivamForkedRepos/ndrop/internal/xerrors"
)

// defaultFlushMargin sets the batch flush threshold at ChunkSize-1024,
// amortizing syscalls per §4.2.4 with an accumulate-then-yield write loop.
const defaultFlushMargin = 1024

// ChunkProgress reports one outbound slice of a file being sent, in the
// same shape as recv.Handler's OnFileChunk (§3 TransferReport).
type ChunkProgress func(relPath string, chunk []byte, bytesInFile, fileSize, bytesTotal, totalSize int64)

// FileFinishReporter reports that a file's bytes have all been queued for
// send.
type FileFinishReporter func(relPath string)

// Encoder streams TransferPlans and text onto an io.Writer in Dukto wire
// format. ChunkSize is fixed at construction rather than a package-level
// constant, so multiple Encoders can run concurrently with different
// outbound buffer sizes.
type Encoder struct {
	ChunkSize int
}

// NewEncoder builds an Encoder. chunkSize should be the outbound socket's
// send-buffer size, queried once at startup by the caller (§4.2.4);
// callers that pass 0 get a conservative 32KiB default.
func NewEncoder(chunkSize int) *Encoder {
	if chunkSize <= 0 {
		chunkSize = 32 * 1024
	}
	return &Encoder{ChunkSize: chunkSize}
}

func packInt64(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

// EncodeText writes a complete one-entry text transfer: header, the
// TextSentinel path, and the UTF-8 bytes of text.
func (e *Encoder) EncodeText(w io.Writer, text string) error {
	payload := []byte(text)
	var buf bytes.Buffer
	buf.Write(packInt64(1))
	buf.Write(packInt64(int64(len(payload))))
	buf.WriteString(recv.TextSentinel)
	buf.WriteByte(0)
	buf.Write(packInt64(int64(len(payload))))
	buf.Write(payload)
	_, err := w.Write(buf.Bytes())
	return err
}

// EncodeFiles writes the header followed by every entry of plan, reading
// file bytes from disk in ChunkSize slices. Entry headers and file bytes
// accumulate in a batch that is written once it grows past
// ChunkSize-defaultFlushMargin (or past ChunkSize, when that threshold
// would be under 4096), so a single write can exceed the threshold by up
// to one ChunkSize read; the rest is written at the end. onChunk/onFinish,
// when non-nil, report
// progress exactly as the file's bytes are queued for write.
func (e *Encoder) EncodeFiles(w io.Writer, plan transferplan.Plan, onChunk ChunkProgress, onFinish FileFinishReporter) error {
	if _, err := w.Write(packInt64(int64(len(plan.Entries)))); err != nil {
		return err
	}
	if _, err := w.Write(packInt64(plan.TotalBytes)); err != nil {
		return err
	}

	var batch bytes.Buffer
	flushLimit := e.ChunkSize - defaultFlushMargin
	if flushLimit < 4096 {
		flushLimit = e.ChunkSize
	}

	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		_, err := w.Write(batch.Bytes())
		batch.Reset()
		return err
	}

	var totalSent int64
	for _, ent := range plan.Entries {
		batch.WriteString(ent.RelativePath)
		batch.WriteByte(0)
		if ent.Kind == transferplan.Directory {
			batch.Write(packInt64(-1))
			continue
		}
		batch.Write(packInt64(ent.Size))

		if ent.Size > 0 {
			f, err := os.Open(ent.AbsPath())
			if err != nil {
				return xerrors.IOError{Path: ent.AbsPath(), Err: err}
			}
			var sentInFile int64
			readBuf := make([]byte, e.ChunkSize)
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
						if ferr := flush(); ferr != nil {
							f.Close()
							return ferr
						}
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
			f.Close()
		}
		if onFinish != nil {
			onFinish(ent.RelativePath)
		}
	}
	return flush()
}

