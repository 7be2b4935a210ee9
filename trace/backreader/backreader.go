// Package backreader implements a buffered reader that scans a seekable
// stream backwards, one delimited token at a time, without loading the
// whole stream into memory.
package backreader

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

var maxChunk = bufio.MaxScanTokenSize

// Reader reads tokens from the end of r towards its beginning.
type Reader struct {
	r   io.ReadSeeker
	buf []byte
	end int64 // offset last sought to; bounds how much of buf is still unread
}

// New wraps r for backward reading. r's current position is ignored; the
// first read starts from the end of the stream.
func New(r io.ReadSeeker) *Reader {
	return &Reader{r: r}
}

// ReadUntil returns the bytes since the previous delim (exclusive of
// delim), working backwards from the end of the stream. It returns io.EOF
// once the beginning of the stream has been consumed.
func (r *Reader) ReadUntil(delim byte) ([]byte, error) {
	for {
		if r.buf == nil {
			if err := r.fill(); err != nil {
				return nil, err
			}
			continue
		}

		for i := len(r.buf) - 1; i >= 0; i-- {
			atStart := i == 0 && r.end == 0

			if r.buf[i] != delim && !atStart {
				continue
			}

			tok := r.buf[i:]
			r.buf = r.buf[:i]

			if len(tok) > 0 && tok[0] == delim {
				tok = tok[1:]

				if atStart && len(tok) > 0 {
					r.buf = r.buf[:1]
				}
			}

			return tok, nil
		}

		if len(r.buf) == cap(r.buf) {
			return nil, bufio.ErrTooLong
		}

		if err := r.fill(); err != nil {
			return nil, err
		}
	}
}

func (r *Reader) fill() error {
	if r.buf == nil {
		offset, err := r.r.Seek(0, io.SeekEnd)
		if err != nil {
			return errors.Wrap(err, "failed to find end of stream")
		}
		r.end = offset
		r.buf = make([]byte, 0, maxChunk)
	}

	if r.end == 0 {
		return io.EOF
	}

	capacity := int64(cap(r.buf))
	usable := capacity

	if len(r.buf) > 0 {
		usable -= int64(len(r.buf))
		r.buf = r.buf[:cap(r.buf)]
		copy(r.buf[usable:], r.buf)
	}

	seekTo := r.end - usable
	readFrom := int64(0)

	if seekTo < 0 {
		readFrom = usable - r.end
		seekTo = 0
	}

	if _, err := r.r.Seek(seekTo, io.SeekStart); err != nil {
		return errors.Wrap(err, "failed to seek backwards")
	}
	r.end = seekTo

	if _, err := io.ReadFull(r.r, r.buf[readFrom:usable]); err != nil {
		return errors.Wrap(err, "failed to read seeked chunk")
	}

	r.buf = r.buf[readFrom:cap(r.buf)]
	return nil
}
