package trace

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"git.unix.lgbt/schedcore/schedcore/schedcore"
	"git.unix.lgbt/schedcore/schedcore/trace/backreader"
)

// Reader replays a trace file written by Writer, from its first entry
// onward.
type Reader struct {
	b *bufio.Reader
}

// NewReader wraps r for forward replay.
func NewReader(r io.Reader) *Reader {
	return &Reader{bufio.NewReader(r)}
}

// Read returns the next entry in the trace, or io.EOF once exhausted.
func (r *Reader) Read() (*Entry, error) {
	line, err := r.b.ReadSlice('\n')
	if err != nil && len(line) == 0 {
		return nil, err
	}

	return decodeEntry(line)
}

func decodeEntry(line []byte) (*Entry, error) {
	var raw struct {
		Time json.RawMessage `json:"time"`
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to decode trace entry")
	}

	ev := schedcore.NewEvent(raw.Type)
	if ev == nil {
		return nil, fmt.Errorf("unknown trace event type %q", raw.Type)
	}

	if err := json.Unmarshal(raw.Data, ev); err != nil {
		return nil, errors.Wrap(err, "failed to decode trace event data")
	}

	entry := &Entry{Type: raw.Type, Data: ev}
	if err := json.Unmarshal(raw.Time, &entry.Time); err != nil {
		return nil, errors.Wrap(err, "failed to decode trace entry timestamp")
	}

	return entry, nil
}

// TailReader replays a trace file backward, most recent entry first,
// using backreader so only the tail actually read is loaded into memory.
type TailReader struct {
	b *backreader.Reader
}

// NewTailReader wraps r for backward replay.
func NewTailReader(r io.ReadSeeker) *TailReader {
	return &TailReader{backreader.New(r)}
}

// Read returns the previous entry in the trace (walking from the end
// towards the beginning), or io.EOF once the start of the file is reached.
func (t *TailReader) Read() (*Entry, error) {
	tok, err := t.b.ReadUntil('\n')
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(tok)) == 0 {
		return t.Read()
	}
	return decodeEntry(tok)
}

// Tail reads the n most recent entries, oldest first.
func Tail(r io.ReadSeeker, n int) ([]*Entry, error) {
	t := NewTailReader(r)

	entries := make([]*Entry, 0, n)
	for len(entries) < n {
		ev, err := t.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		entries = append(entries, ev)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return entries, nil
}
