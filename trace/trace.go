// Package trace provides on-disk tracing of a schedcore.Engine: a
// line-delimited JSON journaler, a file-locked single-writer variant, a
// human-readable sink, a fan-out writer, and a reader that can replay a
// trace file forward or tail its most recent entries.
package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"git.unix.lgbt/schedcore/schedcore/schedcore"
)

// Entry describes the on-disk JSON structure of a single traced event.
type Entry struct {
	Time time.Time       `json:"time"`
	Type string          `json:"type"`
	Data schedcore.Event `json:"data"`
}

// Writer is a journaler that writes line-delimited JSON entries into the
// underlying io.Writer. Each entry goes out in a single Write call on the
// underlying writer; Writer adds no locking of its own, so concurrent use
// is safe only when the underlying writer's Write is.
type Writer struct{ w io.Writer }

var _ schedcore.Journaler = Writer{}

// NewWriter wraps w as a trace.Writer.
func NewWriter(w io.Writer) Writer {
	return Writer{w}
}

// Write encodes ev as a timestamped JSON line and writes it in one call.
func (l Writer) Write(ev schedcore.Event) error {
	entry := Entry{
		Time: time.Now(),
		Type: ev.Type(),
		Data: ev,
	}

	buf := bytes.Buffer{}
	buf.Grow(256)

	if err := json.NewEncoder(&buf).Encode(entry); err != nil {
		return errors.Wrap(err, "failed to marshal trace entry")
	}

	if _, err := l.w.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "failed to write trace entry")
	}

	return nil
}

// FileLockJournaler is a Writer guarded by an exclusive file lock, so only
// one simulation run may own a given trace file at a time. The caller must
// Close it when done.
type FileLockJournaler struct {
	Writer
	f *os.File
	l *flock.Flock
}

// NewFileLockJournaler opens path for appending and acquires an exclusive
// lock on it, failing immediately if the lock is already held.
func NewFileLockJournaler(path string) (*FileLockJournaler, error) {
	return newFileLockJournaler(nil, path)
}

// NewFileLockJournalerWait is like NewFileLockJournaler but waits for the
// lock to become available or for ctx to expire.
func NewFileLockJournalerWait(ctx context.Context, path string) (*FileLockJournaler, error) {
	return newFileLockJournaler(ctx, path)
}

func newFileLockJournaler(ctx context.Context, path string) (*FileLockJournaler, error) {
	l := flock.New(path)

	var locked bool
	var err error

	if ctx != nil {
		locked, err = l.TryLockContext(ctx, 25*time.Millisecond)
	} else {
		locked, err = l.TryLock()
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to acquire trace file lock")
	}
	if !locked {
		return nil, errors.New("trace file lock not acquired")
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		l.Unlock()
		return nil, errors.Wrap(err, "failed to open trace file")
	}

	return &FileLockJournaler{
		Writer: Writer{f},
		f:      f,
		l:      l,
	}, nil
}

// Close closes the underlying file and releases the lock.
func (f *FileLockJournaler) Close() error {
	f.f.Close()
	return f.l.Unlock()
}

// HumanWriter renders events as short human-readable lines instead of JSON,
// for console output alongside (or instead of) a machine-readable trace.
type HumanWriter struct{ w io.Writer }

var _ schedcore.Journaler = HumanWriter{}

// NewHumanWriter wraps w as a trace.HumanWriter.
func NewHumanWriter(w io.Writer) HumanWriter {
	return HumanWriter{w}
}

func (h HumanWriter) Write(ev schedcore.Event) error {
	_, err := fmt.Fprintf(h.w, "%s %s\n", time.Now().Format("15:04:05.000"), describe(ev))
	if err != nil {
		return errors.Wrap(err, "failed to write human trace line")
	}
	return nil
}

func describe(ev schedcore.Event) string {
	switch e := ev.(type) {
	case *schedcore.EventForked:
		return fmt.Sprintf("fork pid=%d parent=%d priority=%d", e.Pid, e.Parent, e.Priority)
	case *schedcore.EventRun:
		return fmt.Sprintf("run pid=%d quantum=%d", e.Pid, e.Quantum)
	case *schedcore.EventSlept:
		return fmt.Sprintf("sleep pid=%d ticks=%d", e.Pid, e.Ticks)
	case *schedcore.EventWoke:
		return fmt.Sprintf("wake pid=%d", e.Pid)
	case *schedcore.EventSignalled:
		return fmt.Sprintf("signal pid=%d event=%d", e.Pid, e.Event)
	case *schedcore.EventExited:
		return fmt.Sprintf("exit pid=%d", e.Pid)
	case *schedcore.EventPanic:
		return "panic"
	case *schedcore.EventDeadlock:
		return "deadlock"
	case *schedcore.EventDone:
		return "done"
	case *schedcore.EventWarning:
		return fmt.Sprintf("warning component=%s message=%q", e.Component, e.Message)
	default:
		return ev.Type()
	}
}

// MultiWriter fans a single Write out to several journalers, returning the
// first error encountered (if any) after attempting all of them.
type MultiWriter []schedcore.Journaler

var _ schedcore.Journaler = MultiWriter(nil)

// NewMultiWriter builds a MultiWriter fanning out to all of js.
func NewMultiWriter(js ...schedcore.Journaler) MultiWriter {
	return MultiWriter(js)
}

func (m MultiWriter) Write(ev schedcore.Event) error {
	var first error
	for _, j := range m {
		if j == nil {
			continue
		}
		if err := j.Write(ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
