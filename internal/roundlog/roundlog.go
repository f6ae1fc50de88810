// Package roundlog records a per-round trace of a simulation as
// zstd-compressed JSON lines.
package roundlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/signalsfoundry/item-routing-simulator/core"
)

// Entry is one completed round. Inspections are cumulative since the
// start of the run.
type Entry struct {
	Round        int      `json:"round"`
	Inspections  []uint64 `json:"inspections"`
	QueueLengths []int    `json:"queue_lengths"`
	TotalItems   int      `json:"total_items"`
}

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("roundlog: writer closed")

// Writer appends entries to a zstd stream. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	closer io.Closer
	enc    *zstd.Encoder
	w      *bufio.Writer
	err    error
}

// NewWriter compresses entries into dst. Close flushes the stream but does
// not close dst.
func NewWriter(dst io.Writer) (*Writer, error) {
	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	return &Writer{enc: enc, w: bufio.NewWriterSize(enc, 64*1024)}, nil
}

// Create opens path (creating parent directories) and returns a Writer that
// owns the file.
func Create(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// Write appends one entry.
func (w *Writer) Write(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return ErrClosed
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Attach registers a round listener on engine that writes an entry after
// every round. The first write failure is kept and reported by Err and
// Close; later rounds are skipped.
func (w *Writer) Attach(engine *core.Engine) {
	engine.RegisterRoundListener(func(round int) {
		if w.Err() != nil {
			return
		}
		err := w.Write(Entry{
			Round:        round,
			Inspections:  engine.InspectionCounts(),
			QueueLengths: engine.QueueLengths(),
			TotalItems:   engine.TotalItems(),
		})
		if err != nil {
			w.mu.Lock()
			w.err = fmt.Errorf("round %d: %w", round, err)
			w.mu.Unlock()
		}
	})
}

// Err returns the first error seen by an attached listener.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close flushes buffered entries and finishes the zstd frame.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return w.err
	}
	errs := []error{w.err, w.w.Flush(), w.enc.Close()}
	if w.closer != nil {
		errs = append(errs, w.closer.Close())
	}
	w.w, w.enc, w.closer = nil, nil, nil
	return errors.Join(errs...)
}

// ReadAll decodes every entry from a compressed round log.
func ReadAll(r io.Reader) ([]Entry, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var out []Entry
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadFile is ReadAll over the file at path.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadAll(f)
}
