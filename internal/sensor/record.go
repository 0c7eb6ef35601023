package sensor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Recorder wraps a Source and appends every reading it returns to w in the
// replay format, so a live session can be played back later.
type Recorder struct {
	src Source
	w   *bufio.Writer
	c   io.Closer

	mu    sync.Mutex
	first time.Time
	n     int
	err   error
}

func NewRecorder(src Source, w io.Writer) *Recorder {
	r := &Recorder{src: src, w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		r.c = c
	}
	return r
}

// CreateRecorder truncates path and records src into it.
func CreateRecorder(src Source, path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}
	r := NewRecorder(src, f)
	if _, err := fmt.Fprintf(r.w, "# recorded %s\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("record: %w", err)
	}
	return r, nil
}

// Next returns the wrapped source's reading unchanged. A write failure stops
// recording but not the source; it is reported by Close.
func (r *Recorder) Next(ctx context.Context) (Reading, error) {
	reading, err := r.src.Next(ctx)
	if err != nil {
		return reading, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return reading, nil
	}
	if r.first.IsZero() {
		r.first = reading.At
	}
	b, err := json.Marshal(RecordFromReading(reading, r.first))
	if err == nil {
		b = append(b, '\n')
		_, err = r.w.Write(b)
	}
	if err != nil {
		r.err = fmt.Errorf("record: %w", err)
		return reading, nil
	}
	r.n++
	return reading, nil
}

// RecordFromReading converts a reading into a replay record timed relative
// to origin.
func RecordFromReading(reading Reading, origin time.Time) Record {
	rec := Record{
		TMs:   reading.At.Sub(origin).Milliseconds(),
		Pitch: reading.Attitude.Pitch,
		AX:    reading.Accel.X,
		AY:    reading.Accel.Y,
	}
	if rec.TMs < 0 {
		rec.TMs = 0
	}
	switch {
	case reading.AttitudeErr != nil && reading.AccelErr != nil:
		rec.Err = "both"
	case reading.AttitudeErr != nil:
		rec.Err = "attitude"
	case reading.AccelErr != nil:
		rec.Err = "accel"
	}
	return rec
}

// Recorded is the number of readings written so far.
func (r *Recorder) Recorded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Close flushes the log and closes both the output and the wrapped source.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.err
	if ferr := r.w.Flush(); ferr != nil && err == nil {
		err = fmt.Errorf("record: %w", ferr)
	}
	if r.c != nil {
		if cerr := r.c.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("record: %w", cerr)
		}
	}
	if serr := r.src.Close(); serr != nil && err == nil {
		err = serr
	}
	return err
}
