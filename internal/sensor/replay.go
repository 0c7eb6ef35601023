package sensor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"tiltgame/internal/motion"
)

// Replay log format: newline-delimited JSON, one object per tick.
//
//	{"t_ms": 0, "pitch": 0.01, "ax": 0.02, "ay": -0.10}
//	{"t_ms": 20, "err": "attitude"}
//
// t_ms is milliseconds since the first record and must not decrease. err
// injects a read failure: "attitude", "accel" or "both". Blank lines and
// lines starting with '#' are ignored.

type Record struct {
	TMs   int64   `json:"t_ms"`
	Pitch float64 `json:"pitch"`
	AX    float64 `json:"ax"`
	AY    float64 `json:"ay"`
	Err   string  `json:"err,omitempty"`
}

func ParseRecords(r io.Reader) ([]Record, error) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var recs []Record
	lineNo := 0
	var lastMs int64
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("replay: line %d: %w", lineNo, err)
		}
		switch rec.Err {
		case "", "attitude", "accel", "both":
		default:
			return nil, fmt.Errorf("replay: line %d: unknown err %q", lineNo, rec.Err)
		}
		if rec.TMs < 0 {
			return nil, fmt.Errorf("replay: line %d: negative t_ms", lineNo)
		}
		if rec.TMs < lastMs {
			return nil, fmt.Errorf("replay: line %d: t_ms went backwards (%d < %d)", lineNo, rec.TMs, lastMs)
		}
		lastMs = rec.TMs
		recs = append(recs, rec)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	return recs, nil
}

func (rec Record) reading(at time.Time) Reading {
	r := Reading{
		At:       at,
		Attitude: motion.AttitudeSample{Pitch: rec.Pitch},
		Accel:    motion.AccelerationSample{X: rec.AX, Y: rec.AY},
	}
	if rec.Err == "attitude" || rec.Err == "both" {
		r.AttitudeErr = ErrDropout
	}
	if rec.Err == "accel" || rec.Err == "both" {
		r.AccelErr = ErrDropout
	}
	return r
}

type ReplayConfig struct {
	Speed float64
	Loop  bool
}

// Replay plays back recorded ticks, honouring their relative timing scaled
// by Speed.
type Replay struct {
	recs  []Record
	cfg   ReplayConfig
	idx   int
	start time.Time
	// offset accumulates the duration of completed loops.
	offset time.Duration
	now    func() time.Time
}

func NewReplay(recs []Record, cfg ReplayConfig) (*Replay, error) {
	if len(recs) == 0 {
		return nil, fmt.Errorf("replay: no records")
	}
	if cfg.Speed == 0 {
		cfg.Speed = 1
	}
	if cfg.Speed < 0 {
		return nil, fmt.Errorf("replay: speed must be > 0")
	}
	return &Replay{recs: recs, cfg: cfg, now: time.Now}, nil
}

func OpenReplay(path string, cfg ReplayConfig) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	defer f.Close()
	recs, err := ParseRecords(f)
	if err != nil {
		return nil, err
	}
	return NewReplay(recs, cfg)
}

func (p *Replay) Next(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}
	if p.idx >= len(p.recs) {
		if !p.cfg.Loop {
			return Reading{}, io.EOF
		}
		last := time.Duration(p.recs[len(p.recs)-1].TMs) * time.Millisecond
		// Keep one nominal tick between the end of a loop and the next start.
		p.offset += last + MinInterval
		p.idx = 0
	}
	if p.start.IsZero() {
		p.start = p.now()
	}
	rec := p.recs[p.idx]
	p.idx++

	due := p.start.Add(scale(p.offset+time.Duration(rec.TMs)*time.Millisecond, p.cfg.Speed))
	if wait := due.Sub(p.now()); wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return Reading{}, ctx.Err()
		case <-t.C:
		}
	}
	return rec.reading(p.now().UTC()), nil
}

func scale(d time.Duration, speed float64) time.Duration {
	return time.Duration(float64(d) / speed)
}

func (p *Replay) Close() error { return nil }

func (p *Replay) Len() int { return len(p.recs) }
