package web

import (
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"tiltgame/internal/game"
)

const serviceName = "tiltgame"

// GameState is the read side of the game loop used by status reporting.
type GameState interface {
	Snapshot() (game.Frame, game.Stats)
}

type Status struct {
	startUnixNano int64
	source        atomic.Value // string
	interval      atomic.Value // string
	sourceInfo    atomic.Value // map[string]any
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.source.Store("")
	s.interval.Store("")
	s.sourceInfo.Store(map[string]any{})
	return s
}

// SetStatic records values that do not change after startup. Empty values
// leave the current ones in place.
func (s *Status) SetStatic(source string, interval string, info map[string]any) {
	if source != "" {
		s.source.Store(source)
	}
	if interval != "" {
		s.interval.Store(interval)
	}
	if info != nil {
		s.sourceInfo.Store(info)
	}
}

type BuildInfo struct {
	GoVersion string `json:"go_version"`
	Version   string `json:"version,omitempty"`
	Commit    string `json:"commit,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
}

type StreamStats struct {
	Subscribers int    `json:"subscribers"`
	Dropped     uint64 `json:"dropped"`
}

type StatusSnapshot struct {
	Service    string         `json:"service"`
	NowUTC     string         `json:"now_utc"`
	UptimeSec  int64          `json:"uptime_sec"`
	Session    string         `json:"session,omitempty"`
	Source     string         `json:"source"`
	Interval   string         `json:"interval"`
	SourceInfo map[string]any `json:"source_info"`
	Frame      *game.Frame    `json:"frame,omitempty"`
	Stats      *game.Stats    `json:"stats,omitempty"`
	Stream     *StreamStats   `json:"stream,omitempty"`
	Build      BuildInfo      `json:"build"`
}

// Snapshot assembles the status view. gs and events may be nil.
func (s *Status) Snapshot(nowUTC time.Time, gs GameState, events *EventBroadcaster) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:    serviceName,
		NowUTC:     nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec:  int64(nowUTC.Sub(start).Seconds()),
		Source:     s.source.Load().(string),
		Interval:   s.interval.Load().(string),
		SourceInfo: s.sourceInfo.Load().(map[string]any),
		Build:      readBuildInfo(),
	}
	if gs != nil {
		f, st := gs.Snapshot()
		snap.Session = f.Session
		snap.Frame = &f
		snap.Stats = &st
	}
	if events != nil {
		snap.Stream = &StreamStats{Subscribers: events.Subscribers(), Dropped: events.Dropped()}
	}
	return snap
}

func readBuildInfo() BuildInfo {
	out := BuildInfo{GoVersion: runtime.Version()}
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi == nil {
		return out
	}
	out.Version = bi.Main.Version
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Commit = s.Value
		case "vcs.modified":
			out.Dirty = s.Value == "true"
		}
	}
	return out
}
