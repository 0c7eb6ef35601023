package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"tiltgame/internal/motion"
	"tiltgame/internal/sensor"
)

type replaySummary struct {
	Records          int
	Duration         time.Duration
	AttitudeFailures int
	AccelFailures    int
	Tilted           int
	MaxPitchDeg      int
}

// summarizeReplay counts failures and how often the recorded attitude would
// be classified as tilted at thresholdDeg.
func summarizeReplay(recs []sensor.Record, thresholdDeg int) replaySummary {
	var s replaySummary
	s.Records = len(recs)
	if len(recs) == 0 {
		return s
	}
	s.Duration = time.Duration(recs[len(recs)-1].TMs) * time.Millisecond

	for _, r := range recs {
		attFail := r.Err == "attitude" || r.Err == "both"
		if attFail {
			s.AttitudeFailures++
		}
		if r.Err == "accel" || r.Err == "both" {
			s.AccelFailures++
		}
		if attFail {
			continue
		}
		deg := motion.PitchMagnitudeDeg(r.Pitch)
		if deg > s.MaxPitchDeg {
			s.MaxPitchDeg = deg
		}
		if motion.ClassifyPitch(r.Pitch, thresholdDeg) == motion.Tilted {
			s.Tilted++
		}
	}
	return s
}

func printReplaySummary(w io.Writer, path string, thresholdDeg int) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	recs, err := sensor.ParseRecords(f)
	if err != nil {
		return err
	}
	s := summarizeReplay(recs, thresholdDeg)

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "records: %d\n", s.Records)
	fmt.Fprintf(w, "duration: %s\n", s.Duration)
	fmt.Fprintf(w, "attitude_failures: %d\n", s.AttitudeFailures)
	fmt.Fprintf(w, "accel_failures: %d\n", s.AccelFailures)
	fmt.Fprintf(w, "tilted: %d (threshold %d deg)\n", s.Tilted, thresholdDeg)
	fmt.Fprintf(w, "max_pitch_deg: %d\n", s.MaxPitchDeg)
	return nil
}
