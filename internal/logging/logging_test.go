package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":        zap.InfoLevel,
		"INFO":    zap.InfoLevel,
		"debug":   zap.DebugLevel,
		"warning": zap.WarnLevel,
		" error ": zap.ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewWithOutput_TeesToBuffer(t *testing.T) {
	var out, tee bytes.Buffer
	l := NewWithOutput(zap.InfoLevel, zapcore.AddSync(&out), &tee)

	l.Debug("hidden")
	l.Info("tick", zap.Int("n", 3))
	_ = l.Sync()

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &rec); err != nil {
		t.Fatalf("stderr output is not one JSON line: %v (%q)", err, out.String())
	}
	if rec["msg"] != "tick" || rec["n"] != float64(3) {
		t.Fatalf("rec=%v", rec)
	}
	if !strings.Contains(tee.String(), "tick") || strings.Contains(tee.String(), "hidden") {
		t.Fatalf("tee=%q", tee.String())
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatalf("expected nop logger")
	}
	l := zap.NewExample()
	if OrNop(l) != l {
		t.Fatalf("expected same logger")
	}
}
