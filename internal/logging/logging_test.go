package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	log := New("warn", true, &buf)
	log.Info("hidden")
	log.Warn("shown", slog.Int("index", 3))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"index":3`) {
		t.Errorf("unexpected JSON output: %s", out)
	}

	buf.Reset()
	New("debug", false, &buf).Debug("text", slog.String("k", "v"))
	if !strings.Contains(buf.String(), "msg=text k=v") {
		t.Errorf("unexpected text output: %s", buf.String())
	}
}
