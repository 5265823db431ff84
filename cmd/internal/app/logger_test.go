package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewLogger_Formats(t *testing.T) {
	var jsonBuf, prettyBuf bytes.Buffer

	newLogger(&jsonBuf, "info", "json", false).Info("auth.login.ok", "principal_id", "p1")
	newLogger(&prettyBuf, "info", "pretty", false).Info("auth.login.ok", "principal_id", "p1")

	if !strings.HasPrefix(jsonBuf.String(), "{") || !strings.Contains(jsonBuf.String(), `"msg":"auth.login.ok"`) {
		t.Fatalf("json output=%q", jsonBuf.String())
	}
	out := prettyBuf.String()
	if !strings.Contains(out, "[INFO]") || !strings.Contains(out, "msg=auth.login.ok") || !strings.Contains(out, "principal_id=p1") {
		t.Fatalf("pretty output=%q", out)
	}
}

func TestNewLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "warn", "json", false)
	log.Info("dropped")
	log.Warn("kept")

	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Fatalf("output=%q", buf.String())
	}
}
