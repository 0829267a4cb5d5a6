package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestConfigFromEnv(t *testing.T) {
	cases := []struct {
		name  string
		level string
		dev   string
		want  Config
	}{
		{"defaults", "", "", Config{Level: "info"}},
		{"dev defaults to debug", "", "1", Config{Level: "debug", Dev: true}},
		{"explicit level wins", "WARN", "1", Config{Level: "warn", Dev: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tc.level)
			t.Setenv("LOG_DEV", tc.dev)
			t.Setenv("LOG_FILE", "")
			if got := ConfigFromEnv(); got != tc.want {
				t.Fatalf("ConfigFromEnv = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestLevelFromString(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := levelFromString(in); got != want {
			t.Fatalf("levelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l, err := Init(Config{Level: "info", Output: &buf})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	l.Debug("hidden")
	l.Info("shown", zap.String("k", "v"))
	_ = l.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected JSON output: %v", err)
	}
	if entry["msg"] != "shown" || entry["k"] != "v" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestInitRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gosession.log")
	l, err := Init(Config{Level: "info", File: path})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	l.Info("to file")
	_ = l.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read linked log: %v", err)
	}
	if !strings.Contains(string(raw), `"msg":"to file"`) {
		t.Fatalf("unexpected log contents %q", raw)
	}
}

func TestMiddlewareLogsStatus(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	h := Middleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/me", nil))

	entries := logs.FilterMessage("http request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) || fields["path"] != "/auth/me" || fields["size"] != int64(5) {
		t.Fatalf("unexpected fields %v", fields)
	}
}
