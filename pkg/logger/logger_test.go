package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	log, err := New(Config{Level: "info", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	log.Debug().Msg("hidden")
	log.Info().Str("ticker", "AAPL").Msg("trained")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(b)
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug message should be filtered at info level")
	}
	if !strings.Contains(out, `"ticker":"AAPL"`) {
		t.Fatalf("expected structured field in %q", out)
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}
