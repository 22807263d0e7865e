package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soaringjerry/Previsit/internal/config"
)

func TestNewWritesJSON(t *testing.T) {
	out := filepath.Join(t.TempDir(), "app.log")
	log, err := New(config.LogConfig{Level: "debug", Format: "json", OutputPath: out})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	log.Info("submission persisted")
	_ = log.Sync()
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), `"msg":"submission persisted"`) || !strings.Contains(string(b), `"service":"previsit"`) {
		t.Fatalf("unexpected log line %s", b)
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "loud", Format: "console"}); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}
