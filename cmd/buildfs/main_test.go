package main

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestReloadLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buildfs.yaml")
	if err := os.WriteFile(path, []byte("logLevel: error\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	name, err := reloadLogLevel(path, level)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if name != "error" || level.Level() != zap.ErrorLevel {
		t.Errorf("expected error level, got %s", level.Level())
	}

	if _, err := reloadLogLevel(filepath.Join(t.TempDir(), "missing.yaml"), level); err == nil {
		t.Error("expected error for a missing config file")
	}
	if level.Level() != zap.ErrorLevel {
		t.Errorf("a failed reload must keep the level, got %s", level.Level())
	}
}
