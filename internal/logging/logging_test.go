package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetup_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "edil.log")

	out, err := Setup(Options{File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("Setup() failed: %v", err)
	}

	out.Logger("sync").Printf("Sync complete")
	if err := out.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	if !strings.Contains(string(data), "[sync] ") || !strings.Contains(string(data), "Sync complete") {
		t.Errorf("log content = %q", data)
	}
}

func TestSetup_Discard(t *testing.T) {
	out, err := Setup(Options{})
	if err != nil {
		t.Fatalf("Setup() failed: %v", err)
	}
	if out.Writer() != io.Discard {
		t.Error("Writer() should discard without file or verbose")
	}
	if err := out.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
}
