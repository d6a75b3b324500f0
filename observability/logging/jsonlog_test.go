package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestJSONFileWritesStructuredLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "node.json")
	f, err := OpenJSONFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if f.Path() != path {
		t.Fatalf("path = %q", f.Path())
	}

	f.Logger().Info("slot elected", "slot", 42)
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("reopen log: %v", err)
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		t.Fatalf("log file empty")
	}
	var entry map[string]any
	if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if entry["message"] != "slot elected" {
		t.Fatalf("entry = %v", entry)
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Fatalf("missing timestamp: %v", entry)
	}
	if entry["slot"] != float64(42) {
		t.Fatalf("missing attribute: %v", entry)
	}
}

func TestOpenJSONFileRejectsBadPath(t *testing.T) {
	dir := t.TempDir()
	if _, err := OpenJSONFile(dir); err == nil {
		t.Fatalf("opening a directory as a log file should fail")
	}
}
