package temp

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCreateIn_persist(t *testing.T) {
	dir := t.TempDir()
	p, err := CreateIn(dir)
	if err != nil {
		t.Fatalf("CreateIn: %v", err)
	}
	defer p.Cleanup()

	if _, err := p.File().WriteString("payload"); err != nil {
		t.Fatalf("write: %v", err)
	}
	target := filepath.Join(dir, "final")
	if err := p.Persist(target); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read final: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("final contents = %q", data)
	}
	if _, err := os.Stat(p.Name()); !os.IsNotExist(err) {
		t.Fatalf("temp file still present after Persist: %v", err)
	}
}

func TestCreateIn_cleanupOnAbandon(t *testing.T) {
	dir := t.TempDir()
	p, err := CreateIn(dir)
	if err != nil {
		t.Fatalf("CreateIn: %v", err)
	}
	name := p.Name()
	p.Cleanup()

	if _, err := os.Stat(name); !os.IsNotExist(err) {
		t.Fatalf("expected temp file removed, stat err = %v", err)
	}

	// Cleanup after Cleanup must not panic or error.
	p.Cleanup()
}

func TestCreateIn_close(t *testing.T) {
	dir := t.TempDir()
	p, err := CreateIn(dir)
	if err != nil {
		t.Fatalf("CreateIn: %v", err)
	}
	name := p.Name()
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(name); !os.IsNotExist(err) {
		t.Fatalf("expected temp file removed after Close")
	}
	// Cleanup after Close must be a no-op, not a double-remove error.
	p.Cleanup()
}

func TestCreateIn_namePattern(t *testing.T) {
	dir := t.TempDir()
	p, err := CreateIn(dir)
	if err != nil {
		t.Fatalf("CreateIn: %v", err)
	}
	defer p.Cleanup()

	base := filepath.Base(p.Name())
	if len(base) < 3 || base[0] != '.' || base[len(base)-4:] != ".tmp" {
		t.Fatalf("unexpected temp file name shape: %q", base)
	}
}
