package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandHomeNoTilde(t *testing.T) {
	p, err := ExpandHome("/tmp/models")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != "/tmp/models" {
		t.Fatalf("expected unchanged path, got %q", p)
	}
}

func TestExpandHomeTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir in test environment")
	}
	p, err := ExpandHome("~/models")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != filepath.Join(home, "models") {
		t.Fatalf("expected %q, got %q", filepath.Join(home, "models"), p)
	}
}

func TestPathExists(t *testing.T) {
	dir := t.TempDir()
	if !PathExists(dir) {
		t.Fatalf("expected temp dir to exist")
	}
	if PathExists(filepath.Join(dir, "nope")) {
		t.Fatalf("expected missing path to report false")
	}
}

func TestRemoveIfExistsIdempotent(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f.bin")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := RemoveIfExists(p); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	// second remove must not error
	if err := RemoveIfExists(p); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}

func TestMoveFileCreatesParents(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	dst := filepath.Join(dir, "nested", "deeper", "dst.bin")
	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("move: %v", err)
	}
	if PathExists(src) {
		t.Fatalf("source should be gone after move")
	}
	b, err := os.ReadFile(dst)
	if err != nil || string(b) != "payload" {
		t.Fatalf("destination content wrong: %q err=%v", b, err)
	}
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a"), make([]byte, 100), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "b"), make([]byte, 50), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	n, err := DirSize(dir)
	if err != nil {
		t.Fatalf("dirsize: %v", err)
	}
	if n != 150 {
		t.Fatalf("expected 150 bytes, got %d", n)
	}
}
