// Package temp provides scoped, exclusive temporary files that are either
// atomically renamed into place or unlinked, with a guaranteed cleanup path
// on every exit from any operation that acquires one.
package temp

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// maxAttempts bounds the exclusive-create retry loop before giving up.
const maxAttempts = 256

// ErrExhausted is returned by CreateIn when maxAttempts collisions occur in a row.
var ErrExhausted = errors.New("temp: exhausted attempts creating temporary file")

// Path is a handle to an exclusively-created temporary file. It owns exactly
// one filesystem object until Persist or Close is called, at which point it
// stops owning anything. Cleanup is idempotent and safe to defer
// unconditionally after CreateIn succeeds.
type Path struct {
	file     *os.File
	path     string
	released bool
}

// CreateIn creates a new exclusive temporary file in dir, named
// ".<hex-u64>.tmp". On a name collision (os.ErrExist) it retries with a
// fresh random name up to maxAttempts times.
func CreateIn(dir string) (*Path, error) {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		name, err := randomName()
		if err != nil {
			return nil, fmt.Errorf("temp: generate name: %w", err)
		}
		candidate := filepath.Join(dir, name)
		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			return &Path{file: f, path: candidate}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: last error %v", ErrExhausted, lastErr)
}

func randomName() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf(".%x.tmp", binary.BigEndian.Uint64(buf[:])), nil
}

// File returns the underlying *os.File for writing. Valid until Persist or Close.
func (p *Path) File() *os.File { return p.file }

// Name returns the current temporary path on disk.
func (p *Path) Name() string { return p.path }

// Persist closes the underlying file (flushing buffered writers, if any, is
// the caller's job before calling this) and atomically renames it to
// target. After a successful call the Path no longer owns a filesystem
// object; Cleanup becomes a no-op.
func (p *Path) Persist(target string) error {
	if p.released {
		return fmt.Errorf("temp: already released")
	}
	if err := p.file.Close(); err != nil {
		return fmt.Errorf("temp: close before rename: %w", err)
	}
	if err := os.Rename(p.path, target); err != nil {
		return fmt.Errorf("temp: rename %s -> %s: %w", p.path, target, err)
	}
	p.released = true
	return nil
}

// Close explicitly unlinks the temporary file. After a successful call the
// Path no longer owns a filesystem object; Cleanup becomes a no-op.
func (p *Path) Close() error {
	if p.released {
		return nil
	}
	cerr := p.file.Close()
	rerr := os.Remove(p.path)
	p.released = true
	if rerr != nil {
		return fmt.Errorf("temp: remove %s: %w", p.path, rerr)
	}
	return cerr
}

// Cleanup unlinks the temporary file on a best-effort basis if it has not
// already been persisted or closed. Callers should defer Cleanup()
// immediately after CreateIn succeeds so that every exit path — including
// an error return partway through a caller's operation — leaves no orphan
// file behind.
func (p *Path) Cleanup() {
	if p.released {
		return
	}
	p.file.Close()
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("temp: unable to remove temporary file %s: %v", p.path, err)
	}
	p.released = true
}
