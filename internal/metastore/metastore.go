// Package metastore owns the per-key FileMeta document: the ordered,
// append-only list of versions recorded for a hashed object key, committed
// to disk under a process-wide write lock with write-blob-then-metadata
// ordering so a crash between the two leaves, at worst, an unreferenced
// blob rather than a metadata record pointing at nothing.
package metastore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashshelf/hashshelf/internal/keyhash"
	"github.com/hashshelf/hashshelf/internal/temp"
)

// ErrCorrupt is returned by Load when the on-disk .meta document is present
// but fails to parse as JSON.
var ErrCorrupt = errors.New("metastore: corrupt metadata document")

// FileVersion is one entry in a FileMeta's version history. Versions are
// never edited in place; a logical delete appends a tombstone version.
type FileVersion struct {
	Modified         time.Time         `json:"modified"`
	ContentLength    uint64            `json:"content_length"`
	ContentMD5Base64 string            `json:"content_md5_base64"`
	Meta             map[string]string `json:"meta,omitempty"`
	Tombstone        bool              `json:"tombstone"`
}

// FileMeta is the per-key JSON document persisted at <keyhash-path>.meta.
type FileMeta struct {
	Key      string        `json:"key"`
	Versions []FileVersion `json:"versions"`
}

// Latest returns the most recently appended version and true, or a zero
// value and false if no versions have ever been recorded.
func (m *FileMeta) Latest() (FileVersion, bool) {
	if m == nil || len(m.Versions) == 0 {
		return FileVersion{}, false
	}
	return m.Versions[len(m.Versions)-1], true
}

// Intermediate is the pending write produced by a StreamCodec encode pass,
// ready to be committed by AppendVersion.
type Intermediate struct {
	Temp             *temp.Path
	ContentLength    uint64
	ContentMD5Base64 string
}

// Store serializes access to FileMeta documents. All writes go through a
// single process-wide lock; reads (Load) never block on it, so a reader may
// observe the previous version during the brief window between a new
// blob's publication and its metadata update — which is the correct,
// documented behavior, not a race to fix.
type Store struct {
	root string
	mu   sync.Mutex
}

// New returns a Store rooted at root.
func New(root string) *Store {
	return &Store{root: root}
}

// Load reads the FileMeta for h, if any. A missing .meta file returns
// (nil, nil); a present-but-unparseable file returns ErrCorrupt.
func (s *Store) Load(h keyhash.Hash) (*FileMeta, error) {
	path := h.PathUnder(s.root) + ".meta"
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("metastore: read %s: %w", path, err)
	}
	var meta FileMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return &meta, nil
}

// AppendVersion commits a new FileVersion for key under the metadata write
// lock: it publishes the blob referenced by intermediate.Temp first, then
// the updated FileMeta document, so a crash between the two leaves only an
// orphaned blob, never a dangling metadata reference.
func (s *Store) AppendVersion(h keyhash.Hash, key string, metaHeaders map[string]string, intermediate Intermediate) (FileVersion, error) {
	base := h.PathUnder(s.root)
	dir := filepath.Dir(base)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return FileVersion{}, fmt.Errorf("metastore: mkdir %s: %w", dir, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Load(h)
	if err != nil {
		return FileVersion{}, err
	}
	if current == nil {
		current = &FileMeta{Key: key}
	}

	n := len(current.Versions)
	version := FileVersion{
		Modified:         now(),
		ContentLength:    intermediate.ContentLength,
		ContentMD5Base64: intermediate.ContentMD5Base64,
		Meta:             metaHeaders,
		Tombstone:        false,
	}
	current.Versions = append(current.Versions, version)

	metaTemp, err := temp.CreateIn(dir)
	if err != nil {
		return FileVersion{}, fmt.Errorf("metastore: allocate meta temp file: %w", err)
	}
	defer metaTemp.Cleanup()

	encoded, err := json.Marshal(current)
	if err != nil {
		return FileVersion{}, fmt.Errorf("metastore: marshal file meta: %w", err)
	}
	if _, err := metaTemp.File().Write(encoded); err != nil {
		return FileVersion{}, fmt.Errorf("metastore: write meta temp file: %w", err)
	}

	blobPath := fmt.Sprintf("%s.%d", base, n)
	if err := intermediate.Temp.Persist(blobPath); err != nil {
		return FileVersion{}, fmt.Errorf("metastore: persist blob: %w", err)
	}
	if err := metaTemp.Persist(base + ".meta"); err != nil {
		return FileVersion{}, fmt.Errorf("metastore: persist meta: %w", err)
	}

	return version, nil
}

// AppendTombstone records a logical delete: a version with no backing
// blob and Tombstone set. Latest returns that version; readers that check
// Tombstone (blobstore's Fetch and Head) treat the key as absent.
func (s *Store) AppendTombstone(h keyhash.Hash, key string) (FileVersion, error) {
	base := h.PathUnder(s.root)
	dir := filepath.Dir(base)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return FileVersion{}, fmt.Errorf("metastore: mkdir %s: %w", dir, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Load(h)
	if err != nil {
		return FileVersion{}, err
	}
	if current == nil {
		current = &FileMeta{Key: key}
	}

	version := FileVersion{Modified: now(), Tombstone: true}
	current.Versions = append(current.Versions, version)

	metaTemp, err := temp.CreateIn(dir)
	if err != nil {
		return FileVersion{}, fmt.Errorf("metastore: allocate meta temp file: %w", err)
	}
	defer metaTemp.Cleanup()

	encoded, err := json.Marshal(current)
	if err != nil {
		return FileVersion{}, fmt.Errorf("metastore: marshal file meta: %w", err)
	}
	if _, err := metaTemp.File().Write(encoded); err != nil {
		return FileVersion{}, fmt.Errorf("metastore: write meta temp file: %w", err)
	}
	if err := metaTemp.Persist(base + ".meta"); err != nil {
		return FileVersion{}, fmt.Errorf("metastore: persist meta: %w", err)
	}

	return version, nil
}

// BlobPath returns the on-disk path for version n of the key hashing to h.
func BlobPath(root string, h keyhash.Hash, n int) string {
	return fmt.Sprintf("%s.%d", h.PathUnder(root), n)
}

var now = func() time.Time { return time.Now().UTC() }
