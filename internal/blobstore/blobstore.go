// Package blobstore composes KeyHash, TempPath, StreamCodec, and MetaStore
// into the public object-store operations: Put, Fetch, Head, and Delete.
package blobstore

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashshelf/hashshelf/internal/codec"
	"github.com/hashshelf/hashshelf/internal/keyhash"
	"github.com/hashshelf/hashshelf/internal/metastore"
	"github.com/hashshelf/hashshelf/internal/temp"
)

// ErrNotFound is returned by Fetch and Head when the key has never been
// written, or its latest version is a tombstone.
var ErrNotFound = errors.New("blobstore: object not found")

// ErrInconsistent marks an on-disk state that should be impossible absent
// a bug: metadata references a version whose blob file is missing. Treated
// as an internal (5xx) error by callers.
var ErrInconsistent = errors.New("blobstore: metadata references missing blob")

// Store composes the on-disk pieces rooted at a single storage directory.
type Store struct {
	root string
	meta *metastore.Store
}

// New returns a Store rooted at root. The caller is responsible for
// ensuring root exists.
func New(root string) *Store {
	return &Store{root: root, meta: metastore.New(root)}
}

// Result is returned by Fetch, pairing the version record a caller needs
// for response headers with a stream of decompressed plaintext. Body must
// be closed by the caller.
type Result struct {
	Version metastore.FileVersion
	Body    io.ReadCloser
}

// Put streams body through the zstd codec into a freshly allocated
// TempPath, then commits it as a new version of key via MetaStore. On any
// failure prior to commit the TempPath is cleaned up and no metadata is
// touched.
func (s *Store) Put(key string, metaHeaders map[string]string, body io.Reader) (metastore.FileVersion, error) {
	h := keyhash.Of(key)
	dir := blobParentDir(s.root, h)
	if err := ensureDir(dir); err != nil {
		return metastore.FileVersion{}, err
	}

	tp, err := temp.CreateIn(dir)
	if err != nil {
		return metastore.FileVersion{}, fmt.Errorf("blobstore: allocate temp file: %w", err)
	}
	defer tp.Cleanup()

	enc, err := codec.NewEncoder(tp.File())
	if err != nil {
		return metastore.FileVersion{}, fmt.Errorf("blobstore: new encoder: %w", err)
	}
	if _, err := io.Copy(enc, body); err != nil {
		return metastore.FileVersion{}, fmt.Errorf("blobstore: encode body: %w", err)
	}
	if err := enc.Close(); err != nil {
		return metastore.FileVersion{}, fmt.Errorf("blobstore: finish encoder: %w", err)
	}

	digest := enc.Digest()
	intermediate := metastore.Intermediate{
		Temp:             tp,
		ContentLength:    digest.Length,
		ContentMD5Base64: base64.StdEncoding.EncodeToString(digest.MD5[:]),
	}

	version, err := s.meta.AppendVersion(h, key, metaHeaders, intermediate)
	if err != nil {
		return metastore.FileVersion{}, err
	}
	return version, nil
}

// Fetch returns the latest non-tombstone version of key along with a
// streaming decoder over its plaintext. Returns ErrNotFound if the key is
// unknown or was last written as a delete.
func (s *Store) Fetch(key string) (*Result, error) {
	h := keyhash.Of(key)
	meta, err := s.meta.Load(h)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, ErrNotFound
	}
	n := len(meta.Versions) - 1
	latest := meta.Versions[n]
	if latest.Tombstone {
		return nil, ErrNotFound
	}

	blobPath := metastore.BlobPath(s.root, h, n)
	f, err := os.Open(blobPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrInconsistent, blobPath)
	}
	if err != nil {
		return nil, fmt.Errorf("blobstore: open blob: %w", err)
	}

	dec, err := codec.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("blobstore: new decoder: %w", err)
	}
	return &Result{Version: latest, Body: &decodeCloser{dec: dec, file: f}}, nil
}

// Head returns the latest non-tombstone version record without opening
// the blob. Returns ErrNotFound under the same conditions as Fetch.
func (s *Store) Head(key string) (metastore.FileVersion, error) {
	h := keyhash.Of(key)
	meta, err := s.meta.Load(h)
	if err != nil {
		return metastore.FileVersion{}, err
	}
	if meta == nil {
		return metastore.FileVersion{}, ErrNotFound
	}
	latest, ok := meta.Latest()
	if !ok || latest.Tombstone {
		return metastore.FileVersion{}, ErrNotFound
	}
	return latest, nil
}

// Delete appends a tombstone version for key, hiding it from subsequent
// Fetch/Head calls. Prior blobs are retained on disk; collection is not
// part of this package.
func (s *Store) Delete(key string) error {
	h := keyhash.Of(key)
	_, err := s.meta.AppendTombstone(h, key)
	return err
}

func blobParentDir(root string, h keyhash.Hash) string {
	return filepath.Dir(h.PathUnder(root))
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("blobstore: mkdir %s: %w", dir, err)
	}
	return nil
}

type decodeCloser struct {
	dec  *codec.Decoder
	file *os.File
}

func (d *decodeCloser) Read(p []byte) (int, error) { return d.dec.Read(p) }

func (d *decodeCloser) Close() error {
	d.dec.Close()
	return d.file.Close()
}
