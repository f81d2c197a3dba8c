// Package codec implements the streaming compression pipeline used for
// every object body: a single pass over the plaintext simultaneously feeds a
// zstd encoder (for the on-disk blob) and an MD5+length accumulator (for the
// metadata recorded alongside it), with no intermediate buffering to disk.
package codec

import (
	"crypto/md5"
	"fmt"
	"hash"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Level is the zstd compression level used for every write. Chosen for a
// favorable compression/CPU tradeoff on typical object bodies; not exposed
// as a per-request option.
const Level = zstd.SpeedDefault

// Digest summarizes the plaintext that was written through an Encoder:
// its length and MD5 sum, recorded in object metadata so a caller can
// validate integrity after a Decoder round-trip without re-reading the
// compressed blob.
type Digest struct {
	Length uint64
	MD5    [md5.Size]byte
}

// Encoder wraps a zstd stream writer with an MD5+length tee over the
// plaintext written to it. Callers must call Close to flush the zstd frame
// and obtain the final Digest.
type Encoder struct {
	zw     *zstd.Encoder
	md5    hash.Hash
	length uint64
	closed bool
}

// NewEncoder returns an Encoder that writes a compressed zstd stream to w.
func NewEncoder(w io.Writer) (*Encoder, error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(Level), zstd.WithEncoderCRC(true))
	if err != nil {
		return nil, fmt.Errorf("codec: new zstd writer: %w", err)
	}
	return &Encoder{zw: zw, md5: md5.New()}, nil
}

// Write accumulates p into the MD5+length digest and compresses it into the
// underlying stream. Implements io.Writer.
func (e *Encoder) Write(p []byte) (int, error) {
	e.md5.Write(p)
	e.length += uint64(len(p))
	return e.zw.Write(p)
}

// Close flushes and closes the zstd frame. It must be called exactly once,
// after all plaintext has been written, before Digest is trusted.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return e.zw.Close()
}

// Digest returns the MD5+length summary of everything written so far. Only
// meaningful after Close.
func (e *Encoder) Digest() Digest {
	var sum [md5.Size]byte
	copy(sum[:], e.md5.Sum(nil))
	return Digest{Length: e.length, MD5: sum}
}

// Decoder wraps a zstd stream reader, re-exposing the original plaintext.
type Decoder struct {
	zr *zstd.Decoder
}

// NewDecoder returns a Decoder reading a compressed zstd stream from r.
func NewDecoder(r io.Reader) (*Decoder, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("codec: new zstd reader: %w", err)
	}
	return &Decoder{zr: zr}, nil
}

// Read implements io.Reader, yielding decompressed plaintext.
func (d *Decoder) Read(p []byte) (int, error) {
	return d.zr.Read(p)
}

// Close releases resources held by the decoder. Safe to call multiple times.
func (d *Decoder) Close() {
	d.zr.Close()
}

// CopyWithDigest decompresses all of r's zstd stream into w and returns the
// MD5+length digest computed over the decompressed plaintext, for
// verification against metadata recorded at write time.
func CopyWithDigest(w io.Writer, r io.Reader) (Digest, error) {
	d, err := NewDecoder(r)
	if err != nil {
		return Digest{}, err
	}
	defer d.Close()

	h := md5.New()
	mw := io.MultiWriter(w, h)
	n, err := io.Copy(mw, d)
	if err != nil {
		return Digest{}, fmt.Errorf("codec: decompress: %w", err)
	}
	var sum [md5.Size]byte
	copy(sum[:], h.Sum(nil))
	return Digest{Length: uint64(n), MD5: sum}, nil
}
