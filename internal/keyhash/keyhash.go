// Package keyhash derives a fixed-width, filesystem-safe path fragment from
// an arbitrary object key.
package keyhash

import (
	"crypto/sha512"
	"encoding/base32"
	"fmt"
	"path/filepath"
	"strings"
)

// Length is the number of characters a Hash always has.
const Length = 103

var encoding = base32.HexEncoding.WithPadding(base32.NoPadding)

// Hash is a deterministic, collision-resistant, prefix-sliceable encoding of
// an object key. Stable across process restarts; never compare two Hash
// values from different KeyHash implementations.
type Hash string

// Of hashes key with SHA-512 and encodes the digest as lowercase, unpadded
// extended-hex base32. The result is always Length characters.
func Of(key string) Hash {
	sum := sha512.Sum512([]byte(key))
	encoded := strings.ToLower(encoding.EncodeToString(sum[:]))
	if len(encoded) != Length {
		panic(fmt.Sprintf("keyhash: unexpected encoded length %d, want %d", len(encoded), Length))
	}
	return Hash(encoded)
}

// PathUnder joins root with the three directory segments derived from h:
// chars [0:4], [4:8], [8:Length]. The caller attaches an extension
// (".meta" for metadata, ".<n>" for a version blob).
func (h Hash) PathUnder(root string) string {
	s := string(h)
	return filepath.Join(root, s[0:4], s[4:8], s[8:Length])
}

func (h Hash) String() string { return string(h) }
