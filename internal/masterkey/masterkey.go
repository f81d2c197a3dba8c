// Package masterkey derives and validates the access/secret key pairs used
// to authenticate SigV4 requests, all deterministically from a single
// process-wide seed supplied at startup.
package masterkey

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// accessKeyLen is the fixed length of every issued access key.
const accessKeyLen = 30

// RoleId identifies an authorization principal. Opaque to everything
// outside this package beyond its fixed 12-byte width.
type RoleId [12]byte

// MasterKey is the process-wide root of trust for key derivation. It is
// immutable once constructed and never serialized to disk.
type MasterKey struct {
	id  [3]byte
	key [32]byte
}

// New derives a MasterKey from an arbitrary string seed. The same seed
// always yields the same key and id.
func New(seed string) MasterKey {
	key := mac([]byte("making a key"), []byte(seed))
	idFull := mac([]byte("identifying a key"), key[:])
	var m MasterKey
	m.key = key
	copy(m.id[:], idFull[:3])
	return m
}

// AccessKeyFor issues a fresh access key for roleID: the fixed prefix
// "S1" followed by base64url-nopad(master id || role id || 6 random
// entropy bytes). Always exactly 30 ASCII characters.
func (m MasterKey) AccessKeyFor(roleID RoleId) (string, error) {
	buf := make([]byte, 0, 3+12+6)
	buf = append(buf, m.id[:]...)
	buf = append(buf, roleID[:]...)

	entropy := make([]byte, 6)
	if _, err := rand.Read(entropy); err != nil {
		return "", fmt.Errorf("masterkey: read entropy: %w", err)
	}
	buf = append(buf, entropy...)

	key := "S1" + pack(buf)
	if len(key) != accessKeyLen {
		panic(fmt.Sprintf("masterkey: generated access key length %d, want %d", len(key), accessKeyLen))
	}
	return key, nil
}

// ParseAccess recovers the RoleId embedded in an access key previously
// issued by this MasterKey, or an error describing why it could not.
func (m MasterKey) ParseAccess(accessKey string) (RoleId, error) {
	if len(accessKey) != accessKeyLen {
		return RoleId{}, fmt.Errorf("masterkey: invalid length")
	}
	if accessKey[:2] != "S1" {
		return RoleId{}, fmt.Errorf("masterkey: invalid format")
	}

	decoded, err := unpack(accessKey[2:])
	if err != nil {
		return RoleId{}, fmt.Errorf("masterkey: invalid encoding: %w", err)
	}
	if len(decoded) != 3+12+6 {
		return RoleId{}, fmt.Errorf("masterkey: invalid encoding: unexpected length %d", len(decoded))
	}
	if subtle.ConstantTimeCompare(decoded[:3], m.id[:]) != 1 {
		return RoleId{}, fmt.Errorf("masterkey: not issued by this master key")
	}

	var role RoleId
	copy(role[:], decoded[3:15])
	return role, nil
}

// SecretKeyFor derives the secret key paired with accessKey. Does not
// validate that accessKey was ever issued; callers must only present
// secrets to access keys they have chosen to accept (ParseAccess first).
func (m MasterKey) SecretKeyFor(accessKey string) string {
	sum := mac(m.key[:], []byte(accessKey))
	return pack(sum[:])
}

func mac(key, value []byte) [32]byte {
	h := hmac.New(sha512.New512_256, key)
	h.Write(value)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func pack(values []byte) string {
	return base64.RawURLEncoding.EncodeToString(values)
}

func unpack(value string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(value)
}
