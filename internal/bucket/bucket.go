// Package bucket validates bucket names and persists each bucket's
// recorded (but unenforced) versioning/lifecycle intent as JSON config at
// <storage root>/<bucket>/config.json.
package bucket

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashshelf/hashshelf/internal/temp"
)

// VersioningPolicy records a bucket's stated intent for version retention.
// Nothing in this module enforces it; collection of old versions is
// out of scope for the core store.
type VersioningPolicy string

const (
	VersioningOff          VersioningPolicy = "off"
	VersioningOn           VersioningPolicy = "on"
	VersioningFileNotFound VersioningPolicy = "file_not_found"
)

// LifecyclePolicy records a bucket's stated intent for old-version
// collection. Nothing in this module runs a collector.
type LifecyclePolicy string

const (
	LifecycleKeep         LifecyclePolicy = "keep"
	LifecycleCollectOlder LifecyclePolicy = "collect_older"
)

// Config is the per-bucket document stored at <bucket>/config.json.
type Config struct {
	Versioning VersioningPolicy `json:"versioning"`
	Lifecycle  LifecyclePolicy  `json:"lifecycle"`
}

// DefaultConfig returns the off/keep configuration. GetConfig does not
// apply it: a bucket that has never had config written yields nil.
func DefaultConfig() Config {
	return Config{Versioning: VersioningOff, Lifecycle: LifecycleKeep}
}

// Name is a bucket name that has already passed Valid.
type Name string

// Parse returns a Name if val is a syntactically valid bucket name.
func Parse(val string) (Name, bool) {
	if !Valid(val) {
		return "", false
	}
	return Name(val), true
}

// Valid reports whether name satisfies the bucket naming rule: 3 to 63
// lowercase ASCII letters, digits, dots, or hyphens; must start and end
// with an alphanumeric character; must not contain "..".
func Valid(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if !alnum(rune(name[0])) || !alnum(rune(name[len(name)-1])) {
		return false
	}
	for _, c := range name {
		if !alnum(c) && c != '.' && c != '-' {
			return false
		}
	}
	if containsDoubleDot(name) {
		return false
	}
	return true
}

func alnum(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

func containsDoubleDot(s string) bool {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '.' && s[i+1] == '.' {
			return true
		}
	}
	return false
}

// configFile returns the on-disk path to a bucket's config document.
func configFile(storageRoot string, name Name) string {
	return filepath.Join(storageRoot, string(name), "config.json")
}

// GetConfig loads the bucket's config. Returns (nil, nil) if no config has
// ever been written for the bucket.
func GetConfig(storageRoot string, name Name) (*Config, error) {
	data, err := os.ReadFile(configFile(storageRoot, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bucket: read config for %s: %w", name, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("bucket: corrupt config for %s: %w", name, err)
	}
	return &cfg, nil
}

// PutConfig writes cfg for the bucket via the usual temp-file-then-rename
// idiom, creating the bucket directory if needed.
func PutConfig(storageRoot string, name Name, cfg Config) error {
	dir := filepath.Join(storageRoot, string(name))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("bucket: mkdir %s: %w", dir, err)
	}

	tp, err := temp.CreateIn(dir)
	if err != nil {
		return fmt.Errorf("bucket: allocate temp file: %w", err)
	}
	defer tp.Cleanup()

	encoded, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("bucket: marshal config: %w", err)
	}
	if _, err := tp.File().Write(encoded); err != nil {
		return fmt.Errorf("bucket: write config temp file: %w", err)
	}
	if err := tp.Persist(filepath.Join(dir, "config.json")); err != nil {
		return fmt.Errorf("bucket: persist config: %w", err)
	}
	return nil
}
