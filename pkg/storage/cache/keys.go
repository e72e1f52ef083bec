package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"
)

// keyVersion is bumped whenever Entry changes shape; old entries then miss.
const keyVersion = "v1"

// Key identifies one build of a plugin library on disk. A library that is
// replaced or touched gets a new key, so stale entries are never returned.
type Key struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// KeyFor stats path and returns its key.
func KeyFor(path string) (Key, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Key{}, err
	}
	return Key{Path: path, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Validate checks that the key can be used.
func (k Key) Validate() error {
	if k.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidCacheKey)
	}
	if k.ModTime.IsZero() {
		return fmt.Errorf("%w: modification time is required", ErrInvalidCacheKey)
	}
	return nil
}

// String formats the key as {version}:{sha256(path, size, mtime)}.
func (k Key) String() string {
	hasher := sha256.New()
	hasher.Write([]byte(k.Path))
	hasher.Write([]byte{0})
	hasher.Write([]byte(strconv.FormatInt(k.Size, 10)))
	hasher.Write([]byte{0})
	hasher.Write([]byte(strconv.FormatInt(k.ModTime.UnixNano(), 10)))
	return keyVersion + ":" + hex.EncodeToString(hasher.Sum(nil))
}
