// Package util carries the tiny helpers shared across packages.
package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a prefixed random identifier such as "file_3a9f...". The
// prefix ("cl", "file", ...) keys the entity kind so ids stay legible in
// logs and object names.
func NewID(prefix string) string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	id := hex.EncodeToString(buf)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
