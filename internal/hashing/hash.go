// Package hashing computes the integrity digest recorded for every
// submitted video. The digest is SHA-256 over the original upload bytes,
// streamed so memory use stays constant regardless of file size.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// chunkSize bounds the copy buffer used while folding bytes into the digest.
const chunkSize = 64 * 1024

// Reader consumes r to EOF and returns the hex-encoded SHA-256 digest of
// everything read. The digest depends only on the byte content, never on
// how reads happen to be chunked.
func Reader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("hashing content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// File returns the hex-encoded SHA-256 digest of the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return Reader(f)
}
