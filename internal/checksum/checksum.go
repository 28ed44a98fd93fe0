// Package checksum fingerprints artifact content for change detection.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumFiles digests the concatenated content of paths, in order. Empty paths
// and missing files contribute a separator only, so adding or removing a
// companion still changes the result.
func SumFiles(paths ...string) string {
	h := sha256.New()
	for _, p := range paths {
		if p != "" {
			if data, err := os.ReadFile(p); err == nil {
				h.Write([]byte(p))
				h.Write(data)
			}
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
