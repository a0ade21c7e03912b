package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Key derives a fixed length cache key from its parts. Parts are joined with
// a separator that cannot appear in normalized text so ("ab", "c") and
// ("a", "bc") never collide.
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}
