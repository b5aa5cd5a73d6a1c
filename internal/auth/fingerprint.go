package auth

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// AccountFingerprint returns a stable, non-reversible identifier for a
// webmail account. It is used in logs, lock keys and the history store
// in place of the username.
func AccountFingerprint(username string) string {
	sum := blake2b.Sum256([]byte(strings.ToLower(strings.TrimSpace(username))))
	return hex.EncodeToString(sum[:8])
}
