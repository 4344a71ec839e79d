package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DownloadSigner issues and verifies HMAC tokens for transformed-file
// downloads, so result files can be fetched without a session.
type DownloadSigner struct {
	secret []byte
}

// NewDownloadSigner creates a signer bound to a shared secret.
// Parameters:
//   - secret: HMAC key; must be non-empty in production.
// Returns:
//   - *DownloadSigner: initialized signer.
func NewDownloadSigner(secret string) *DownloadSigner {
	return &DownloadSigner{secret: []byte(secret)}
}

// Sign produces a download token for a filename, owner, and expiry.
// The token covers all three values, so changing any of them in the URL
// invalidates it.
// Parameters:
//   - filename: stored artifact filename.
//   - userID: owning user ID.
//   - expires: unix timestamp after which the token is rejected.
// Returns:
//   - string: hex-encoded HMAC-SHA256 token.
func (s *DownloadSigner) Sign(filename string, userID uint, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d:%d", filename, userID, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a download token in constant time and rejects expired ones.
// Parameters:
//   - token: hex token from the request.
//   - filename: stored artifact filename.
//   - userID: owning user ID.
//   - expires: unix expiry timestamp from the request.
// Returns:
//   - bool: true only for an unexpired token matching all parameters.
func (s *DownloadSigner) Verify(token, filename string, userID uint, expires int64) bool {
	if time.Now().Unix() > expires {
		return false
	}
	expected := s.Sign(filename, userID, expires)
	return hmac.Equal([]byte(token), []byte(expected))
}
