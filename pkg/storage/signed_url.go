package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidLink = errors.New("invalid download link")
	ErrLinkExpired = errors.New("download link expired")
)

// LinkSigner creates and verifies expiring download tokens for stored exports.
type LinkSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewLinkSigner constructs a signer. A non-positive ttl defaults to 24h.
func NewLinkSigner(secret string, ttl time.Duration) *LinkSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &LinkSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL reports how long issued links stay valid.
func (s *LinkSigner) TTL() time.Duration {
	return s.ttl
}

// Sign returns a token of the form runID.expiry.path.signature.
func (s *LinkSigner) Sign(runID, relPath string) (string, time.Time, error) {
	if runID == "" || relPath == "" {
		return "", time.Time{}, errors.New("run id and path required")
	}
	if strings.Contains(runID, ".") {
		return "", time.Time{}, fmt.Errorf("run id %q must not contain '.'", runID)
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(relPath))
	token := strings.Join([]string{runID, ts, encodedPath, s.signature(runID, ts, encodedPath)}, ".")
	return token, expiresAt, nil
}

// Verify checks the signature and expiry of a token and returns what it references.
func (s *LinkSigner) Verify(token string) (runID, relPath string, expiresAt time.Time, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", time.Time{}, fmt.Errorf("%w: malformed token", ErrInvalidLink)
	}
	runID, ts, encodedPath, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.signature(runID, ts, encodedPath)), []byte(signature)) {
		return "", "", time.Time{}, fmt.Errorf("%w: bad signature", ErrInvalidLink)
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("%w: bad expiry", ErrInvalidLink)
	}
	rawPath, err := base64.RawURLEncoding.DecodeString(encodedPath)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("%w: bad path", ErrInvalidLink)
	}
	expiresAt = time.Unix(expUnix, 0)
	if s.now().After(expiresAt) {
		return "", "", time.Time{}, ErrLinkExpired
	}
	return runID, string(rawPath), expiresAt, nil
}

func (s *LinkSigner) signature(runID, ts, encodedPath string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(runID + "|" + ts + "|" + encodedPath))
	return hex.EncodeToString(mac.Sum(nil))
}
