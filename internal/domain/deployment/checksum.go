package deployment

import (
	"bytes"
	"crypto"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// Checksum is the content digest of an artifact and the key for resolving it.
// Treat it as immutable: never modify the underlying bytes.
type Checksum []byte

// Digest lengths accepted for a checksum.
const (
	md5Length    = 16
	sha1Length   = 20
	sha256Length = 32
)

// ParseChecksum accepts a hex or standard base64 representation.
func ParseChecksum(s string) (Checksum, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("checksum is empty: %w", ErrValidation)
	}

	if decoded, err := hex.DecodeString(s); err == nil && validLength(len(decoded)) {
		return Checksum(decoded), nil
	}

	if decoded, err := base64.StdEncoding.DecodeString(s); err == nil && validLength(len(decoded)) {
		return Checksum(decoded), nil
	}

	return nil, fmt.Errorf("checksum %q is neither an md5, sha1 nor sha256 digest: %w", s, ErrValidation)
}

// MustParseChecksum is ParseChecksum for constants; it panics on bad input.
func MustParseChecksum(s string) Checksum {
	cs, err := ParseChecksum(s)
	if err != nil {
		panic(err)
	}

	return cs
}

func validLength(n int) bool {
	return n == md5Length || n == sha1Length || n == sha256Length
}

// Hex returns the lowercase hex form.
func (c Checksum) Hex() string {
	return hex.EncodeToString(c)
}

// Base64 returns the standard base64 form.
func (c Checksum) Base64() string {
	return base64.StdEncoding.EncodeToString(c)
}

// String returns the hex form.
func (c Checksum) String() string {
	return c.Hex()
}

// IsZero reports whether the checksum is unset.
func (c Checksum) IsZero() bool {
	return len(c) == 0
}

// Equal compares two checksums byte by byte.
func (c Checksum) Equal(other Checksum) bool {
	return bytes.Equal(c, other)
}

// Algorithm names the digest by its length: md5, sha1 or sha256.
func (c Checksum) Algorithm() string {
	switch len(c) {
	case md5Length:
		return "md5"
	case sha1Length:
		return "sha1"
	case sha256Length:
		return "sha256"
	default:
		return ""
	}
}

// Hash returns the crypto.Hash matching Algorithm.
func (c Checksum) Hash() (crypto.Hash, bool) {
	switch len(c) {
	case md5Length:
		return crypto.MD5, true
	case sha1Length:
		return crypto.SHA1, true
	case sha256Length:
		return crypto.SHA256, true
	default:
		return 0, false
	}
}

// MarshalText encodes the checksum as hex for YAML and JSON.
func (c Checksum) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

// UnmarshalText accepts the forms ParseChecksum accepts; empty text yields a zero checksum.
func (c *Checksum) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*c = nil
		return nil
	}

	parsed, err := ParseChecksum(string(text))
	if err != nil {
		return err
	}

	*c = parsed

	return nil
}
