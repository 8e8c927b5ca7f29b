// Package digest computes the content digests recorded on uniform_resource
// rows. "-" means "not computed"; it is never produced by Sum itself, only by
// callers that chose to skip digesting.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/minio/highwayhash"
)

// Algorithm names a pluggable digest function. The zero value is Default.
type Algorithm string

const (
	// SHA256 is the default: a standard cryptographic hash, the conventional
	// choice for content-addressing.
	SHA256 Algorithm = "sha256"

	// HighwayHash is an opt-in faster alternative for large trees. The
	// selected algorithm is recorded in the behavior's conf_json
	// (digest_algorithm); uniform_resource rows do not record it.
	HighwayHash Algorithm = "highwayhash"

	// Default is the algorithm used when a behavior does not name one.
	Default = SHA256

	// NotComputed is the sentinel recorded when digesting was skipped or
	// failed; it is distinct from any real digest value.
	NotComputed = "-"
)

// highwayKey is fixed: surveilr uses HighwayHash only for fast content
// fingerprinting, not as a keyed MAC, so a well-known zero key is sufficient
// and keeps digests reproducible across hosts.
var highwayKey = make([]byte, highwayhash.Size)

// Sum hashes r fully under algo and returns lowercase hex. It never returns
// NotComputed — callers decide when to substitute that sentinel.
func Sum(algo Algorithm, r io.Reader) (string, error) {
	switch algo {
	case "", SHA256:
		h := sha256.New()
		if _, err := io.Copy(h, r); err != nil {
			return "", fmt.Errorf("digest: sha256: %w", err)
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	case HighwayHash:
		h, err := highwayhash.New(highwayKey)
		if err != nil {
			return "", fmt.Errorf("digest: highwayhash: %w", err)
		}
		if _, err := io.Copy(h, r); err != nil {
			return "", fmt.Errorf("digest: highwayhash: %w", err)
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	default:
		return "", fmt.Errorf("digest: unknown algorithm %q", algo)
	}
}

// SumBytes is a convenience wrapper around Sum for in-memory content.
func SumBytes(algo Algorithm, b []byte) (string, error) {
	h, err := newHash(algo)
	if err != nil {
		return "", err
	}
	if _, err := h.Write(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func newHash(algo Algorithm) (interface {
	io.Writer
	Sum([]byte) []byte
}, error) {
	switch algo {
	case "", SHA256:
		return sha256.New(), nil
	case HighwayHash:
		return highwayhash.New(highwayKey)
	default:
		return nil, fmt.Errorf("digest: unknown algorithm %q", algo)
	}
}
