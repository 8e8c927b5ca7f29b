package digest

import (
	"bytes"
	"testing"
)

func TestSumDeterministic(t *testing.T) {
	want, err := SumBytes(SHA256, []byte("hello world"))
	if err != nil {
		t.Fatalf("SumBytes: %v", err)
	}
	got, err := Sum(SHA256, bytes.NewReader([]byte("hello world")))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if got != want {
		t.Fatalf("Sum and SumBytes disagree: %s vs %s", got, want)
	}
}

func TestSumEmptyInputIsDefined(t *testing.T) {
	got, err := SumBytes(SHA256, nil)
	if err != nil {
		t.Fatalf("SumBytes: %v", err)
	}
	if got == "" || got == NotComputed {
		t.Fatalf("expected a defined empty-input digest, got %q", got)
	}
	// crypto/sha256 of the empty string is well known.
	const emptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != emptySHA256 {
		t.Fatalf("expected canonical empty sha256 digest, got %s", got)
	}
}

func TestSumHighwayHashDiffersFromSHA256(t *testing.T) {
	a, err := SumBytes(SHA256, []byte("payload"))
	if err != nil {
		t.Fatalf("SumBytes sha256: %v", err)
	}
	b, err := SumBytes(HighwayHash, []byte("payload"))
	if err != nil {
		t.Fatalf("SumBytes highwayhash: %v", err)
	}
	if a == b {
		t.Fatalf("expected different algorithms to produce different digests")
	}
}

func TestSumUnknownAlgorithm(t *testing.T) {
	if _, err := SumBytes("nonsense", []byte("x")); err == nil {
		t.Fatalf("expected error for unknown algorithm")
	}
}
