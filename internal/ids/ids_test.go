package ids

import (
	"sort"
	"testing"
	"time"
)

func TestNewIsSortable(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var got []string
	for i := 0; i < 50; i++ {
		got = append(got, NewAt(base.Add(time.Duration(i)*time.Millisecond)))
	}

	sorted := append([]string(nil), got...)
	sort.Strings(sorted)

	for i := range got {
		if got[i] != sorted[i] {
			t.Fatalf("ids not in lexicographic mint order at index %d: %v", i, got)
		}
	}
}

func TestNewLength(t *testing.T) {
	id := New()
	if len(id) != 26 {
		t.Fatalf("expected 26-character id, got %d: %s", len(id), id)
	}
	if !Valid(id) {
		t.Fatalf("expected New() output to be valid: %s", id)
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	if Valid("not-an-id") {
		t.Fatalf("expected garbage string to be invalid")
	}
}

func TestTimeRoundTrip(t *testing.T) {
	want := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	id := NewAt(want)
	got, err := Time(id)
	if err != nil {
		t.Fatalf("Time: %v", err)
	}
	if got.UnixMilli() != want.UnixMilli() {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
