package ingest

import "testing"

func TestParseFrontMatterYAML(t *testing.T) {
	doc := "---\ntitle: hi\ncount: 3\n---\nbody text\n"
	fm, err := ParseFrontMatter([]byte(doc))
	if err != nil {
		t.Fatalf("ParseFrontMatter: %v", err)
	}
	if !fm.HasFrontMatter {
		t.Fatalf("expected frontmatter to be detected")
	}
	if fm.Attrs["title"] != "hi" {
		t.Fatalf("expected title attr, got %v", fm.Attrs)
	}
	if fm.Body != "body text\n" {
		t.Fatalf("unexpected body: %q", fm.Body)
	}
}

func TestParseFrontMatterRoundTrip(t *testing.T) {
	doc := "---\ntitle: hi\n---\nbody text\nmore lines\n"
	fm, err := ParseFrontMatter([]byte(doc))
	if err != nil {
		t.Fatalf("ParseFrontMatter: %v", err)
	}
	if fm.Reconstruct() != doc {
		t.Fatalf("round trip mismatch:\nwant %q\ngot  %q", doc, fm.Reconstruct())
	}
}

func TestParseFrontMatterTOML(t *testing.T) {
	doc := "+++\ntitle = \"hi\"\n+++\nbody\n"
	fm, err := ParseFrontMatter([]byte(doc))
	if err != nil {
		t.Fatalf("ParseFrontMatter: %v", err)
	}
	if !fm.HasFrontMatter {
		t.Fatalf("expected frontmatter to be detected")
	}
	if fm.Attrs["title"] != "hi" {
		t.Fatalf("expected title attr, got %v", fm.Attrs)
	}
}

func TestParseFrontMatterJSON(t *testing.T) {
	doc := `{"title":"hi"}` + "\nbody\n"
	fm, err := ParseFrontMatter([]byte(doc))
	if err != nil {
		t.Fatalf("ParseFrontMatter: %v", err)
	}
	if !fm.HasFrontMatter {
		t.Fatalf("expected frontmatter to be detected")
	}
	if fm.Attrs["title"] != "hi" {
		t.Fatalf("expected title attr, got %v", fm.Attrs)
	}
	if fm.Reconstruct() != doc {
		t.Fatalf("round trip mismatch:\nwant %q\ngot  %q", doc, fm.Reconstruct())
	}
}

func TestParseFrontMatterNone(t *testing.T) {
	doc := "just a plain document\n"
	fm, err := ParseFrontMatter([]byte(doc))
	if err != nil {
		t.Fatalf("ParseFrontMatter: %v", err)
	}
	if fm.HasFrontMatter {
		t.Fatalf("expected no frontmatter to be detected")
	}
	if fm.Body != doc {
		t.Fatalf("expected body to equal whole document")
	}
}
