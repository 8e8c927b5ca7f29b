package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// FrontMatter is the {frontMatter, body, attrs} blob spec §4.7 and §8
// describe: attrs is the frontmatter re-expressed as a generic JSON map so
// notebook queries can reach into it regardless of the source format.
type FrontMatter struct {
	Delimiter      string         `json:"-"`
	RawFront       string         `json:"frontMatter"`
	Body           string         `json:"body"`
	Attrs          map[string]any `json:"attrs"`
	HasFrontMatter bool           `json:"-"`
}

// ParseFrontMatter splits a markdown-like document into frontmatter and
// body. It recognizes YAML (`---`), TOML (`+++`), and a leading top-level
// JSON object. Documents without a recognized frontmatter block return
// HasFrontMatter=false and the whole document as Body.
func ParseFrontMatter(content []byte) (FrontMatter, error) {
	s := string(content)

	if raw, body, ok := splitDelimited(s, "---"); ok {
		attrs := map[string]any{}
		if err := yaml.Unmarshal([]byte(raw), &attrs); err != nil {
			return FrontMatter{}, fmt.Errorf("ingest: parsing yaml frontmatter: %w", err)
		}
		return FrontMatter{Delimiter: "---", RawFront: raw, Body: body, Attrs: attrs, HasFrontMatter: true}, nil
	}

	if raw, body, ok := splitDelimited(s, "+++"); ok {
		attrs := map[string]any{}
		if err := toml.Unmarshal([]byte(raw), &attrs); err != nil {
			return FrontMatter{}, fmt.Errorf("ingest: parsing toml frontmatter: %w", err)
		}
		return FrontMatter{Delimiter: "+++", RawFront: raw, Body: body, Attrs: attrs, HasFrontMatter: true}, nil
	}

	if raw, body, ok := splitLeadingJSONObject(s); ok {
		attrs := map[string]any{}
		if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
			return FrontMatter{}, fmt.Errorf("ingest: parsing json frontmatter: %w", err)
		}
		return FrontMatter{Delimiter: "", RawFront: raw, Body: body, Attrs: attrs, HasFrontMatter: true}, nil
	}

	return FrontMatter{Body: s}, nil
}

// Reconstruct rebuilds the original document byte-for-byte from a
// FrontMatter value (spec §8, "Frontmatter round-trip").
func (fm FrontMatter) Reconstruct() string {
	if !fm.HasFrontMatter {
		return fm.Body
	}
	if fm.Delimiter == "" {
		return fm.RawFront + fm.Body
	}
	return fm.Delimiter + "\n" + fm.RawFront + fm.Delimiter + "\n" + fm.Body
}

// splitDelimited extracts the block between two lines equal to delim,
// where the document opens with a line containing exactly delim.
func splitDelimited(s, delim string) (raw, body string, ok bool) {
	opening := delim + "\n"
	if !strings.HasPrefix(s, opening) {
		return "", "", false
	}
	rest := s[len(opening):]
	closing := "\n" + delim + "\n"
	idx := strings.Index(rest, closing)
	if idx < 0 {
		return "", "", false
	}
	raw = rest[:idx] + "\n"
	body = rest[idx+len(closing):]
	return raw, body, true
}

// splitLeadingJSONObject recognizes a document that opens with a single
// top-level JSON object, treating it as frontmatter and everything after
// the matching closing brace as body.
func splitLeadingJSONObject(s string) (raw, body string, ok bool) {
	trimmed := strings.TrimLeft(s, " \t\r\n")
	if !strings.HasPrefix(trimmed, "{") {
		return "", "", false
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	var v json.RawMessage
	if err := dec.Decode(&v); err != nil {
		return "", "", false
	}
	consumed := dec.InputOffset()
	return string(v), trimmed[consumed:], true
}
