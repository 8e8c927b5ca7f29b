// Package classify implements the resource classifier (spec §4.6): the
// priority-ordered decision tree that turns one walked entry into a ingest
// action.
package classify

import (
	"regexp"

	"github.com/surveilr/surveilr/internal/walker"
)

// Decision is the classifier's verdict for one entry.
type Decision int

const (
	// Skip: abs path matched an ignore regex.
	Skip Decision = iota
	// ExecuteAsSQL: basename matches a capturable-SQL regex.
	ExecuteAsSQL
	// ExecuteAsResource: basename matches a capturable-exec regex; Nature
	// names the regex's named capture.
	ExecuteAsResource
	// CaptureContent: path matches a content-ingest regex.
	CaptureContent
	// DigestOnly: path matches a digest regex.
	DigestOnly
	// WalkOnly: none of the above; record the visit, no resource row.
	WalkOnly
)

func (d Decision) String() string {
	switch d {
	case Skip:
		return "skip"
	case ExecuteAsSQL:
		return "execute-as-sql"
	case ExecuteAsResource:
		return "execute-as-resource"
	case CaptureContent:
		return "capture-content"
	case DigestOnly:
		return "digest-only"
	case WalkOnly:
		return "walk-only"
	default:
		return "unknown"
	}
}

// Rules holds the compiled regex sets a behavior resolves to.
type Rules struct {
	Ignore               []*regexp.Regexp
	CapturableSQL        []*regexp.Regexp
	CapturableExecutable []*regexp.Regexp
	ContentIngest        []*regexp.Regexp
	Digest               []*regexp.Regexp
}

// Outcome carries the decision plus whatever the matched rule contributed.
type Outcome struct {
	Decision Decision
	// Nature is the named "nature" capture from the matching
	// capturable-exec regex (ExecuteAsResource only).
	Nature string
}

// Classify applies the priority order from spec §4.6 to one entry.
func Classify(r Rules, e walker.Entry) Outcome {
	if matchesAny(r.Ignore, e.AbsPath) {
		return Outcome{Decision: Skip}
	}
	if matchesAny(r.CapturableSQL, e.Basename) {
		return Outcome{Decision: ExecuteAsSQL}
	}
	if nature, ok := matchNature(r.CapturableExecutable, e.Basename); ok {
		return Outcome{Decision: ExecuteAsResource, Nature: nature}
	}
	if matchesAny(r.ContentIngest, e.AbsPath) {
		return Outcome{Decision: CaptureContent}
	}
	if matchesAny(r.Digest, e.AbsPath) {
		return Outcome{Decision: DigestOnly}
	}
	return Outcome{Decision: WalkOnly}
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// matchNature returns the first regex's "nature" named capture that matches,
// falling back to ok=true with an empty nature if the regex matches but
// declares no such group.
func matchNature(patterns []*regexp.Regexp, s string) (string, bool) {
	for _, p := range patterns {
		m := p.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		for i, name := range p.SubexpNames() {
			if name == "nature" && i < len(m) {
				return m[i], true
			}
		}
		return "", true
	}
	return "", false
}
