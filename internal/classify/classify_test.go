package classify

import (
	"regexp"
	"testing"

	"github.com/surveilr/surveilr/internal/walker"
)

func compileMust(t *testing.T, patterns ...string) []*regexp.Regexp {
	t.Helper()
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

func TestClassifyPriorityOrder(t *testing.T) {
	r := Rules{
		Ignore:               compileMust(t, `/\.git/`),
		CapturableSQL:        compileMust(t, `\.surveilr-SQL\.`),
		CapturableExecutable: compileMust(t, `surveilr\[(?P<nature>[^\]]*)\]`),
		ContentIngest:        compileMust(t, `\.md$`),
		Digest:               compileMust(t, `.*`),
	}

	cases := []struct {
		name string
		e    walker.Entry
		want Decision
	}{
		{"ignored", walker.Entry{AbsPath: "/repo/.git/HEAD", Basename: "HEAD"}, Skip},
		{"sql", walker.Entry{AbsPath: "/repo/seed.surveilr-SQL.sh", Basename: "seed.surveilr-SQL.sh"}, ExecuteAsSQL},
		{"exec", walker.Entry{AbsPath: "/repo/probe.surveilr[json].sh", Basename: "probe.surveilr[json].sh"}, ExecuteAsResource},
		{"content", walker.Entry{AbsPath: "/repo/a.md", Basename: "a.md"}, CaptureContent},
		{"digest", walker.Entry{AbsPath: "/repo/b.bin", Basename: "b.bin"}, DigestOnly},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Classify(r, c.e)
			if got.Decision != c.want {
				t.Fatalf("Classify(%+v) = %v, want %v", c.e, got.Decision, c.want)
			}
		})
	}
}

func TestClassifyExtractsNature(t *testing.T) {
	r := Rules{
		CapturableExecutable: compileMust(t, `surveilr\[(?P<nature>[^\]]*)\]`),
	}
	out := Classify(r, walker.Entry{AbsPath: "/x/probe.surveilr[json].sh", Basename: "probe.surveilr[json].sh"})
	if out.Decision != ExecuteAsResource {
		t.Fatalf("expected ExecuteAsResource, got %v", out.Decision)
	}
	if out.Nature != "json" {
		t.Fatalf("expected nature %q, got %q", "json", out.Nature)
	}
}

func TestClassifyWalkOnlyWhenNothingMatches(t *testing.T) {
	out := Classify(Rules{}, walker.Entry{AbsPath: "/x/plain.txt", Basename: "plain.txt"})
	if out.Decision != WalkOnly {
		t.Fatalf("expected WalkOnly, got %v", out.Decision)
	}
}
