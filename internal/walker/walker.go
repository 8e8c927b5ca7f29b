// Package walker enumerates file-system roots for ingestion (spec §4.5):
// depth-first pre-order, roots visited in the order supplied, ignore regexes
// pruning whole subtrees, symlink cycles broken silently, and unreadable
// directories reported rather than aborting the walk.
//
// Grounded on gravwell-gravwell's filepath.Walk-based directory enumeration
// (ingesters/massFile/processing.go). The recursion here is hand-written over
// os.ReadDir, so the error for an unreadable directory is in hand before
// descending into it, which is exactly the hook (e) needs.
package walker

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Kind classifies a walked entry.
type Kind int

const (
	KindFile Kind = iota
	KindDir
	KindSymlink
)

// Entry is one node the walker yields.
type Entry struct {
	AbsPath      string
	RelParent    string
	RelPath      string
	Basename     string
	Ext          string
	Kind         Kind
	Size         int64
	LastModified int64 // unix nanos; 0 if unknown (e.g. diagnostic entries)

	// Err is set for a diagnostic entry: an unreadable directory that was
	// skipped rather than aborting the walk (spec §4.5 (e)).
	Err error
}

// Options configures a walk.
type Options struct {
	// IgnorePatterns: an entry whose abs path matches any of these yields no
	// children (spec §4.5 (c)) and is not itself emitted.
	IgnorePatterns []*regexp.Regexp
	FollowSymlinks bool
}

// Walk enumerates every root in order, calling visit for each entry in
// depth-first pre-order. Returning an error from visit stops the walk
// entirely (used for cancellation); any other error is recorded as a
// diagnostic entry and the walk continues.
func Walk(roots []string, opts Options, visit func(Entry) error) error {
	seen := make(map[string]struct{}) // canonical dir paths on the current root-to-node path

	for _, root := range roots {
		if err := walkOne(root, opts, seen, visit); err != nil {
			return err
		}
	}
	return nil
}

func walkOne(root string, opts Options, seen map[string]struct{}, visit func(Entry) error) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return visit(Entry{AbsPath: root, Kind: KindDir, Err: err})
	}
	return walkDir(absRoot, absRoot, opts, seen, visit)
}

// walkDir descends into dir, which the caller has already decided is worth
// entering. Directories themselves never produce a uniform_resource, so the
// only entries emitted here are files, symlinks, and diagnostics for
// directories that could not be read.
func walkDir(root, dir string, opts Options, seen map[string]struct{}, visit func(Entry) error) error {
	canon, err := filepath.EvalSymlinks(dir)
	if err != nil {
		canon = dir
	}
	if _, cyclic := seen[canon]; cyclic {
		return nil // symlink cycle: break silently (spec §4.5 (d))
	}
	seen[canon] = struct{}{}
	defer delete(seen, canon)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return visit(entryFor(root, dir, nil, KindDir, err))
	}

	for _, de := range entries {
		abs := filepath.Join(dir, de.Name())
		if isIgnored(opts.IgnorePatterns, abs, de.IsDir()) {
			continue // ignored: no children emitted either (spec §4.5 (c))
		}

		info, infoErr := de.Info()
		kind := classifyKind(de)

		if kind == KindSymlink && !opts.FollowSymlinks {
			if err := visit(entryFor(root, abs, info, KindSymlink, infoErr)); err != nil {
				return err
			}
			continue
		}

		isDir := de.IsDir()
		if kind == KindSymlink && opts.FollowSymlinks {
			target, statErr := os.Stat(abs)
			if statErr != nil {
				if err := visit(entryFor(root, abs, nil, KindSymlink, statErr)); err != nil {
					return err
				}
				continue
			}
			isDir = target.IsDir()
			info = target
		}

		if isDir {
			if err := walkDir(root, abs, opts, seen, visit); err != nil {
				return err
			}
			continue
		}

		if err := visit(entryFor(root, abs, info, kind, infoErr)); err != nil {
			return err
		}
	}
	return nil
}

func classifyKind(de os.DirEntry) Kind {
	if de.Type()&os.ModeSymlink != 0 {
		return KindSymlink
	}
	if de.IsDir() {
		return KindDir
	}
	return KindFile
}

func entryFor(root, abs string, info os.FileInfo, kind Kind, err error) Entry {
	relParent, _ := filepath.Rel(root, filepath.Dir(abs))
	rel, _ := filepath.Rel(root, abs)
	e := Entry{
		AbsPath:   abs,
		RelParent: relParent,
		RelPath:   rel,
		Basename:  filepath.Base(abs),
		Kind:      kind,
		Err:       err,
	}
	if ext := filepath.Ext(abs); ext != "" {
		e.Ext = strings.TrimPrefix(ext, ".")
	}
	if info != nil {
		e.Size = info.Size()
		e.LastModified = info.ModTime().UnixNano()
	}
	return e
}

func matchesAny(patterns []*regexp.Regexp, path string) bool {
	for _, p := range patterns {
		if p.MatchString(path) {
			return true
		}
	}
	return false
}

// isIgnored tests path against every ignore pattern. Directories are also
// tested with a trailing separator appended, so a boundary-style pattern
// like `/\.git/` matches the .git directory itself, not only its children.
func isIgnored(patterns []*regexp.Regexp, path string, isDir bool) bool {
	if matchesAny(patterns, path) {
		return true
	}
	if isDir && matchesAny(patterns, path+string(filepath.Separator)) {
		return true
	}
	return false
}

// CompileAll compiles a set of regex patterns, returning the first error.
func CompileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}
