package targets

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Status is the outcome of resolving one descriptor.
type Status string

const (
	StatusFound     Status = "found"
	StatusNotFound  Status = "not-found"
	StatusAmbiguous Status = "ambiguous"
)

// ResolvedTarget binds a descriptor to the concrete paths discovered
// under a search root. Resolution never picks between multiple matches;
// that policy belongs to the caller.
type ResolvedTarget struct {
	Descriptor *Descriptor
	Root       string
	// Matches are absolute paths, sorted for determinism.
	Matches    []string
	Status     Status
	Subfolders []*ResolvedTarget
}

// Path returns the single matched path. Only meaningful when Status is
// StatusFound and the descriptor expects one node.
func (r *ResolvedTarget) Path() string {
	if len(r.Matches) == 0 {
		return ""
	}
	return r.Matches[0]
}

// Resolve matches one descriptor against root's subtree. Patterns use
// conventional glob syntax including the recursive-descent `**`
// wildcard. Exclusions do not affect resolution; they scope what the
// aggregator later copies.
func Resolve(root string, d *Descriptor) (*ResolvedTarget, error) {
	rt := &ResolvedTarget{Descriptor: d, Root: root}

	matches, err := glob(root, d.ExpectedPath.Pattern, d.ExpectedPath.Type)
	if err != nil {
		return nil, fmt.Errorf("resolving target %s: %w", d.Name, err)
	}
	rt.Matches = matches

	switch {
	case len(matches) == 0:
		rt.Status = StatusNotFound
	case len(matches) > 1:
		// More than one candidate is surfaced, never silently picked.
		rt.Status = StatusAmbiguous
	default:
		rt.Status = StatusFound
		rt.Subfolders, err = resolveSubfolders(matches[0], d)
		if err != nil {
			return nil, err
		}
	}
	return rt, nil
}

// ResolveAll resolves a set of sibling descriptors. Descriptors touch
// disjoint paths, so failures are independent; the first hard error
// (filesystem, not match status) aborts.
func ResolveAll(root string, descriptors []*Descriptor) ([]*ResolvedTarget, error) {
	out := make([]*ResolvedTarget, 0, len(descriptors))
	for _, d := range descriptors {
		rt, err := Resolve(root, d)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, nil
}

// ResolveSubfoldersUnder re-resolves a descriptor's subfolders against a
// specific matched node. Used by the aggregator after an ambiguity
// policy has chosen between candidates.
func ResolveSubfoldersUnder(matched string, d *Descriptor) ([]*ResolvedTarget, error) {
	return resolveSubfolders(matched, d)
}

func resolveSubfolders(matched string, d *Descriptor) ([]*ResolvedTarget, error) {
	if len(d.Subfolders) == 0 {
		return nil, nil
	}
	// Subfolders resolve relative to the matched node, enabling e.g.
	// "copy only this run's metadata folder".
	base := matched
	if d.ExpectedPath.Type == PathFile {
		base = filepath.Dir(matched)
	}
	names := make([]string, 0, len(d.Subfolders))
	for name := range d.Subfolders {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []*ResolvedTarget
	for _, name := range names {
		rt, err := Resolve(base, d.Subfolders[name])
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, nil
}

func glob(root, pattern string, want PathType) ([]string, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}
	rel, err := doublestar.Glob(os.DirFS(root), pattern)
	if err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}

	var matches []string
	for _, m := range rel {
		abs := filepath.Join(root, filepath.FromSlash(m))
		info, err := os.Stat(abs)
		if err != nil {
			if _, ok := err.(*fs.PathError); ok {
				continue
			}
			return nil, err
		}
		if want == PathFile && info.IsDir() {
			continue
		}
		if want == PathFolder && !info.IsDir() {
			continue
		}
		matches = append(matches, abs)
	}
	sort.Strings(matches)
	return matches, nil
}
