package aggregate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/seqlab/warehouse/internal/targets"
)

// copyTarget copies one matched path into destDir, honouring the
// descriptor's exclusions and recursion flag. Returns files copied and
// files skipped as already present.
func copyTarget(source, destDir string, d *targets.Descriptor) (copied, skipped int, err error) {
	info, err := os.Stat(source)
	if err != nil {
		return 0, 0, err
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return 0, 0, &Error{Dest: destDir, Err: err}
	}

	if !info.IsDir() {
		did, err := copyFile(source, filepath.Join(destDir, filepath.Base(source)))
		if err != nil {
			return 0, 0, err
		}
		if did {
			return 1, 0, nil
		}
		return 0, 1, nil
	}

	// Folder target: source designates a subtree root; exclusions are
	// evaluated relative to it.
	entries, err := collectFiles(source, d.Recursive)
	if err != nil {
		return 0, 0, err
	}
	for _, rel := range entries {
		if excluded(rel, d.Exclusions) {
			continue
		}
		dest := filepath.Join(destDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return copied, skipped, &Error{Dest: dest, Err: err}
		}
		did, err := copyFile(filepath.Join(source, filepath.FromSlash(rel)), dest)
		if err != nil {
			return copied, skipped, err
		}
		if did {
			copied++
		} else {
			skipped++
		}
	}
	return copied, skipped, nil
}

// collectFiles lists files under root as slash-separated relative
// paths. Non-recursive means direct children only: never descend into
// the folder's own subfolders.
func collectFiles(root string, recursive bool) ([]string, error) {
	if !recursive {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, err
		}
		var out []string
		for _, e := range entries {
			if e.Type().IsRegular() {
				out = append(out, e.Name())
			}
		}
		return out, nil
	}

	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	return out, err
}

func excluded(rel string, exclusions []string) bool {
	for _, pattern := range exclusions {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		// A bare name pattern also excludes anything beneath a matching
		// directory, mirroring rsync --exclude semantics.
		if ok, _ := doublestar.Match(pattern+"/**", rel); ok {
			return true
		}
	}
	return false
}

// copyFile copies src to dest atomically (temp then rename) and reports
// whether a copy actually happened. A destination with identical size
// and an mtime no older than the source counts as already present.
func copyFile(src, dest string) (bool, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false, err
	}
	if destInfo, err := os.Stat(dest); err == nil {
		if destInfo.Size() == srcInfo.Size() && !destInfo.ModTime().Before(srcInfo.ModTime()) {
			return false, nil
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return false, err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return false, &Error{Dest: dest, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return false, &Error{Dest: dest, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return false, &Error{Dest: dest, Err: err}
	}
	// Carry the source mtime so the skip-if-present check stays stable
	// across runs.
	if err := os.Chtimes(tmpName, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		return false, &Error{Dest: dest, Err: err}
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return false, &Error{Dest: dest, Err: fmt.Errorf("rename: %w", err)}
	}
	return true, nil
}
