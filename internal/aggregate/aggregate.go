// Package aggregate copies resolved targets into a canonical destination
// tree. Copies are atomic per file and idempotent per target: re-running
// against an unchanged source reports every file as already present.
package aggregate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/seqlab/warehouse/internal/models"
	"github.com/seqlab/warehouse/internal/targets"
)

// AmbiguousPolicy decides what to do when a target resolved to more
// than one candidate path. The resolver never picks; the caller must.
type AmbiguousPolicy int

const (
	// AmbiguousFail marks the target failed. Default.
	AmbiguousFail AmbiguousPolicy = iota
	// AmbiguousNewest picks the candidate with the newest mtime.
	AmbiguousNewest
)

// State is the terminal state of one target after an aggregation pass.
type State string

const (
	StatePending  State = "pending"
	StateCopied   State = "copied"
	StateSkipped  State = "skipped" // already-present or nothing to copy
	StateFailed   State = "failed"
	StateNotFound State = "not-found"
)

// TargetResult reports the outcome for one target.
type TargetResult struct {
	Name         string          `json:"name"`
	Source       string          `json:"source,omitempty"`
	Destination  string          `json:"destination,omitempty"`
	Status       targets.Status  `json:"status"`
	State        State           `json:"state"`
	FilesCopied  int             `json:"filesCopied"`
	FilesSkipped int             `json:"filesSkipped"`
	Error        string          `json:"error,omitempty"`
	Subfolders   []*TargetResult `json:"subfolders,omitempty"`
}

// Report is the outcome of one aggregation pass. Individual target
// failures are collected here, never fatal to the run.
type Report struct {
	DestinationRoot string          `json:"destinationRoot"`
	Results         []*TargetResult `json:"results"`
	Issues          []models.Issue  `json:"issues,omitempty"`
}

// Options tune an aggregation pass.
type Options struct {
	Ambiguous AmbiguousPolicy
}

// Aggregate copies every found target into destRoot/<target name>/….
// Sources are only ever read, keeping the tree intact for re-runs.
func Aggregate(resolved []*targets.ResolvedTarget, destRoot string, opts Options) (*Report, error) {
	if err := os.MkdirAll(destRoot, 0o755); err != nil {
		return nil, &Error{Dest: destRoot, Err: err}
	}
	report := &Report{DestinationRoot: destRoot}
	for _, rt := range resolved {
		res := aggregateTarget(rt, filepath.Join(destRoot, rt.Descriptor.Name), opts, &report.Issues)
		report.Results = append(report.Results, res)
	}
	return report, nil
}

// Error reports an unwritable destination.
type Error struct {
	Dest string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("aggregating into %s: %v", e.Dest, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func aggregateTarget(rt *targets.ResolvedTarget, destDir string, opts Options, issues *[]models.Issue) *TargetResult {
	d := rt.Descriptor
	res := &TargetResult{
		Name:        d.Name,
		Destination: destDir,
		Status:      rt.Status,
		State:       StatePending,
	}

	source := rt.Path()
	subfolders := rt.Subfolders

	switch rt.Status {
	case targets.StatusNotFound:
		res.State = StateNotFound
		*issues = append(*issues, models.Issue{
			Kind:   models.IssueTargetNotFound,
			Detail: fmt.Sprintf("target %s: pattern %q matched nothing under %s", d.Name, d.ExpectedPath.Pattern, rt.Root),
		})
		return res

	case targets.StatusAmbiguous:
		*issues = append(*issues, models.Issue{
			Kind:   models.IssueTargetAmbiguous,
			Detail: fmt.Sprintf("target %s: pattern %q matched %d paths under %s", d.Name, d.ExpectedPath.Pattern, len(rt.Matches), rt.Root),
		})
		if opts.Ambiguous == AmbiguousFail {
			res.State = StateFailed
			res.Error = fmt.Sprintf("%d candidate paths", len(rt.Matches))
			return res
		}
		picked, err := newestPath(rt.Matches)
		if err != nil {
			res.State = StateFailed
			res.Error = err.Error()
			return res
		}
		source = picked
		subfolders, err = targets.ResolveSubfoldersUnder(picked, d)
		if err != nil {
			res.State = StateFailed
			res.Error = err.Error()
			return res
		}
	}

	res.Source = source

	copied, skipped, err := copyTarget(source, destDir, d)
	res.FilesCopied, res.FilesSkipped = copied, skipped
	if err != nil {
		res.State = StateFailed
		res.Error = err.Error()
		*issues = append(*issues, models.Issue{
			Kind:   models.IssueCopyFailed,
			Detail: fmt.Sprintf("target %s: %v", d.Name, err),
		})
		return res
	}
	// Copied only when something actually moved; an all-present pass and
	// an empty source both report as skipped.
	if copied > 0 {
		res.State = StateCopied
	} else {
		res.State = StateSkipped
	}

	// Nested subfolder descriptors get their own pass under the parent
	// destination, overriding the parent's recursion choice.
	for _, sub := range subfolders {
		subRes := aggregateTarget(sub, filepath.Join(destDir, sub.Descriptor.Name), opts, issues)
		res.Subfolders = append(res.Subfolders, subRes)
	}
	return res
}

func newestPath(paths []string) (string, error) {
	best := ""
	var bestMod int64
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return "", err
		}
		if best == "" || info.ModTime().UnixNano() > bestMod {
			best, bestMod = p, info.ModTime().UnixNano()
		}
	}
	return best, nil
}
