package engine

// Outcome is the per-path decision of the guarded deletion engine.
// Every path the walk touches produces exactly one Outcome; a directory's
// own outcome follows those of all its children.
type Outcome int

const (
	// OutcomeDeleted: the path was removed (or would have been, under dry run).
	OutcomeDeleted Outcome = iota
	// OutcomeRemovedSymlink: the link itself was removed; its target untouched.
	OutcomeRemovedSymlink
	// OutcomeUnmounted: the path was a mount point and was unmounted.
	OutcomeUnmounted
	// OutcomeSkippedSymlink: symlink, and traversal of links is not permitted.
	OutcomeSkippedSymlink
	// OutcomeSkippedAboveStart: canonical form escapes the starting directory.
	OutcomeSkippedAboveStart
	// OutcomeSkippedHidden: final component starts with a dot.
	OutcomeSkippedHidden
	// OutcomeSkippedMountPoint: mount point, and unmounting is not permitted.
	OutcomeSkippedMountPoint
	// OutcomeSkippedDirectory: directory, and recursion is not permitted.
	OutcomeSkippedDirectory
	// OutcomeError: a filesystem operation failed; recoverable, walk continues.
	OutcomeError
)

// Action returns the structured-log action label for the outcome.
func (o Outcome) Action() string {
	switch o {
	case OutcomeDeleted, OutcomeRemovedSymlink:
		return "DELETE"
	case OutcomeUnmounted:
		return "UNMOUNT"
	case OutcomeError:
		return "ERROR"
	default:
		return "SKIP"
	}
}

// Reason returns the short label used for skip narration, history records,
// and the per-reason skip metric.
func (o Outcome) Reason() string {
	switch o {
	case OutcomeDeleted:
		return "deleted"
	case OutcomeRemovedSymlink:
		return "symlink_removed"
	case OutcomeUnmounted:
		return "unmounted"
	case OutcomeSkippedSymlink:
		return "symlink"
	case OutcomeSkippedAboveStart:
		return "above_start"
	case OutcomeSkippedHidden:
		return "hidden"
	case OutcomeSkippedMountPoint:
		return "mount_point"
	case OutcomeSkippedDirectory:
		return "non_recursive_dir"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Mutating reports whether the outcome changed (or, under dry run, would have
// changed) the filesystem.
func (o Outcome) Mutating() bool {
	switch o {
	case OutcomeDeleted, OutcomeRemovedSymlink, OutcomeUnmounted:
		return true
	}
	return false
}

func (o Outcome) String() string { return o.Reason() }

// Result is the outcome of the decision procedure for a single path.
type Result struct {
	Path    string
	Outcome Outcome
	Err     error // set only for OutcomeError
}

// Summary aggregates a run's results for reporting and exit-code selection.
type Summary struct {
	Deleted         int
	SymlinksRemoved int
	Unmounted       int
	Skipped         int
	Errors          int
}

// Summarize counts results per outcome class.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.Outcome {
		case OutcomeDeleted:
			s.Deleted++
		case OutcomeRemovedSymlink:
			s.SymlinksRemoved++
		case OutcomeUnmounted:
			s.Unmounted++
		case OutcomeError:
			s.Errors++
		default:
			s.Skipped++
		}
	}
	return s
}

// HasErrors reports whether any per-path deletion failed.
func (s Summary) HasErrors() bool { return s.Errors > 0 }
