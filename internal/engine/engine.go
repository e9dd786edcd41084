package engine

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"saferm/internal/config"
	"saferm/internal/fsops"
	"saferm/internal/metrics"
	"saferm/internal/mount"
	"saferm/internal/safety"
)

// Logger interface for structured logging in the engine
type Logger interface {
	Info(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// stdLogger wraps standard log.Logger to implement Logger interface
type stdLogger struct {
	*log.Logger
}

func (l *stdLogger) Info(msg string, args ...interface{}) {
	l.logWithLevel("INFO", msg, args...)
}

func (l *stdLogger) Error(msg string, args ...interface{}) {
	l.logWithLevel("ERROR", msg, args...)
}

func (l *stdLogger) logWithLevel(level, msg string, args ...interface{}) {
	parts := []interface{}{fmt.Sprintf("[%s]", level), msg}
	// args are key/value pairs; render them key=value like the narration lines.
	for i := 0; i+1 < len(args); i += 2 {
		parts = append(parts, fmt.Sprintf("%v=%v", args[i], args[i+1]))
	}
	if len(args)%2 != 0 {
		parts = append(parts, args[len(args)-1])
	}
	l.Logger.Println(parts...)
}

// Recorder receives every Result for persistence (deletion history).
type Recorder interface {
	Record(r Result) error
}

// ErrPathInvalid is returned from Run when the target itself does not exist
// or cannot be queried. It is the only fatal error; everything after startup
// is a per-path Result.
var ErrPathInvalid = errors.New("target path invalid")

// Engine applies the ordered safety predicates to each candidate path and
// performs the depth-first traversal for directories. One Engine serves one
// run; the options are fixed at construction.
type Engine struct {
	opts     config.Options
	fs       fsops.Mutator
	isMount  func(string) bool
	logger   Logger
	recorder Recorder
	results  []Result
}

// New creates an Engine with real filesystem capabilities.
func New(opts config.Options, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		opts:    opts,
		fs:      fsops.OSMutator{},
		isMount: mount.IsMountPoint,
		logger:  &stdLogger{Logger: logger},
	}
}

// SetMutator replaces the destructive-operation capability (testing).
func (e *Engine) SetMutator(m fsops.Mutator) { e.fs = m }

// SetMountCheck replaces the mount boundary detector (testing).
func (e *Engine) SetMountCheck(fn func(string) bool) { e.isMount = fn }

// SetRecorder attaches a deletion-history recorder.
func (e *Engine) SetRecorder(r Recorder) { e.recorder = r }

// Run applies the decision procedure to target and, for directories, to
// every descendant. It returns one Result per visited path in visit order;
// a directory's own result follows all of its children's.
//
// Only target validation is fatal. Every per-path failure is isolated to
// that path and never interrupts sibling or ancestor processing.
func (e *Engine) Run(target string) ([]Result, error) {
	if e.opts.StartingDir == "" || !filepath.IsAbs(e.opts.StartingDir) {
		return nil, fmt.Errorf("%w: starting directory not set", ErrPathInvalid)
	}
	if _, err := os.Lstat(target); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPathInvalid, err)
	}

	e.results = e.results[:0]
	e.deleteOne(target)
	return e.results, nil
}

// deleteOne runs the ordered decision procedure for a single path.
// First matching rule wins; the order is a safety ranking in which every
// structural danger check precedes the destructive action.
func (e *Engine) deleteOne(path string) Result {
	info, err := os.Lstat(path)
	if err != nil {
		return e.record(Result{Path: path, Outcome: OutcomeError, Err: fmt.Errorf("stat: %w", err)})
	}

	// 1. Symlink classification. RemoveSymlinks takes precedence over
	// EnterSymlinks: the link itself goes, its target is never touched.
	if info.Mode()&os.ModeSymlink != 0 {
		if e.opts.RemoveSymlinks {
			return e.removeSymlink(path)
		}
		if !e.opts.EnterSymlinks {
			return e.record(Result{Path: path, Outcome: OutcomeSkippedSymlink})
		}
		// Traversal permitted: the checks below see the dereferenced path.
	}

	// 2. Root boundary. A symlink or relative traversal must not escape
	// the starting directory.
	if !e.opts.AllowAboveStart {
		resolved, err := safety.Canonicalize(path)
		if err != nil {
			return e.record(Result{Path: path, Outcome: OutcomeError, Err: fmt.Errorf("resolve: %w", err)})
		}
		if !safety.WithinRoot(resolved, e.opts.StartingDir) {
			return e.record(Result{Path: path, Outcome: OutcomeSkippedAboveStart})
		}
	}

	// 3. Hidden entry.
	if !e.opts.AllowHidden && strings.HasPrefix(filepath.Base(path), ".") {
		return e.record(Result{Path: path, Outcome: OutcomeSkippedHidden})
	}

	// 4. Mount boundary. An unmount is terminal; the point itself is not
	// deleted and its contents are never enumerated.
	if e.isMount(path) {
		if e.opts.Unmount {
			return e.unmount(path)
		}
		return e.record(Result{Path: path, Outcome: OutcomeSkippedMountPoint})
	}

	// 5. Directory handling: children first, the directory itself after.
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		if !e.opts.Recursive {
			return e.record(Result{Path: path, Outcome: OutcomeSkippedDirectory})
		}
		if e.opts.Verbose {
			e.logger.Info("recursing into directory", "path", path)
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return e.record(Result{Path: path, Outcome: OutcomeError, Err: fmt.Errorf("read dir: %w", err)})
		}
		for _, entry := range entries {
			// Each child gets the full decision procedure; a child's
			// skip or failure never aborts its siblings.
			e.deleteOne(filepath.Join(path, entry.Name()))
		}
	}

	// 6. Terminal deletion of the file or now-emptied directory.
	if e.opts.DryRun {
		return e.record(Result{Path: path, Outcome: OutcomeDeleted})
	}
	if err := e.fs.Remove(path); err != nil {
		return e.record(Result{Path: path, Outcome: OutcomeError, Err: err})
	}
	return e.record(Result{Path: path, Outcome: OutcomeDeleted})
}

func (e *Engine) removeSymlink(path string) Result {
	if e.opts.DryRun {
		return e.record(Result{Path: path, Outcome: OutcomeRemovedSymlink})
	}
	if err := e.fs.Remove(path); err != nil {
		return e.record(Result{Path: path, Outcome: OutcomeError, Err: fmt.Errorf("remove symlink: %w", err)})
	}
	return e.record(Result{Path: path, Outcome: OutcomeRemovedSymlink})
}

func (e *Engine) unmount(path string) Result {
	if e.opts.DryRun {
		return e.record(Result{Path: path, Outcome: OutcomeUnmounted})
	}
	if err := e.fs.Unmount(path); err != nil {
		return e.record(Result{Path: path, Outcome: OutcomeError, Err: fmt.Errorf("unmount: %w", err)})
	}
	return e.record(Result{Path: path, Outcome: OutcomeUnmounted})
}

// record appends the result, narrates it, updates metrics, and persists it
// to the recorder when one is attached.
func (e *Engine) record(r Result) Result {
	e.results = append(e.results, r)

	e.narrate(r)

	metrics.PathsExaminedTotal.Inc()
	switch {
	case r.Outcome == OutcomeUnmounted:
		metrics.UnmountsTotal.Inc()
	case r.Outcome.Mutating():
		metrics.DeletionsTotal.Inc()
	case r.Outcome == OutcomeError:
		metrics.ErrorsTotal.Inc()
	default:
		metrics.SkipsTotal.WithLabelValues(r.Outcome.Reason()).Inc()
	}

	if e.recorder != nil {
		if err := e.recorder.Record(r); err != nil {
			// History is best effort; never fail the walk over it.
			e.logger.Error("failed to record history", "error", err)
		}
	}
	return r
}

// narrate logs with structured format: timestamp, action, path, reason
func (e *Engine) narrate(r Result) {
	action := r.Outcome.Action()
	if e.opts.DryRun && r.Outcome.Mutating() {
		action = "DRY_RUN"
	}

	logEntry := fmt.Sprintf("[%s] %s path=%s reason=%s",
		time.Now().UTC().Format(time.RFC3339),
		action,
		r.Path,
		r.Outcome.Reason(),
	)
	if r.Err != nil {
		logEntry += fmt.Sprintf(` error="%s"`, strings.ReplaceAll(r.Err.Error(), `"`, `\"`))
	}

	if r.Outcome == OutcomeError {
		e.logger.Error(logEntry)
		return
	}
	e.logger.Info(logEntry)
}
