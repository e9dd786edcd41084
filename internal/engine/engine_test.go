package engine

import (
	"bytes"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"saferm/internal/config"
	"saferm/internal/fsops"
	"saferm/internal/safety"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// newVictimTree builds the canonical test tree:
// victim/{a.txt, .secret, sub/b.txt}
func newVictimTree(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	victim := filepath.Join(tmpDir, "victim")
	mustMkdir(t, victim)
	mustWrite(t, filepath.Join(victim, "a.txt"))
	mustWrite(t, filepath.Join(victim, ".secret"))
	mustMkdir(t, filepath.Join(victim, "sub"))
	mustWrite(t, filepath.Join(victim, "sub", "b.txt"))
	return victim
}

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("failed to create dir %s: %v", path, err)
	}
}

func mustWrite(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("test"), 0o644); err != nil {
		t.Fatalf("failed to create file %s: %v", path, err)
	}
}

func canonical(t *testing.T, path string) string {
	t.Helper()
	p, err := safety.Canonicalize(path)
	if err != nil {
		t.Fatalf("failed to canonicalize %s: %v", path, err)
	}
	return p
}

// newTestEngine builds an engine over a fake mutator and a hermetic mount
// check that reports no mount points.
func newTestEngine(opts config.Options) (*Engine, *fsops.FakeMutator) {
	fake := &fsops.FakeMutator{Calls: []string{}}
	eng := New(opts, discardLogger())
	eng.SetMutator(fake)
	eng.SetMountCheck(func(string) bool { return false })
	return eng, fake
}

type step struct {
	base    string
	outcome Outcome
}

func checkResults(t *testing.T, victim string, results []Result, want []step) {
	t.Helper()
	if len(results) != len(want) {
		t.Fatalf("got %d results, expected %d: %+v", len(results), len(want), results)
	}
	for i, w := range want {
		wantPath := victim
		if w.base != "" {
			wantPath = filepath.Join(victim, w.base)
		}
		if results[i].Path != wantPath {
			t.Errorf("result %d: path = %s, expected %s", i, results[i].Path, wantPath)
		}
		if results[i].Outcome != w.outcome {
			t.Errorf("result %d (%s): outcome = %s, expected %s",
				i, results[i].Path, results[i].Outcome, w.outcome)
		}
	}
}

// TestDryRunNeverDeletes proves the dry-run contract:
// when DryRun is set, ZERO destructive syscalls may occur, while the
// narrated outcome sequence is a complete preview of a real run.
func TestDryRunNeverDeletes(t *testing.T) {
	victim := newVictimTree(t)

	eng, fake := newTestEngine(config.Options{
		Recursive:   true,
		DryRun:      true,
		StartingDir: canonical(t, victim),
	})

	results, err := eng.Run(victim)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(fake.Calls) != 0 {
		t.Errorf("DRY-RUN VIOLATION: expected 0 destructive calls, got %d: %v",
			len(fake.Calls), fake.Calls)
	}

	// os.ReadDir returns entries sorted by name: .secret, a.txt, sub.
	// The directory's own result comes after all of its children's.
	checkResults(t, victim, results, []step{
		{".secret", OutcomeSkippedHidden},
		{"a.txt", OutcomeDeleted},
		{filepath.Join("sub", "b.txt"), OutcomeDeleted},
		{"sub", OutcomeDeleted},
		{"", OutcomeDeleted},
	})
}

// TestDryRunIdempotent: two consecutive dry runs produce identical outcome
// sequences and leave the filesystem unchanged.
func TestDryRunIdempotent(t *testing.T) {
	victim := newVictimTree(t)
	opts := config.Options{
		Recursive:   true,
		DryRun:      true,
		StartingDir: canonical(t, victim),
	}

	eng1, _ := newTestEngine(opts)
	first, err := eng1.Run(victim)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	eng2, _ := newTestEngine(opts)
	second, err := eng2.Run(victim)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("runs differ in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Path != second[i].Path || first[i].Outcome != second[i].Outcome {
			t.Errorf("result %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}

	for _, name := range []string{"a.txt", ".secret", "sub/b.txt"} {
		if _, err := os.Stat(filepath.Join(victim, name)); err != nil {
			t.Errorf("dry run touched the filesystem: %s: %v", name, err)
		}
	}
}

func TestRealRunDeletesThroughMutator(t *testing.T) {
	victim := newVictimTree(t)

	eng, fake := newTestEngine(config.Options{
		Recursive:   true,
		AllowHidden: true,
		StartingDir: canonical(t, victim),
	})

	if _, err := eng.Run(victim); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{
		"rm:" + filepath.Join(victim, ".secret"),
		"rm:" + filepath.Join(victim, "a.txt"),
		"rm:" + filepath.Join(victim, "sub", "b.txt"),
		"rm:" + filepath.Join(victim, "sub"),
		"rm:" + victim,
	}
	if len(fake.Calls) != len(want) {
		t.Fatalf("got %d calls %v, expected %d", len(fake.Calls), fake.Calls, len(want))
	}
	for i := range want {
		if fake.Calls[i] != want[i] {
			t.Errorf("call %d = %s, expected %s", i, fake.Calls[i], want[i])
		}
	}
}

func TestHiddenEntryPolicy(t *testing.T) {
	t.Run("SkippedByDefault", func(t *testing.T) {
		victim := newVictimTree(t)
		eng, fake := newTestEngine(config.Options{
			Recursive:   true,
			StartingDir: canonical(t, victim),
		})

		results, err := eng.Run(filepath.Join(victim, ".secret"))
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if len(results) != 1 || results[0].Outcome != OutcomeSkippedHidden {
			t.Errorf("expected single SkippedHidden result, got %+v", results)
		}
		if len(fake.Calls) != 0 {
			t.Errorf("hidden skip must not mutate, got calls %v", fake.Calls)
		}
	})

	t.Run("AllowedWhenPermitted", func(t *testing.T) {
		victim := newVictimTree(t)
		eng, fake := newTestEngine(config.Options{
			Recursive:   true,
			AllowHidden: true,
			StartingDir: canonical(t, victim),
		})

		results, err := eng.Run(filepath.Join(victim, ".secret"))
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if len(results) != 1 || results[0].Outcome != OutcomeDeleted {
			t.Errorf("expected Deleted result, got %+v", results)
		}
		if len(fake.Calls) != 1 {
			t.Errorf("expected 1 delete call, got %v", fake.Calls)
		}
	})
}

// TestNonRecursiveDirectorySkipped: without Recursive a directory is never
// entered and no descendant is visited.
func TestNonRecursiveDirectorySkipped(t *testing.T) {
	victim := newVictimTree(t)

	eng, fake := newTestEngine(config.Options{
		StartingDir: canonical(t, victim),
	})

	results, err := eng.Run(victim)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	checkResults(t, victim, results, []step{
		{"", OutcomeSkippedDirectory},
	})
	if len(fake.Calls) != 0 {
		t.Errorf("directory skip must not mutate, got calls %v", fake.Calls)
	}
}

func TestSymlinkSkippedByDefault(t *testing.T) {
	victim := newVictimTree(t)
	link := filepath.Join(victim, "escape")
	if err := os.Symlink("/etc", link); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	eng, fake := newTestEngine(config.Options{
		Recursive:   true,
		DryRun:      true,
		StartingDir: canonical(t, victim),
	})

	results, err := eng.Run(link)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 1 || results[0].Outcome != OutcomeSkippedSymlink {
		t.Errorf("expected single SkippedSymlink result, got %+v", results)
	}
	if len(fake.Calls) != 0 {
		t.Errorf("symlink skip must not mutate, got calls %v", fake.Calls)
	}
}

// TestRemoveSymlinkDeletesLinkOnly: with RemoveSymlinks the link itself is
// removed and its target is never touched, regardless of other flags.
func TestRemoveSymlinkDeletesLinkOnly(t *testing.T) {
	victim := newVictimTree(t)
	target := filepath.Join(victim, "a.txt")
	link := filepath.Join(victim, "link-to-a")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	eng := New(config.Options{
		RemoveSymlinks: true,
		EnterSymlinks:  true, // RemoveSymlinks takes precedence
		StartingDir:    canonical(t, victim),
	}, discardLogger())
	eng.SetMountCheck(func(string) bool { return false })

	results, err := eng.Run(link)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 1 || results[0].Outcome != OutcomeRemovedSymlink {
		t.Errorf("expected single RemovedSymlink result, got %+v", results)
	}

	if _, err := os.Lstat(link); !os.IsNotExist(err) {
		t.Errorf("symlink still exists after removal: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Errorf("symlink target was touched: %v", err)
	}
}

// TestSymlinkEscapeSkipped: a traversed symlink resolving outside the
// starting directory is rejected by the root-boundary check.
func TestSymlinkEscapeSkipped(t *testing.T) {
	victim := newVictimTree(t)
	outside := t.TempDir()
	mustWrite(t, filepath.Join(outside, "c.txt"))
	link := filepath.Join(victim, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	eng, fake := newTestEngine(config.Options{
		Recursive:     true,
		EnterSymlinks: true,
		StartingDir:   canonical(t, victim),
	})

	results, err := eng.Run(link)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 1 || results[0].Outcome != OutcomeSkippedAboveStart {
		t.Errorf("expected single SkippedAboveStart result, got %+v", results)
	}
	if len(fake.Calls) != 0 {
		t.Errorf("boundary skip must not mutate, got calls %v", fake.Calls)
	}
	if _, err := os.Stat(filepath.Join(outside, "c.txt")); err != nil {
		t.Errorf("file outside starting dir was touched: %v", err)
	}
}

// TestAllowAboveStartFollowsEscape: with AllowAboveStart set, the same
// escape is traversed and its contents become candidates.
func TestAllowAboveStartFollowsEscape(t *testing.T) {
	victim := newVictimTree(t)
	outside := t.TempDir()
	mustWrite(t, filepath.Join(outside, "c.txt"))
	link := filepath.Join(victim, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	eng, fake := newTestEngine(config.Options{
		Recursive:       true,
		EnterSymlinks:   true,
		AllowAboveStart: true,
		DryRun:          true,
		StartingDir:     canonical(t, victim),
	})

	results, err := eng.Run(link)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []step{
		{"escape/c.txt", OutcomeDeleted},
		{"escape", OutcomeDeleted},
	}
	checkResults(t, victim, results, want)
	if len(fake.Calls) != 0 {
		t.Errorf("dry run must not mutate, got calls %v", fake.Calls)
	}
}

// TestMountPointSkipped: a mount point inside the tree is skipped and its
// contents are never enumerated.
func TestMountPointSkipped(t *testing.T) {
	victim := newVictimTree(t)
	sub := filepath.Join(victim, "sub")

	eng, fake := newTestEngine(config.Options{
		Recursive:   true,
		DryRun:      true,
		StartingDir: canonical(t, victim),
	})
	eng.SetMountCheck(func(p string) bool { return p == sub })

	results, err := eng.Run(victim)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	checkResults(t, victim, results, []step{
		{".secret", OutcomeSkippedHidden},
		{"a.txt", OutcomeDeleted},
		{"sub", OutcomeSkippedMountPoint},
		{"", OutcomeDeleted},
	})
	for _, r := range results {
		if r.Path == filepath.Join(sub, "b.txt") {
			t.Errorf("mount point contents were enumerated: %+v", r)
		}
	}
	if len(fake.Calls) != 0 {
		t.Errorf("dry run must not mutate, got calls %v", fake.Calls)
	}
}

func TestUnmountRequested(t *testing.T) {
	victim := newVictimTree(t)
	sub := filepath.Join(victim, "sub")

	eng, fake := newTestEngine(config.Options{
		Recursive:   true,
		Unmount:     true,
		AllowHidden: true,
		StartingDir: canonical(t, victim),
	})
	eng.SetMountCheck(func(p string) bool { return p == sub })

	results, err := eng.Run(victim)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	checkResults(t, victim, results, []step{
		{".secret", OutcomeDeleted},
		{"a.txt", OutcomeDeleted},
		{"sub", OutcomeUnmounted},
		{"", OutcomeDeleted},
	})

	// The mount point is unmounted, never removed, and never entered.
	for _, call := range fake.Calls {
		if call == "rm:"+sub || call == "rm:"+filepath.Join(sub, "b.txt") {
			t.Errorf("unexpected destructive call on mount point: %s", call)
		}
	}
	found := false
	for _, call := range fake.Calls {
		if call == "umount:"+sub {
			found = true
		}
	}
	if !found {
		t.Errorf("expected unmount call for %s, got %v", sub, fake.Calls)
	}
}

func TestUnmountFailureIsPerPath(t *testing.T) {
	victim := newVictimTree(t)
	sub := filepath.Join(victim, "sub")

	eng, fake := newTestEngine(config.Options{
		Recursive:   true,
		Unmount:     true,
		AllowHidden: true,
		StartingDir: canonical(t, victim),
	})
	fake.UnmountErr = errors.New("device busy")
	eng.SetMountCheck(func(p string) bool { return p == sub })

	results, err := eng.Run(victim)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// The failed unmount is one error among otherwise successful results.
	summary := Summarize(results)
	if summary.Errors != 1 {
		t.Errorf("summary.Errors = %d, expected 1", summary.Errors)
	}
	if summary.Deleted != 3 { // .secret, a.txt, victim itself
		t.Errorf("summary.Deleted = %d, expected 3", summary.Deleted)
	}
}

// TestDeletionErrorContinuesWalk: a failing removal is isolated to its path;
// siblings and ancestors are still processed.
func TestDeletionErrorContinuesWalk(t *testing.T) {
	victim := newVictimTree(t)

	eng, fake := newTestEngine(config.Options{
		Recursive:   true,
		AllowHidden: true,
		StartingDir: canonical(t, victim),
	})
	fake.RemoveErr = errors.New("permission denied")

	results, err := eng.Run(victim)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// All five paths are attempted despite every removal failing.
	if len(results) != 5 {
		t.Fatalf("got %d results, expected 5: %+v", len(results), results)
	}
	summary := Summarize(results)
	if summary.Errors != 5 {
		t.Errorf("summary.Errors = %d, expected 5", summary.Errors)
	}
	if !summary.HasErrors() {
		t.Error("summary.HasErrors() = false with failing deletions")
	}
}

func TestRunInvalidTarget(t *testing.T) {
	eng, _ := newTestEngine(config.Options{
		StartingDir: "/tmp",
	})

	if _, err := eng.Run("/no/such/path/anywhere"); !errors.Is(err, ErrPathInvalid) {
		t.Errorf("Run on missing target: err = %v, expected ErrPathInvalid", err)
	}
}

func TestRunRequiresStartingDir(t *testing.T) {
	eng, _ := newTestEngine(config.Options{})

	if _, err := eng.Run("/tmp"); !errors.Is(err, ErrPathInvalid) {
		t.Errorf("Run without starting dir: err = %v, expected ErrPathInvalid", err)
	}
}

// TestRecorderReceivesEveryResult wires a recording stub where the history
// database normally sits.
type stubRecorder struct {
	records []Result
}

func (s *stubRecorder) Record(r Result) error {
	s.records = append(s.records, r)
	return nil
}

// TestVerboseNarrationUsesKeyValuePairs: progress lines render their
// arguments key=value, matching the structured narration format.
func TestVerboseNarrationUsesKeyValuePairs(t *testing.T) {
	victim := newVictimTree(t)

	var buf bytes.Buffer
	eng := New(config.Options{
		Recursive:   true,
		DryRun:      true,
		Verbose:     true,
		StartingDir: canonical(t, victim),
	}, log.New(&buf, "", 0))
	eng.SetMutator(&fsops.FakeMutator{})
	eng.SetMountCheck(func(string) bool { return false })

	if _, err := eng.Run(victim); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "path="+victim) {
		t.Errorf("verbose narration lacks key=value pair %q:\n%s", "path="+victim, out)
	}
	if strings.Contains(out, "path "+victim) {
		t.Errorf("verbose narration still uses bare space-separated tokens:\n%s", out)
	}
}

func TestRecorderReceivesEveryResult(t *testing.T) {
	victim := newVictimTree(t)

	eng, _ := newTestEngine(config.Options{
		Recursive:   true,
		DryRun:      true,
		StartingDir: canonical(t, victim),
	})
	rec := &stubRecorder{}
	eng.SetRecorder(rec)

	results, err := eng.Run(victim)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(rec.records) != len(results) {
		t.Errorf("recorder saw %d results, expected %d", len(rec.records), len(results))
	}
}
