package mount

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

var (
	// sysLstat and sysUnmount are replaceable for testing.
	sysLstat   = unix.Lstat
	sysUnmount = unix.Unmount
)

// IsMountPoint reports whether path is the root of a separate mounted
// filesystem, by comparing the device identifier of path and its parent.
// Both stats are link-aware so a symlink to a mount root is not itself
// treated as one.
//
// If either lstat fails the answer is false. This fail-open default is
// deliberate: the caller's behavior on "mount point" (skip or unmount) is
// more disruptive than treating a borderline path as an ordinary entry.
func IsMountPoint(path string) bool {
	parent := filepath.Dir(path)
	if parent == path {
		// No parent: this is a filesystem root.
		return true
	}

	var st, parentSt unix.Stat_t
	if err := sysLstat(path, &st); err != nil {
		return false
	}
	if err := sysLstat(parent, &parentSt); err != nil {
		return false
	}
	return st.Dev != parentSt.Dev
}

// Unmount detaches the filesystem mounted at path.
func Unmount(path string) error {
	return sysUnmount(path, 0)
}
