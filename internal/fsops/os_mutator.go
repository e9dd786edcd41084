package fsops

import (
	"os"

	"saferm/internal/mount"
)

// OSMutator implements Mutator using real syscalls
type OSMutator struct{}

func (OSMutator) Remove(path string) error {
	return os.Remove(path)
}

func (OSMutator) Unmount(path string) error {
	return mount.Unmount(path)
}
