package fsops

// Mutator abstracts the destructive filesystem operations.
// Enables mocking in tests to prove dry-run never deletes or unmounts.
type Mutator interface {
	// Remove deletes a file, symlink, or empty directory.
	Remove(path string) error
	// Unmount detaches the filesystem mounted at path.
	Unmount(path string) error
}
