package fsops

// FakeMutator implements Mutator for testing
// Records all destructive calls without performing them
type FakeMutator struct {
	Calls []string

	// RemoveErr, when set, is returned from every Remove call.
	RemoveErr error
	// UnmountErr, when set, is returned from every Unmount call.
	UnmountErr error
}

func (f *FakeMutator) Remove(path string) error {
	f.Calls = append(f.Calls, "rm:"+path)
	return f.RemoveErr
}

func (f *FakeMutator) Unmount(path string) error {
	f.Calls = append(f.Calls, "umount:"+path)
	return f.UnmountErr
}
