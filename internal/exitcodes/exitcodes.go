package exitcodes

// Exit codes for the saferm CLI
// These codes form the scripting contract with callers
const (
	Success         = 0 // Walk completed with no deletion errors
	InvalidPath     = 2 // Target path does not exist or cannot be queried
	SafetyViolation = 3 // Target is (or resolves into) a protected system path
	DeletionErrors  = 4 // Walk completed but one or more deletions failed
)
