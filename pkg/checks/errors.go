package checks

import "fmt"

// PermissionDenied marks a check that failed because the account lacks a
// capability. The runner treats it as a soft failure: the check contributes
// nothing and the scan proceeds.
type PermissionDenied struct {
	Capability string
	Err        error
}

func (e *PermissionDenied) Error() string {
	if e.Capability == "" {
		return "permission denied"
	}
	return fmt.Sprintf("permission denied: missing %s", e.Capability)
}

func (e *PermissionDenied) Unwrap() error { return e.Err }

// TransientFailure marks a check that failed for a reason that would likely
// clear on retry (throttling, timeouts, 5xx).
type TransientFailure struct {
	Err error
}

func (e *TransientFailure) Error() string { return fmt.Sprintf("transient failure: %v", e.Err) }
func (e *TransientFailure) Unwrap() error { return e.Err }

// Fatal marks a check that failed for good. Still absorbed by the runner;
// only connection establishment can fail a scan.
type Fatal struct {
	Err error
}

func (e *Fatal) Error() string { return fmt.Sprintf("check failed: %v", e.Err) }
func (e *Fatal) Unwrap() error { return e.Err }
