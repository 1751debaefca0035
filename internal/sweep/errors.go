package sweep

import "fmt"

// Stage identifies the step of a sweep that failed
type Stage string

const (
	StageResolve Stage = "resolve"
	StageSubject Stage = "subject"
	StageSend    Stage = "send"
	StageUnmark  Stage = "unmark"
)

// Failure is the error returned by Sweep. The sweep stops at the first failure.
type Failure struct {
	Stage    Stage
	Marker   string
	ThreadID string
	Err      error
}

func (f *Failure) Error() string {
	switch f.Stage {
	case StageResolve:
		return fmt.Sprintf("failed to resolve marker %q: %v", f.Marker, f.Err)
	case StageSubject:
		return fmt.Sprintf("failed to read subject of thread %s: %v", f.ThreadID, f.Err)
	case StageSend:
		return fmt.Sprintf("failed to send notification for thread %s: %v", f.ThreadID, f.Err)
	case StageUnmark:
		if f.ThreadID != "" {
			return fmt.Sprintf("failed to remove marker %q from thread %s: %v", f.Marker, f.ThreadID, f.Err)
		}
		return fmt.Sprintf("failed to remove marker %q: %v", f.Marker, f.Err)
	default:
		return fmt.Sprintf("sweep failed: %v", f.Err)
	}
}

func (f *Failure) Unwrap() error {
	return f.Err
}
