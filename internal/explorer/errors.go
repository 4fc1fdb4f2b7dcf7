package explorer

import "fmt"

// VerificationErrorKind distinguishes terminal verification failures.
type VerificationErrorKind int

const (
	// KindRejected means the explorer processed the submission and
	// declared a mismatch.
	KindRejected VerificationErrorKind = iota
	// KindTimedOut means the explorer never reached a terminal state
	// within the polling window.
	KindTimedOut
	// KindSubmitFailed means the explorer refused the submission itself.
	KindSubmitFailed
)

func (k VerificationErrorKind) String() string {
	switch k {
	case KindRejected:
		return "rejected"
	case KindTimedOut:
		return "timed out"
	case KindSubmitFailed:
		return "submit failed"
	default:
		return "unknown"
	}
}

// VerificationError is a terminal verification failure. GUID is set when
// the explorer accepted the submission before failing it.
type VerificationError struct {
	Kind     VerificationErrorKind
	Contract string
	GUID     string
	Detail   string
}

func (e *VerificationError) Error() string {
	msg := fmt.Sprintf("verification %s for %s", e.Kind, e.Contract)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}
