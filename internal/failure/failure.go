// Package failure holds the error kinds shared by the extraction pipeline.
package failure

import "errors"

var (
	ErrNavigationTimeout       = errors.New("navigation timeout")
	ErrLocatorNotFound         = errors.New("locator not found")
	ErrAuthenticationFailed    = errors.New("authentication failed")
	ErrSubmissionFailed        = errors.New("submission failed")
	ErrExtractionEmpty         = errors.New("extraction empty")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)

// Retryable reports whether a fresh attempt could change the outcome.
// Rejected credentials stay rejected.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrAuthenticationFailed)
}
