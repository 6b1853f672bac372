package document

import "errors"

var (
	// ErrValidation is returned for malformed caller input, such as a
	// non-positive amount. Non-retryable.
	ErrValidation = errors.New("validation failed")

	// ErrConfiguration indicates a workflow policy or rule table defect.
	// Non-retryable; fix the configuration.
	ErrConfiguration = errors.New("invalid workflow configuration")

	// ErrInvalidState is returned when an operation is not permitted in
	// the document's current status.
	ErrInvalidState = errors.New("operation not allowed in current document state")

	// ErrNoPendingApproval is returned when no pending step is awaiting
	// the acting level, or the step is not yet active.
	ErrNoPendingApproval = errors.New("no pending approval step for level")

	// ErrAlreadyDecided is returned when the targeted step was already
	// approved or rejected. Retryable by reloading the document.
	ErrAlreadyDecided = errors.New("approval step already decided")

	// ErrEscalationExhausted is returned when escalating from the
	// top-ranked level.
	ErrEscalationExhausted = errors.New("no higher level to escalate to")

	// ErrNotAuthorized is returned when a role or user cannot be resolved
	// to an approval level, or a delegation crosses levels.
	ErrNotAuthorized = errors.New("not authorized for this approval")

	// ErrConcurrencyConflict is returned when a commit loses a version
	// race. Retryable: reload the document and recompute the decision.
	ErrConcurrencyConflict = errors.New("document was modified concurrently")

	// ErrNotFound is returned when a document id is unknown to storage.
	ErrNotFound = errors.New("document not found")
)
