package reconciler

import "fmt"

// ReconcileError is the typed failure returned by the lifecycle and ledger operations.
type ReconcileError string

func (e ReconcileError) Error() string {
	return string(e)
}

const (
	ErrSessionNotFound ReconcileError = "session not found"
	ErrInvalidState    ReconcileError = "invalid state"
	ErrBotParticipant  ReconcileError = "participant is an automated account"
	ErrStoreFailure    ReconcileError = "store failure"
)

func storeFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreFailure, op, err)
}

func invalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}
