package studysync

import (
	"errors"
	"fmt"
)

// Common errors returned by the sync layer.
var (
	// ErrNotFound is returned when a record is not present in a collection.
	ErrNotFound = errors.New("record not found")

	// ErrOffline is returned when a remote operation is skipped because the
	// session is not remote-capable.
	ErrOffline = errors.New("operation unavailable while not remote-capable")

	// ErrNoIdentity is returned when an identity-scoped remote call is
	// attempted without a bound identity.
	ErrNoIdentity = errors.New("no identity bound to session")

	// ErrTokenExpired is returned when the access token has expired. The
	// identity stays bound; remote calls wait for a refreshed token.
	ErrTokenExpired = errors.New("access token expired")

	// ErrInvalidRecord is returned when a record fails adapter validation.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrStoreClosed is returned when operating on a closed client.
	ErrStoreClosed = errors.New("store is closed")

	// ErrIdentityMismatch is returned when a collection's local copy belongs
	// to a different identity than the one currently bound.
	ErrIdentityMismatch = errors.New("local collection belongs to another identity")

	// ErrIdentityChanged is returned when the bound identity changed while a
	// remote call was in flight. Its response is dropped.
	ErrIdentityChanged = errors.New("identity changed during sync")

	// ErrUnknownCollection is returned when a collection name is not registered.
	ErrUnknownCollection = errors.New("unknown collection")
)

// ValidationError is returned when configuration or record validation fails.
// Extractable via errors.As(). Unwraps to ErrInvalidRecord for record
// validation failures.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %s", e.Err, e.Field, e.Message)
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// invalidRecord builds the validation error adapters return for dropped rows.
func invalidRecord(field, msg string) error {
	return &ValidationError{Field: field, Message: msg, Err: ErrInvalidRecord}
}
