package identity

import (
	"fmt"

	"github.com/openworm/wormgraph/pkg/utils"
)

var (
	// ErrIdentifierMissing is matched by every *IdentifierMissingError.
	ErrIdentifierMissing = utils.ErrIdentifierMissing

	ErrConflictingIdentity = fmt.Errorf("only one of key or identifier may be given: %w", utils.ErrConfiguration)
	ErrEmptyKey            = fmt.Errorf("cannot make an identifier from an empty key: %w", utils.ErrValidation)
	ErrUnknownHash         = fmt.Errorf("unsupported hash: %w", utils.ErrConfiguration)
)

// IdentifierMissingError reports that no identifier can be produced yet.
// Callers probing several candidates are expected to skip on it.
type IdentifierMissingError struct {
	Entity string
}

func (e *IdentifierMissingError) Error() string {
	return fmt.Sprintf("identifier missing for %s", e.Entity)
}

func (e *IdentifierMissingError) Unwrap() error {
	return ErrIdentifierMissing
}
