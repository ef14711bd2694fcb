package ledger

import "errors"

var (
	// ErrUnknownCategory means the picker and the registry disagree on the
	// set of keys.
	ErrUnknownCategory = errors.New("unknown ledger category")
	ErrMissingField    = errors.New("required form value is empty")
	ErrInvalidToken    = errors.New("invalid ledger token")

	ErrMessageNotFound   = errors.New("ledger message not found")
	ErrMalformedSnapshot = errors.New("malformed ledger snapshot")

	// ErrFieldIndexOutOfRange and ErrFieldMismatch signal that the display
	// was not rendered from the current registry.
	ErrFieldIndexOutOfRange = errors.New("category field index out of range")
	ErrFieldMismatch        = errors.New("ledger field does not match category")
)

// IsDrift reports errors caused by a display that no longer matches the
// registry layout. Nothing has been written when one is returned.
func IsDrift(err error) bool {
	return errors.Is(err, ErrFieldIndexOutOfRange) ||
		errors.Is(err, ErrFieldMismatch) ||
		errors.Is(err, ErrMalformedSnapshot)
}
