package ledger

import "errors"

var (
	ErrInvalidQuantity        = errors.New("ledger: invalid quantity")
	ErrInvalidKey             = errors.New("ledger: invalid key")
	ErrSizeNotFound           = errors.New("ledger: size not found")
	ErrVariantNotFound        = errors.New("ledger: variant not found")
	ErrInsufficientStock      = errors.New("ledger: insufficient stock")
	ErrNoReservationToRelease = errors.New("ledger: no reservation to release")
	ErrInvariantViolated      = errors.New("ledger: invariant violated")

	// ErrVersionConflict is returned by repositories when the stored version
	// no longer matches the one the caller read.
	ErrVersionConflict = errors.New("ledger: version conflict")
	// ErrAlreadyExists is returned by Create when the entry id is taken.
	ErrAlreadyExists = errors.New("ledger: entry already exists")
	// ErrSKUInUse means the variant SKU already belongs to another product.
	ErrSKUInUse = errors.New("ledger: variant sku belongs to another product")
	// ErrAlreadySeeded is returned when initial stock is offered for a variant
	// that already has an entry.
	ErrAlreadySeeded = errors.New("ledger: variant already seeded")
	// ErrConcurrentModification is returned once write retries are exhausted.
	ErrConcurrentModification = errors.New("ledger: concurrent modification")
)

const (
	ReasonInvalidQuantity   = "invalid_quantity"
	ReasonInvalidRequest    = "invalid_request"
	ReasonSizeNotFound      = "size_not_found"
	ReasonVariantNotFound   = "variant_not_found"
	ReasonInsufficientStock = "insufficient_stock"
	ReasonNoReservation     = "no_reservation"
	ReasonAlreadySeeded     = "already_seeded"
	ReasonConflict          = "conflict"
	ReasonInternal          = "internal"
)

// Reason maps an engine error to its stable machine-readable code.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidQuantity):
		return ReasonInvalidQuantity
	case errors.Is(err, ErrInvalidKey):
		return ReasonInvalidRequest
	case errors.Is(err, ErrSizeNotFound):
		return ReasonSizeNotFound
	case errors.Is(err, ErrVariantNotFound):
		return ReasonVariantNotFound
	case errors.Is(err, ErrInsufficientStock):
		return ReasonInsufficientStock
	case errors.Is(err, ErrNoReservationToRelease):
		return ReasonNoReservation
	case errors.Is(err, ErrAlreadySeeded):
		return ReasonAlreadySeeded
	case errors.Is(err, ErrConcurrentModification), errors.Is(err, ErrSKUInUse):
		return ReasonConflict
	default:
		return ReasonInternal
	}
}

// IsBusinessError reports whether err is an expected stock outcome rather
// than a system fault.
func IsBusinessError(err error) bool {
	switch Reason(err) {
	case ReasonInternal, ReasonConflict, "":
		return false
	}
	return true
}
