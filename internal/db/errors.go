package db

import "errors"

// Domain-level database error sentinels.
var (
	// Score errors
	ErrItemNotFound = errors.New("scored item not found")

	// Reservation errors
	ErrReservationNotFound = errors.New("reservation not found")

	// Metadata errors
	ErrMetadataNotFound = errors.New("edit metadata not found")
)
