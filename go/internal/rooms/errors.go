package rooms

import "errors"

var (
	// ErrNotFound covers a room that never existed, already resolved or expired,
	// and a participant that is not seated in it. Callers cannot tell these apart.
	ErrNotFound = errors.New("room not found")

	// ErrRoomFull is returned when joining a room that already has two players.
	ErrRoomFull = errors.New("room is full")

	// ErrStoreFailure wraps any persistence failure.
	ErrStoreFailure = errors.New("store unavailable")

	// ErrValidation is returned for malformed input, before the store is touched.
	ErrValidation = errors.New("invalid request")

	errDuplicateID = errors.New("duplicate room id")
)
