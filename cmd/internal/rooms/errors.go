package rooms

import "errors"

// Sentinel errors for room operations. The socket dispatcher maps them
// one-to-one onto wire error codes; soft move rejections are not errors
// (see Service.MatchMove).
var (
	// ErrRoomNotFound indicates the referenced room does not exist, or the
	// caller's index entry went stale.
	ErrRoomNotFound = errors.New("room not found")

	// ErrNotInRoom indicates the caller is not in any room.
	ErrNotInRoom = errors.New("not in room")

	// ErrSeatTaken indicates the target seat is held by another user.
	ErrSeatTaken = errors.New("seat taken")

	// ErrInvalidRoomState indicates the operation is not valid in the room's
	// current state (seating/readying while playing, moving while waiting).
	ErrInvalidRoomState = errors.New("invalid room state")

	// ErrMatchNotFound indicates a playing room with no match attached.
	ErrMatchNotFound = errors.New("match not found")

	// ErrNotSeated indicates the caller must hold a seat for this operation.
	ErrNotSeated = errors.New("not seated")
)
