// Package v1 defines the Goban realtime protocol v1 contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between the server and client tooling to keep the wire
// protocol authoritative.
package v1

// Version is the protocol version embedded into every envelope.
const Version = 1

// BoardSize is the board edge length; matches are played on a 15x15 grid.
const BoardSize = 15

// Request types (client -> server).
const (
	// TypeRoomCreate creates a room with the caller seated Black.
	TypeRoomCreate = "room.create"
	// TypeRoomJoin joins an existing room as a spectator.
	TypeRoomJoin = "room.join"
	// TypeRoomLeave leaves the caller's current room.
	TypeRoomLeave = "room.leave"
	// TypeRoomTakeSeat moves the caller between seats/spectators.
	TypeRoomTakeSeat = "room.takeSeat"
	// TypeRoomReady toggles the caller's ready flag.
	TypeRoomReady = "room.ready"
	// TypeMatchMove places a stone in the running match.
	TypeMatchMove = "match.move"
)

// Event types (server -> client; events carry no reqId and no ok flag).
const (
	// TypeRoomSnapshot is the full room view broadcast after state changes.
	TypeRoomSnapshot = "room.snapshot"
	// TypeMatchStart announces a new match once both seats are ready.
	TypeMatchStart = "match.start"
	// TypeMatchMoved broadcasts an accepted move.
	TypeMatchMoved = "match.moved"
	// TypeMatchOver announces the match result.
	TypeMatchOver = "match.over"
	// TypeAuthKicked tells an older socket it was displaced by a newer one.
	TypeAuthKicked = "auth.kicked"
)

// RespSuffix is appended to a request type to form its response type.
const RespSuffix = ".resp"

// CloseSingleSession is the close code sent to a displaced socket.
const CloseSingleSession = 4001

// ReasonSingleSession labels both the auth.kicked payload and the close frame.
const ReasonSingleSession = "single_session"

// Stable wire error codes, shared by HTTP error bodies and socket
// error-responses.
const (
	CodeBadRequest         = "bad_request"
	CodeUnauthorized       = "unauthorized"
	CodeForbidden          = "forbidden"
	CodeUsernameTaken      = "username_taken"
	CodeInvalidCredentials = "invalid_credentials"
	CodeTokenExpired       = "token_expired"
	CodeRateLimited        = "rate_limited"
	CodeInternal           = "internal_error"

	CodeRoomNotFound     = "room_not_found"
	CodeNotInRoom        = "not_in_room"
	CodeSeatTaken        = "seat_taken"
	CodeInvalidRoomState = "invalid_room_state"
	CodeMatchNotFound    = "match_not_found"
	CodeLeaveRoomFailed  = "leave_room_failed"
)

// Soft match.move rejection reasons. These travel inside an ok response
// (accepted: false), not inside an error envelope.
const (
	ReasonNotYourTurn = "not_your_turn"
	ReasonOutOfRange  = "out_of_range"
	ReasonOverlap     = "overlap"
)

// Stone colors as serialized on the wire; also the seat names accepted by
// room.takeSeat.
const (
	ColorBlack = "black"
	ColorWhite = "white"
)

// SeatSpectator is the room.takeSeat value that stands the caller up.
const SeatSpectator = "spectator"

// Room states as serialized in snapshots.
const (
	StateWaiting = "waiting"
	StatePlaying = "playing"
)

// Match results carried by match.over.
const (
	ResultBlackWin = "black_win"
	ResultWhiteWin = "white_win"
	ResultDraw     = "draw"
)

// Match end reasons carried by match.over.
const (
	ReasonFiveInARow = "five_in_a_row"
	ReasonBoardFull  = "board_full"
	ReasonDisconnect = "disconnect"
)

// Coord addresses a board cell; Row and Col are zero-based.
type Coord struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Move is one placed stone.
type Move struct {
	Color string `json:"color"`
	Coord Coord  `json:"coord"`
}

// SeatInfo describes an occupied seat inside a snapshot.
type SeatInfo struct {
	Username string `json:"username"`
	Ready    bool   `json:"ready"`
}

// SeatsSnapshot holds both seats; an empty seat serializes as null.
type SeatsSnapshot struct {
	Black *SeatInfo `json:"black"`
	White *SeatInfo `json:"white"`
}

// RoomSnapshot is the self-contained room view a client needs to rebuild its
// UI without history.
type RoomSnapshot struct {
	RoomID     string        `json:"roomId"`
	Title      string        `json:"title"`
	Seats      SeatsSnapshot `json:"seats"`
	Spectators []string      `json:"spectators"`
	State      string        `json:"state"`
}

// ---- Request payloads ----

// RoomCreatePayload carries an optional room title.
type RoomCreatePayload struct {
	Title string `json:"title"`
}

// RoomJoinPayload names the room to join.
type RoomJoinPayload struct {
	RoomID string `json:"roomId"`
}

// RoomTakeSeatPayload selects a seat kind; nil Seat means "spectator".
type RoomTakeSeatPayload struct {
	Seat *string `json:"seat"`
}

// RoomReadyPayload toggles readiness; nil Ready means false.
type RoomReadyPayload struct {
	Ready *bool `json:"ready"`
}

// MatchMovePayload places a stone. Coord and both of its fields are required.
type MatchMovePayload struct {
	Coord *CoordPayload `json:"coord"`
}

// CoordPayload is the inbound coordinate with required-field detection.
type CoordPayload struct {
	Row *int `json:"row"`
	Col *int `json:"col"`
}

// ---- Response payloads ----

// RoomCreateResult answers room.create.
type RoomCreateResult struct {
	RoomID string       `json:"roomId"`
	Room   RoomSnapshot `json:"room"`
}

// RoomResult answers room.join, room.takeSeat and room.ready.
type RoomResult struct {
	Room RoomSnapshot `json:"room"`
}

// MoveResult answers match.move. When Accepted is false only Reason is set;
// when true, Turn names the color to move next and Move echoes the stone.
type MoveResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
	Turn     string `json:"turn,omitempty"`
	Move     *Move  `json:"move,omitempty"`
}

// ---- Event payloads ----

// MatchStartPayload announces a fresh match.
type MatchStartPayload struct {
	MatchID   string `json:"matchId"`
	BoardSize int    `json:"boardSize"`
	Turn      string `json:"turn"`
	Moves     []Move `json:"moves"`
}

// MatchMovedPayload broadcasts an accepted move; Turn is the color to move
// next.
type MatchMovedPayload struct {
	MatchID string `json:"matchId"`
	Move    Move   `json:"move"`
	Turn    string `json:"turn"`
}

// MatchOverPayload announces the result; Winner is null on a draw.
type MatchOverPayload struct {
	MatchID string  `json:"matchId"`
	Result  string  `json:"result"`
	Winner  *string `json:"winner"`
	Reason  string  `json:"reason"`
}

// KickedPayload explains a forced disconnect.
type KickedPayload struct {
	Reason string `json:"reason"`
}
