// Package rooms implements the authoritative in-memory state machine for
// rooms, seats, readiness and five-in-a-row matches.
//
// The service performs no network I/O and holds no socket handles. Operations
// return the response payload plus the broadcast events the caller must
// deliver after the locks are released; that separation keeps every state
// transition unit-testable with literal inputs and outputs.
package rooms

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	v1 "goban/shared/contracts/realtime/v1"
)

// DefaultRoomTitle replaces a blank title on room.create.
const DefaultRoomTitle = "Room"

// SeatKind is the parsed room.takeSeat target.
type SeatKind uint8

const (
	SeatKindSpectator SeatKind = iota
	SeatKindBlack
	SeatKindWhite
)

// ParseSeatKind maps a wire seat string to a SeatKind.
func ParseSeatKind(s string) (SeatKind, bool) {
	switch s {
	case v1.ColorBlack:
		return SeatKindBlack, true
	case v1.ColorWhite:
		return SeatKindWhite, true
	case v1.SeatSpectator:
		return SeatKindSpectator, true
	default:
		return SeatKindSpectator, false
	}
}

// Service owns all live rooms and the username -> room index.
//
// Concurrency:
// - The two maps are guarded by mu; each room has its own mutex.
// - Lock order is map lock then room lock, never the reverse.
// - Nothing blocking runs under either lock.
type Service struct {
	log *slog.Logger

	mu       sync.RWMutex
	rooms    map[uuid.UUID]*room
	userRoom map[string]uuid.UUID
}

// NewService constructs an empty room service.
func NewService(log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{
		log:      log,
		rooms:    make(map[uuid.UUID]*room),
		userRoom: make(map[string]uuid.UUID),
	}
}

func (s *Service) roomByID(roomID uuid.UUID) (*room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	return r, ok
}

// roomOf resolves the caller's current room via the index.
func (s *Service) roomOf(username string) (uuid.UUID, *room, error) {
	s.mu.RLock()
	roomID, ok := s.userRoom[username]
	var r *room
	if ok {
		r = s.rooms[roomID]
	}
	s.mu.RUnlock()

	if !ok {
		return uuid.Nil, nil, ErrNotInRoom
	}
	if r == nil {
		return uuid.Nil, nil, ErrRoomNotFound
	}
	return roomID, r, nil
}

// CreateRoom creates a room with the caller seated Black and not ready. The
// dispatcher is responsible for leaving any previous room first.
func (s *Service) CreateRoom(username, title string) (uuid.UUID, v1.RoomSnapshot) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultRoomTitle
	}
	r := &room{
		id:    uuid.New(),
		title: title,
		black: &seat{username: username},
		state: v1.StateWaiting,
	}

	s.mu.Lock()
	s.rooms[r.id] = r
	s.userRoom[username] = r.id
	s.mu.Unlock()

	r.mu.Lock()
	snap := r.snapshotLocked()
	r.mu.Unlock()

	s.log.Info("room.create", "room_id", r.id, "username", username)
	return r.id, snap
}

// JoinRoom adds the caller to the room as a spectator. Joining a room the
// caller is already in only refreshes the index and returns the snapshot.
func (s *Service) JoinRoom(username string, roomID uuid.UUID) (v1.RoomSnapshot, error) {
	r, ok := s.roomByID(roomID)
	if !ok {
		return v1.RoomSnapshot{}, ErrRoomNotFound
	}

	r.mu.Lock()
	if !r.hasLocked(username) {
		r.spectators = append(r.spectators, username)
	}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	s.mu.Lock()
	s.userRoom[username] = roomID
	s.mu.Unlock()

	s.log.Info("room.join", "room_id", roomID, "username", username)
	return snap, nil
}

// LeaveRoom removes the caller from their current room and drops the index
// entry. If a match was running and the leaver held a seat, the match ends:
// the sole remaining seated player wins, or the result is a draw when both
// seats are now empty; the match.over event precedes the returned snapshot
// on the wire. A room left with no seats and no spectators is deleted.
func (s *Service) LeaveRoom(username string) (v1.RoomSnapshot, []v1.Outbound, error) {
	s.mu.Lock()
	roomID, ok := s.userRoom[username]
	if ok {
		delete(s.userRoom, username)
	}
	s.mu.Unlock()
	if !ok {
		return v1.RoomSnapshot{}, nil, ErrNotInRoom
	}

	r, found := s.roomByID(roomID)
	if !found {
		return v1.RoomSnapshot{}, nil, ErrRoomNotFound
	}

	r.mu.Lock()
	wasSeated := r.removeLocked(username)
	var events []v1.Outbound
	if r.state == v1.StatePlaying && r.match != nil && wasSeated {
		var winner *Color
		switch {
		case r.black != nil && r.white == nil:
			c := ColorBlack
			winner = &c
		case r.white != nil && r.black == nil:
			c := ColorWhite
			winner = &c
		}
		events = append(events, matchOverEvent(r.match.id, winner, v1.ReasonDisconnect))
		r.resetLocked()
	}
	empty := r.emptyLocked()
	snap := r.snapshotLocked()
	r.mu.Unlock()

	if empty {
		s.mu.Lock()
		delete(s.rooms, roomID)
		s.mu.Unlock()
		s.log.Info("room.remove", "room_id", roomID, "username", username)
	}
	return snap, events, nil
}

// TakeSeat moves the caller to a seat or back to the spectators. Seating
// resets the caller's ready flag, including re-taking the seat they already
// occupy. A seat held by another user fails without mutating the room.
func (s *Service) TakeSeat(username string, kind SeatKind) (uuid.UUID, v1.RoomSnapshot, error) {
	roomID, r, err := s.roomOf(username)
	if err != nil {
		return uuid.Nil, v1.RoomSnapshot{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == v1.StatePlaying {
		return uuid.Nil, v1.RoomSnapshot{}, ErrInvalidRoomState
	}
	switch kind {
	case SeatKindBlack:
		if r.black != nil && r.black.username != username {
			return uuid.Nil, v1.RoomSnapshot{}, ErrSeatTaken
		}
	case SeatKindWhite:
		if r.white != nil && r.white.username != username {
			return uuid.Nil, v1.RoomSnapshot{}, ErrSeatTaken
		}
	}

	r.removeLocked(username)
	switch kind {
	case SeatKindBlack:
		r.black = &seat{username: username}
	case SeatKindWhite:
		r.white = &seat{username: username}
	default:
		r.spectators = append(r.spectators, username)
	}
	return roomID, r.snapshotLocked(), nil
}

// SetReady sets the caller's ready flag. When both seats are occupied and
// ready, the room transitions to playing with a fresh match (turn Black) and
// the match.start event is returned alongside the snapshot.
func (s *Service) SetReady(username string, ready bool) (uuid.UUID, v1.RoomSnapshot, *v1.Outbound, error) {
	roomID, r, err := s.roomOf(username)
	if err != nil {
		return uuid.Nil, v1.RoomSnapshot{}, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == v1.StatePlaying {
		return uuid.Nil, v1.RoomSnapshot{}, nil, ErrInvalidRoomState
	}
	seated := false
	if r.black != nil && r.black.username == username {
		r.black.ready = ready
		seated = true
	}
	if r.white != nil && r.white.username == username {
		r.white.ready = ready
		seated = true
	}
	if !seated {
		return uuid.Nil, v1.RoomSnapshot{}, nil, ErrNotSeated
	}

	var start *v1.Outbound
	if r.black != nil && r.white != nil && r.black.ready && r.white.ready {
		m := newMatch()
		r.match = m
		r.state = v1.StatePlaying
		ev := v1.Event(v1.TypeMatchStart, v1.MatchStartPayload{
			MatchID:   m.id.String(),
			BoardSize: v1.BoardSize,
			Turn:      ColorBlack.String(),
			Moves:     []v1.Move{},
		})
		start = &ev
		s.log.Info("match.start", "room_id", roomID, "match_id", m.id)
	}
	return roomID, r.snapshotLocked(), start, nil
}

// MatchMove places a stone for the caller. Rule violations that depend only
// on game state (wrong turn, out of range, occupied cell) are soft
// rejections: the result carries accepted=false with a reason, nothing
// mutates, and no events are produced. An accepted move yields match.moved
// and, when it ends the game, match.over plus a waiting-state snapshot.
func (s *Service) MatchMove(username string, coord v1.Coord) (uuid.UUID, v1.MoveResult, []v1.Outbound, error) {
	roomID, r, err := s.roomOf(username)
	if err != nil {
		return uuid.Nil, v1.MoveResult{}, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != v1.StatePlaying {
		return uuid.Nil, v1.MoveResult{}, nil, ErrInvalidRoomState
	}
	m := r.match
	if m == nil {
		return uuid.Nil, v1.MoveResult{}, nil, ErrMatchNotFound
	}

	turn := m.turn
	turnSeat := r.black
	if turn == ColorWhite {
		turnSeat = r.white
	}
	if turnSeat == nil || turnSeat.username != username {
		return roomID, v1.MoveResult{Accepted: false, Reason: v1.ReasonNotYourTurn}, nil, nil
	}
	if coord.Row < 0 || coord.Col < 0 || coord.Row >= v1.BoardSize || coord.Col >= v1.BoardSize {
		return roomID, v1.MoveResult{Accepted: false, Reason: v1.ReasonOutOfRange}, nil, nil
	}
	if m.board[coord.Row][coord.Col] != 0 {
		return roomID, v1.MoveResult{Accepted: false, Reason: v1.ReasonOverlap}, nil, nil
	}

	m.board[coord.Row][coord.Col] = turn.cell()
	mv := v1.Move{Color: turn.String(), Coord: coord}
	m.moves = append(m.moves, mv)

	events := []v1.Outbound{v1.Event(v1.TypeMatchMoved, v1.MatchMovedPayload{
		MatchID: m.id.String(),
		Move:    mv,
		Turn:    turn.Other().String(),
	})}

	switch {
	case winAt(&m.board, coord.Row, coord.Col):
		winner := turn
		events = append(events, matchOverEvent(m.id, &winner, v1.ReasonFiveInARow))
		r.resetLocked()
		events = append(events, v1.Event(v1.TypeRoomSnapshot, r.snapshotLocked()))
		s.log.Info("match.over", "room_id", roomID, "match_id", m.id, "winner", winner.String(), "reason", v1.ReasonFiveInARow)
	case len(m.moves) >= v1.BoardSize*v1.BoardSize:
		events = append(events, matchOverEvent(m.id, nil, v1.ReasonBoardFull))
		r.resetLocked()
		events = append(events, v1.Event(v1.TypeRoomSnapshot, r.snapshotLocked()))
		s.log.Info("match.over", "room_id", roomID, "match_id", m.id, "reason", v1.ReasonBoardFull)
	default:
		m.turn = turn.Other()
	}

	return roomID, v1.MoveResult{
		Accepted: true,
		Turn:     turn.Other().String(),
		Move:     &mv,
	}, events, nil
}

// Snapshot returns the current wire view of a room.
func (s *Service) Snapshot(roomID uuid.UUID) (v1.RoomSnapshot, bool) {
	r, ok := s.roomByID(roomID)
	if !ok {
		return v1.RoomSnapshot{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(), true
}

// Participants returns the sorted, deduplicated usernames present in a room.
func (s *Service) Participants(roomID uuid.UUID) []string {
	r, ok := s.roomByID(roomID)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.participantsLocked()
}

// RoomIDForUser looks up the caller's current room.
func (s *Service) RoomIDForUser(username string) (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.userRoom[username]
	return id, ok
}

// RoomCount reports how many rooms are live.
func (s *Service) RoomCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}
