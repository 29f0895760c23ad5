package rooms

import (
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	v1 "goban/shared/contracts/realtime/v1"
)

// seat is an occupied chair: who sits there and whether they are ready.
type seat struct {
	username string
	ready    bool
}

// match is one game inside a room. The board is the replay of moves; colors
// alternate strictly starting with Black.
type match struct {
	id    uuid.UUID
	turn  Color
	moves []v1.Move
	board board
}

func newMatch() *match {
	return &match{id: uuid.New(), turn: ColorBlack}
}

// room is a single lobby instance. All fields behind mu.
type room struct {
	mu         sync.Mutex
	id         uuid.UUID
	title      string
	black      *seat
	white      *seat
	spectators []string
	state      string
	match      *match
}

// hasLocked reports whether username occupies a seat or spectates here.
func (r *room) hasLocked(username string) bool {
	if r.black != nil && r.black.username == username {
		return true
	}
	if r.white != nil && r.white.username == username {
		return true
	}
	return slices.Contains(r.spectators, username)
}

// removeLocked drops username from seats and spectators, reporting whether a
// seat was vacated.
func (r *room) removeLocked(username string) bool {
	seated := false
	if r.black != nil && r.black.username == username {
		r.black = nil
		seated = true
	}
	if r.white != nil && r.white.username == username {
		r.white = nil
		seated = true
	}
	r.spectators = slices.DeleteFunc(r.spectators, func(u string) bool { return u == username })
	return seated
}

// resetLocked returns the room to the waiting state: match dropped, both
// ready flags cleared.
func (r *room) resetLocked() {
	r.state = v1.StateWaiting
	r.match = nil
	if r.black != nil {
		r.black.ready = false
	}
	if r.white != nil {
		r.white.ready = false
	}
}

func (r *room) emptyLocked() bool {
	return r.black == nil && r.white == nil && len(r.spectators) == 0
}

// snapshotLocked builds the wire view. Spectators always serializes as an
// array, never null.
func (r *room) snapshotLocked() v1.RoomSnapshot {
	spectators := make([]string, len(r.spectators))
	copy(spectators, r.spectators)
	snap := v1.RoomSnapshot{
		RoomID:     r.id.String(),
		Title:      r.title,
		Spectators: spectators,
		State:      r.state,
	}
	if r.black != nil {
		snap.Seats.Black = &v1.SeatInfo{Username: r.black.username, Ready: r.black.ready}
	}
	if r.white != nil {
		snap.Seats.White = &v1.SeatInfo{Username: r.white.username, Ready: r.white.ready}
	}
	return snap
}

// participantsLocked returns the usernames present in the room, sorted and
// deduplicated.
func (r *room) participantsLocked() []string {
	users := make([]string, 0, len(r.spectators)+2)
	if r.black != nil {
		users = append(users, r.black.username)
	}
	if r.white != nil {
		users = append(users, r.white.username)
	}
	users = append(users, r.spectators...)
	sort.Strings(users)
	return slices.Compact(users)
}

// matchOverEvent builds the match.over broadcast; nil winner means a draw.
func matchOverEvent(matchID uuid.UUID, winner *Color, reason string) v1.Outbound {
	p := v1.MatchOverPayload{
		MatchID: matchID.String(),
		Result:  v1.ResultDraw,
		Reason:  reason,
	}
	if winner != nil {
		name := winner.String()
		p.Winner = &name
		switch *winner {
		case ColorBlack:
			p.Result = v1.ResultBlackWin
		case ColorWhite:
			p.Result = v1.ResultWhiteWin
		}
	}
	return v1.Event(v1.TypeMatchOver, p)
}
