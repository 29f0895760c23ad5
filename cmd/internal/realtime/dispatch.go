package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"goban/cmd/internal/metrics"
	"goban/cmd/internal/rooms"
	v1 "goban/shared/contracts/realtime/v1"
)

// dispatch routes one validated envelope. Handlers run synchronously: the
// caller's response and every broadcast event are enqueued before dispatch
// returns, so frame N is fully applied before frame N+1 is read.
func (g *WSGateway) dispatch(client *Client, env v1.Inbound) {
	switch env.Type {
	case v1.TypeRoomCreate:
		g.onRoomCreate(client, env)
	case v1.TypeRoomJoin:
		g.onRoomJoin(client, env)
	case v1.TypeRoomLeave:
		g.onRoomLeave(client, env)
	case v1.TypeRoomTakeSeat:
		g.onRoomTakeSeat(client, env)
	case v1.TypeRoomReady:
		g.onRoomReady(client, env)
	case v1.TypeMatchMove:
		g.onMatchMove(client, env)
	default:
		g.reply(client, v1.RespErr(env, v1.CodeBadRequest, fmt.Sprintf("unsupported type: %s", env.Type)))
	}
}

// ---- handlers ----

func (g *WSGateway) onRoomCreate(client *Client, env v1.Inbound) {
	var p v1.RoomCreatePayload
	if err := decodePayload(env, &p); err != nil {
		g.reply(client, v1.RespErr(env, v1.CodeBadRequest, "invalid payload"))
		return
	}

	// Creating while in a room leaves it first; the old room hears about it.
	g.leaveAndNotify(client.Username)

	roomID, snap := g.rooms.CreateRoom(client.Username, p.Title)
	g.syncRoomGauge()

	g.reply(client, v1.RespOK(env, v1.RoomCreateResult{RoomID: roomID.String(), Room: snap}))
	client.SendEnvelope(v1.Event(v1.TypeRoomSnapshot, snap))
}

func (g *WSGateway) onRoomJoin(client *Client, env v1.Inbound) {
	var p v1.RoomJoinPayload
	if err := decodePayload(env, &p); err != nil {
		g.reply(client, v1.RespErr(env, v1.CodeBadRequest, "invalid payload"))
		return
	}
	roomID, err := uuid.Parse(strings.TrimSpace(p.RoomID))
	if err != nil {
		g.reply(client, v1.RespErr(env, v1.CodeBadRequest, "invalid roomId"))
		return
	}

	// Switching rooms leaves the old one; re-joining the current room does
	// not.
	if cur, ok := g.rooms.RoomIDForUser(client.Username); ok && cur != roomID {
		g.leaveAndNotify(client.Username)
	}

	snap, err := g.rooms.JoinRoom(client.Username, roomID)
	if err != nil {
		g.replyRoomErr(client, env, err)
		return
	}

	g.reply(client, v1.RespOK(env, v1.RoomResult{Room: snap}))
	g.broadcast(roomID, v1.Event(v1.TypeRoomSnapshot, snap))
}

func (g *WSGateway) onRoomLeave(client *Client, env v1.Inbound) {
	snap, events, err := g.rooms.LeaveRoom(client.Username)
	switch {
	case errors.Is(err, rooms.ErrNotInRoom):
		g.reply(client, v1.RespErr(env, v1.CodeNotInRoom, "not in room"))
		return
	case errors.Is(err, rooms.ErrRoomNotFound):
		// The index pointed at a room that no longer exists.
		g.reply(client, v1.RespErr(env, v1.CodeLeaveRoomFailed, "leave room failed"))
		return
	case err != nil:
		g.reply(client, v1.RespErr(env, v1.CodeInternal, "internal error"))
		return
	}
	g.syncRoomGauge()

	g.reply(client, v1.RespOK(env, struct{}{}))
	g.notifyAfterLeave(snap, events)
}

func (g *WSGateway) onRoomTakeSeat(client *Client, env v1.Inbound) {
	var p v1.RoomTakeSeatPayload
	if err := decodePayload(env, &p); err != nil {
		g.reply(client, v1.RespErr(env, v1.CodeBadRequest, "invalid payload"))
		return
	}
	seatStr := v1.SeatSpectator
	if p.Seat != nil {
		seatStr = *p.Seat
	}
	kind, ok := rooms.ParseSeatKind(seatStr)
	if !ok {
		g.reply(client, v1.RespErr(env, v1.CodeBadRequest, "invalid seat"))
		return
	}

	roomID, snap, err := g.rooms.TakeSeat(client.Username, kind)
	if err != nil {
		g.replyRoomErr(client, env, err)
		return
	}

	g.reply(client, v1.RespOK(env, v1.RoomResult{Room: snap}))
	g.broadcast(roomID, v1.Event(v1.TypeRoomSnapshot, snap))
}

func (g *WSGateway) onRoomReady(client *Client, env v1.Inbound) {
	var p v1.RoomReadyPayload
	if err := decodePayload(env, &p); err != nil {
		g.reply(client, v1.RespErr(env, v1.CodeBadRequest, "invalid payload"))
		return
	}
	ready := p.Ready != nil && *p.Ready

	roomID, snap, start, err := g.rooms.SetReady(client.Username, ready)
	if err != nil {
		g.replyRoomErr(client, env, err)
		return
	}

	g.reply(client, v1.RespOK(env, v1.RoomResult{Room: snap}))
	g.broadcast(roomID, v1.Event(v1.TypeRoomSnapshot, snap))
	if start != nil {
		g.broadcast(roomID, *start)
		metrics.MatchesStarted.Inc()
	}
}

func (g *WSGateway) onMatchMove(client *Client, env v1.Inbound) {
	var p v1.MatchMovePayload
	if err := decodePayload(env, &p); err != nil {
		g.reply(client, v1.RespErr(env, v1.CodeBadRequest, "invalid payload"))
		return
	}
	if p.Coord == nil || p.Coord.Row == nil || p.Coord.Col == nil {
		g.reply(client, v1.RespErr(env, v1.CodeBadRequest, "missing coord"))
		return
	}
	coord := v1.Coord{Row: *p.Coord.Row, Col: *p.Coord.Col}

	roomID, result, events, err := g.rooms.MatchMove(client.Username, coord)
	if err != nil {
		g.replyRoomErr(client, env, err)
		return
	}

	g.reply(client, v1.RespOK(env, result))
	for _, ev := range events {
		g.broadcast(roomID, ev)
		if ev.Type == v1.TypeMatchOver {
			metrics.MatchesFinished.Inc()
		}
	}
	g.syncRoomGauge()
}

// ---- delivery helpers ----

// reply enqueues a response on the handling connection directly. Routing
// through the hub would misdeliver when a displacement races the response.
func (g *WSGateway) reply(client *Client, out v1.Outbound) {
	client.SendEnvelope(out)
}

// broadcast fans an event out to the room's current participants.
func (g *WSGateway) broadcast(roomID uuid.UUID, env v1.Outbound) {
	to := g.rooms.Participants(roomID)
	if len(to) == 0 {
		return
	}
	g.hub.Broadcast(to, env)
}

// leaveAndNotify removes username from their room, if any, and tells the
// remaining participants. Shared by the implicit-leave paths and the
// disconnect cleanup; a user who is in no room is a no-op.
func (g *WSGateway) leaveAndNotify(username string) {
	snap, events, err := g.rooms.LeaveRoom(username)
	if err != nil {
		return
	}
	g.syncRoomGauge()
	g.notifyAfterLeave(snap, events)
}

// notifyAfterLeave delivers a leave's fallout: any match.over first, then
// the refreshed snapshot. The audience comes from the post-leave snapshot,
// so the leaver is excluded and a deleted room notifies nobody.
func (g *WSGateway) notifyAfterLeave(snap v1.RoomSnapshot, events []v1.Outbound) {
	to := snapshotParticipants(snap)
	if len(to) == 0 {
		return
	}
	for _, ev := range events {
		g.hub.Broadcast(to, ev)
		if ev.Type == v1.TypeMatchOver {
			metrics.MatchesFinished.Inc()
		}
	}
	g.hub.Broadcast(to, v1.Event(v1.TypeRoomSnapshot, snap))
}

func (g *WSGateway) syncRoomGauge() {
	metrics.RoomsActive.Set(float64(g.rooms.RoomCount()))
}

// replyRoomErr maps a rooms service error onto its wire code.
func (g *WSGateway) replyRoomErr(client *Client, env v1.Inbound, err error) {
	code := v1.CodeInternal
	switch {
	case errors.Is(err, rooms.ErrNotInRoom):
		code = v1.CodeNotInRoom
	case errors.Is(err, rooms.ErrRoomNotFound):
		code = v1.CodeRoomNotFound
	case errors.Is(err, rooms.ErrSeatTaken):
		code = v1.CodeSeatTaken
	case errors.Is(err, rooms.ErrInvalidRoomState):
		code = v1.CodeInvalidRoomState
	case errors.Is(err, rooms.ErrMatchNotFound):
		code = v1.CodeMatchNotFound
	case errors.Is(err, rooms.ErrNotSeated):
		code = v1.CodeForbidden
	}
	g.reply(client, v1.RespErr(env, code, err.Error()))
}

func decodePayload(env v1.Inbound, dst any) error {
	if len(env.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(env.Payload, dst)
}

// snapshotParticipants lists the usernames present in a snapshot.
func snapshotParticipants(snap v1.RoomSnapshot) []string {
	out := make([]string, 0, len(snap.Spectators)+2)
	if snap.Seats.Black != nil {
		out = append(out, snap.Seats.Black.Username)
	}
	if snap.Seats.White != nil {
		out = append(out, snap.Seats.White.Username)
	}
	out = append(out, snap.Spectators...)
	return out
}
