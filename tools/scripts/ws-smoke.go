// Package main provides a CI-friendly end-to-end smoke test for the goban
// server.
//
// It validates:
//   - register + login over HTTP for two throwaway players
//   - authenticated WebSocket handshakes via the accessToken query parameter
//   - room create, join and both seat claims
//   - the ready handshake fanning match.start out to both sockets
//   - a scripted five-in-a-row on row 7, every move acked and broadcast
//   - the finish sequence on both sockets: match.over, then a waiting snapshot
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	v1 "goban/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20 // 1MiB

// serverMsg mirrors the outbound envelope with the payload kept raw, so each
// assertion decodes only the part it cares about.
type serverMsg struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ReqID   string          `json:"reqId,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Error   *v1.WireError   `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type smokeClient struct {
	name     string
	username string
	conn     *websocket.Conn

	reqSeq int
	inbox  chan serverMsg
	errCh  chan error
}

func main() {
	var (
		base    = flag.String("base", "http://127.0.0.1:8080", "Server base URL (http or https)")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		title   = flag.String("title", "smoke room", "Room title to create")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*base); err != nil {
		fatalf("invalid -base: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()
	run := time.Now().UnixNano()

	blackUser := fmt.Sprintf("smoke-black-%d", run)
	whiteUser := fmt.Sprintf("smoke-white-%d", run)
	pass := fmt.Sprintf("smoke-pass-%d", run)

	blackToken := mustRegisterAndLogin(root, *base, blackUser, pass, *timeout)
	whiteToken := mustRegisterAndLogin(root, *base, whiteUser, pass, *timeout)

	black := mustConnect(root, "black", *base, *origin, blackUser, blackToken, *timeout)
	defer closeWS(black.conn)

	white := mustConnect(root, "white", *base, *origin, whiteUser, whiteToken, *timeout)
	defer closeWS(white.conn)

	if *verbose {
		fmt.Printf("connected: black=%s white=%s origin=%q\n", blackUser, whiteUser, *origin)
	}

	// The creator is seated Black by the server.
	roomID := mustCreateRoom(root, black, *title, *timeout)
	if *verbose {
		fmt.Printf("room created: %s\n", roomID)
	}

	// White joins as a spectator, then claims the white seat. Black sees a
	// snapshot broadcast for each change.
	mustJoinRoom(root, white, roomID, *timeout)
	mustSnapshot(black, *timeout)

	mustTakeSeat(root, white, v1.ColorWhite, *timeout)
	mustSnapshot(black, *timeout)

	// The second ready starts the match.
	mustReady(root, black, *timeout)
	mustSnapshot(white, *timeout)

	mustReady(root, white, *timeout)
	mustSnapshot(black, *timeout)

	startWhite := mustMatchStart(white, *timeout)
	startBlack := mustMatchStart(black, *timeout)
	if startBlack.MatchID == "" || startBlack.MatchID != startWhite.MatchID {
		fatalf("match.start ids diverge: black=%q white=%q", startBlack.MatchID, startWhite.MatchID)
	}
	if startBlack.Turn != v1.ColorBlack {
		fatalf("match.start turn=%q, want %q", startBlack.Turn, v1.ColorBlack)
	}
	if startBlack.BoardSize != v1.BoardSize {
		fatalf("match.start boardSize=%d, want %d", startBlack.BoardSize, v1.BoardSize)
	}
	if len(startBlack.Moves) != 0 {
		fatalf("match.start carries %d moves, want none", len(startBlack.Moves))
	}
	if *verbose {
		fmt.Printf("match started: %s\n", startBlack.MatchID)
	}

	// Black builds row 7, columns 3..7; white answers on row 8. The ninth
	// move completes five in a row.
	script := []struct {
		c        *smokeClient
		row, col int
	}{
		{black, 7, 3}, {white, 8, 3},
		{black, 7, 4}, {white, 8, 4},
		{black, 7, 5}, {white, 8, 5},
		{black, 7, 6}, {white, 8, 6},
		{black, 7, 7},
	}
	for i, mv := range script {
		mustMove(root, mv.c, mv.row, mv.col, *timeout)
		for _, c := range []*smokeClient{black, white} {
			moved := mustMatchMoved(c, *timeout)
			if moved.Move.Coord.Row != mv.row || moved.Move.Coord.Col != mv.col {
				fatalf("%s: move %d broadcast (%d,%d), want (%d,%d)",
					c.name, i+1, moved.Move.Coord.Row, moved.Move.Coord.Col, mv.row, mv.col)
			}
		}
	}

	for _, c := range []*smokeClient{black, white} {
		over := mustMatchOver(c, *timeout)
		if over.MatchID != startBlack.MatchID {
			fatalf("%s: match.over for %q, want %q", c.name, over.MatchID, startBlack.MatchID)
		}
		if over.Result != v1.ResultBlackWin || over.Reason != v1.ReasonFiveInARow {
			fatalf("%s: match.over result=%q reason=%q, want %q/%q",
				c.name, over.Result, over.Reason, v1.ResultBlackWin, v1.ReasonFiveInARow)
		}
		if over.Winner == nil || *over.Winner != v1.ColorBlack {
			fatalf("%s: match.over winner missing or not black", c.name)
		}

		snap := mustSnapshot(c, *timeout)
		if snap.State != v1.StateWaiting {
			fatalf("%s: post-match state=%q, want %q", c.name, snap.State, v1.StateWaiting)
		}
		if snap.Seats.Black == nil || snap.Seats.Black.Ready ||
			snap.Seats.White == nil || snap.Seats.White.Ready {
			fatalf("%s: ready flags must reset after the match", c.name)
		}
	}

	fmt.Printf("OK: room=%s black=%s white=%s result=%s reason=%s\n",
		roomID, blackUser, whiteUser, v1.ResultBlackWin, v1.ReasonFiveInARow)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("empty origin")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

// ---- HTTP auth ----

// mustRegisterAndLogin provisions a throwaway account and returns its access
// token.
func mustRegisterAndLogin(ctx context.Context, base, username, password string, timeout time.Duration) string {
	creds := map[string]string{"username": username, "password": password}

	var reg struct {
		Username string `json:"username"`
	}
	mustPostJSON(ctx, base+"/api/v1/auth/register", creds, &reg, timeout)
	if reg.Username != username {
		fatalf("register echoed username %q, want %q", reg.Username, username)
	}

	var login struct {
		Username    string `json:"username"`
		AccessToken string `json:"accessToken"`
	}
	mustPostJSON(ctx, base+"/api/v1/auth/login", creds, &login, timeout)
	if login.AccessToken == "" {
		fatalf("login returned no accessToken for %q", username)
	}
	return login.AccessToken
}

func mustPostJSON(ctx context.Context, endpoint string, body, out any, timeout time.Duration) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(mustJSON(body)))
	if err != nil {
		fatalf("build request %s: %v", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("POST %s: %v", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if err != nil {
		fatalf("read %s response: %v", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		fatalf("POST %s: status %d (body %s)", endpoint, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		fatalf("decode %s response: %v", endpoint, err)
	}
}

// ---- WebSocket plumbing ----

func wsEndpoint(base, token string) string {
	u, err := url.Parse(base)
	if err != nil {
		fatalf("parse base URL: %v", err)
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"accessToken": {token}}.Encode()
	return u.String()
}

func mustConnect(ctx context.Context, name, base, origin, username, token string, timeout time.Duration) *smokeClient {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, resp, err := websocket.Dial(dialCtx, wsEndpoint(base, token), &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{origin}},
	})
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		fatalf("%s: dial: %v (status=%d)", name, err, status)
	}
	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:     name,
		username: username,
		conn:     conn,
		inbox:    make(chan serverMsg, 512),
		errCh:    make(chan error, 1),
	}

	// Raw liveness probe, answered outside the envelope codec. Runs before
	// the read loop takes over the socket.
	probeCtx, probeCancel := context.WithTimeout(ctx, timeout)
	defer probeCancel()
	if err := conn.Write(probeCtx, websocket.MessageText, []byte("ping")); err != nil {
		fatalf("%s: ping: %v", name, err)
	}
	_, data, err := conn.Read(probeCtx)
	if err != nil {
		fatalf("%s: pong: %v", name, err)
	}
	if string(data) != "pong" {
		fatalf("%s: liveness probe answered %q, want %q", name, data, "pong")
	}

	c.startReadLoop(ctx)
	return c
}

// startReadLoop pumps server frames into the inbox so assertions can read
// with timeouts. A decode failure or a full inbox ends the run.
func (c *smokeClient) startReadLoop(ctx context.Context) {
	go func() {
		for {
			_, data, err := c.conn.Read(ctx)
			if err != nil {
				c.pushErr(fmt.Errorf("read: %w", err))
				return
			}
			var msg serverMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				c.pushErr(fmt.Errorf("decode frame: %w", err))
				return
			}
			select {
			case c.inbox <- msg:
			default:
				c.pushErr(errors.New("inbox overflow"))
				return
			}
		}
	}()
}

func (c *smokeClient) pushErr(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

// mustReadUntilType waits for one frame of the wanted type. Any other frame
// is a failure: the script is strictly sequential and every broadcast is
// consumed where it is produced, so the expected order is exact.
func mustReadUntilType(c *smokeClient, want string, timeout time.Duration) serverMsg {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			fatalf("%s: timed out after %s waiting for %s", c.name, timeout, want)
		case err := <-c.errCh:
			fatalf("%s: connection: %v", c.name, err)
		case msg := <-c.inbox:
			if msg.Type != want {
				if msg.Error != nil {
					fatalf("%s: got %s error %s (%s), want %s",
						c.name, msg.Type, msg.Error.Code, msg.Error.Message, want)
				}
				fatalf("%s: got %s, want %s", c.name, msg.Type, want)
			}
			return msg
		}
	}
}

func mustWriteWithTimeout(ctx context.Context, c *smokeClient, env v1.Inbound, timeout time.Duration) {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.conn.Write(wctx, websocket.MessageText, mustJSON(env)); err != nil {
		fatalf("%s: write %s: %v", c.name, env.Type, err)
	}
}

// mustRequest performs one request/response exchange and returns the ok
// response envelope.
func mustRequest(ctx context.Context, c *smokeClient, typ string, payload any, timeout time.Duration) serverMsg {
	c.reqSeq++
	reqID := fmt.Sprintf("%s-%d", c.name, c.reqSeq)

	env := v1.Inbound{V: v1.Version, Type: typ, ReqID: reqID, TS: time.Now().UnixMilli()}
	if payload != nil {
		env.Payload = mustJSON(payload)
	}
	mustWriteWithTimeout(ctx, c, env, timeout)

	msg := mustReadUntilType(c, typ+v1.RespSuffix, timeout)
	if msg.ReqID != reqID {
		fatalf("%s: %s reqId %q, want %q", c.name, msg.Type, msg.ReqID, reqID)
	}
	if msg.OK == nil || !*msg.OK {
		if msg.Error != nil {
			fatalf("%s: %s failed: %s (%s)", c.name, typ, msg.Error.Code, msg.Error.Message)
		}
		fatalf("%s: %s response not ok", c.name, typ)
	}
	return msg
}

func decodePayloadInto(c *smokeClient, msg serverMsg, dst any) {
	if err := json.Unmarshal(msg.Payload, dst); err != nil {
		fatalf("%s: decode %s payload: %v", c.name, msg.Type, err)
	}
}

// ---- protocol steps ----

func mustCreateRoom(ctx context.Context, c *smokeClient, title string, timeout time.Duration) string {
	resp := mustRequest(ctx, c, v1.TypeRoomCreate, v1.RoomCreatePayload{Title: title}, timeout)
	var res v1.RoomCreateResult
	decodePayloadInto(c, resp, &res)
	if res.RoomID == "" {
		fatalf("%s: room.create returned no roomId", c.name)
	}
	if res.Room.Seats.Black == nil || res.Room.Seats.Black.Username != c.username {
		fatalf("%s: creator is not seated black", c.name)
	}

	snap := mustSnapshot(c, timeout)
	if snap.RoomID != res.RoomID {
		fatalf("%s: create snapshot for room %q, want %q", c.name, snap.RoomID, res.RoomID)
	}
	return res.RoomID
}

func mustJoinRoom(ctx context.Context, c *smokeClient, roomID string, timeout time.Duration) {
	resp := mustRequest(ctx, c, v1.TypeRoomJoin, v1.RoomJoinPayload{RoomID: roomID}, timeout)
	var res v1.RoomResult
	decodePayloadInto(c, resp, &res)
	if !slices.Contains(res.Room.Spectators, c.username) {
		fatalf("%s: not listed as a spectator after join", c.name)
	}
	mustSnapshot(c, timeout)
}

func mustTakeSeat(ctx context.Context, c *smokeClient, seat string, timeout time.Duration) {
	resp := mustRequest(ctx, c, v1.TypeRoomTakeSeat, v1.RoomTakeSeatPayload{Seat: &seat}, timeout)
	var res v1.RoomResult
	decodePayloadInto(c, resp, &res)
	if seatHolder(res.Room, seat) != c.username {
		fatalf("%s: seat %s not held after takeSeat", c.name, seat)
	}
	mustSnapshot(c, timeout)
}

func seatHolder(snap v1.RoomSnapshot, seat string) string {
	var si *v1.SeatInfo
	switch seat {
	case v1.ColorBlack:
		si = snap.Seats.Black
	case v1.ColorWhite:
		si = snap.Seats.White
	}
	if si == nil {
		return ""
	}
	return si.Username
}

func mustReady(ctx context.Context, c *smokeClient, timeout time.Duration) {
	ready := true
	resp := mustRequest(ctx, c, v1.TypeRoomReady, v1.RoomReadyPayload{Ready: &ready}, timeout)
	var res v1.RoomResult
	decodePayloadInto(c, resp, &res)
	mustSnapshot(c, timeout)
}

func mustMove(ctx context.Context, c *smokeClient, row, col int, timeout time.Duration) {
	payload := v1.MatchMovePayload{Coord: &v1.CoordPayload{Row: &row, Col: &col}}
	resp := mustRequest(ctx, c, v1.TypeMatchMove, payload, timeout)
	var res v1.MoveResult
	decodePayloadInto(c, resp, &res)
	if !res.Accepted {
		fatalf("%s: move (%d,%d) rejected: %s", c.name, row, col, res.Reason)
	}
	if res.Move == nil || res.Move.Coord.Row != row || res.Move.Coord.Col != col {
		fatalf("%s: move (%d,%d) echo mismatch", c.name, row, col)
	}
}

func mustSnapshot(c *smokeClient, timeout time.Duration) v1.RoomSnapshot {
	msg := mustReadUntilType(c, v1.TypeRoomSnapshot, timeout)
	var snap v1.RoomSnapshot
	decodePayloadInto(c, msg, &snap)
	return snap
}

func mustMatchStart(c *smokeClient, timeout time.Duration) v1.MatchStartPayload {
	msg := mustReadUntilType(c, v1.TypeMatchStart, timeout)
	var start v1.MatchStartPayload
	decodePayloadInto(c, msg, &start)
	return start
}

func mustMatchMoved(c *smokeClient, timeout time.Duration) v1.MatchMovedPayload {
	msg := mustReadUntilType(c, v1.TypeMatchMoved, timeout)
	var moved v1.MatchMovedPayload
	decodePayloadInto(c, msg, &moved)
	return moved
}

func mustMatchOver(c *smokeClient, timeout time.Duration) v1.MatchOverPayload {
	msg := mustReadUntilType(c, v1.TypeMatchOver, timeout)
	var over v1.MatchOverPayload
	decodePayloadInto(c, msg, &over)
	return over
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		fatalf("marshal: %v", err)
	}
	return data
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
