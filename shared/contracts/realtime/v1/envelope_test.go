package v1

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestEventOmitsRequestFields(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(Event(TypeAuthKicked, KickedPayload{Reason: ReasonSingleSession}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	if strings.Contains(s, `"reqId"`) || strings.Contains(s, `"ok"`) || strings.Contains(s, `"error"`) {
		t.Fatalf("event carries request/response fields: %s", s)
	}
	if !strings.Contains(s, `"v":1`) || !strings.Contains(s, `"payload"`) {
		t.Fatalf("event missing v/payload: %s", s)
	}
}

func TestRespOKEchoesReqID(t *testing.T) {
	t.Parallel()

	req := Inbound{V: Version, Type: TypeRoomLeave, ReqID: "r-42"}
	b, err := json.Marshal(RespOK(req, nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, `"type":"room.leave.resp"`) {
		t.Fatalf("wrong response type: %s", s)
	}
	if !strings.Contains(s, `"reqId":"r-42"`) || !strings.Contains(s, `"ok":true`) {
		t.Fatalf("response missing reqId/ok: %s", s)
	}
	if !strings.Contains(s, `"payload":{}`) {
		t.Fatalf("nil payload should serialize as {}: %s", s)
	}
}

func TestRespErrShape(t *testing.T) {
	t.Parallel()

	req := Inbound{V: Version, Type: TypeMatchMove, ReqID: "m-1"}
	b, err := json.Marshal(RespErr(req, CodeNotInRoom, "not in a room"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, `"ok":false`) {
		t.Fatalf("error response must carry ok=false: %s", s)
	}
	if !strings.Contains(s, `"code":"not_in_room"`) {
		t.Fatalf("error response missing code: %s", s)
	}
	if !strings.Contains(s, `"payload":{}`) {
		t.Fatalf("error response payload must be {}: %s", s)
	}
}

func TestInboundOptionalFields(t *testing.T) {
	t.Parallel()

	var env Inbound
	if err := json.Unmarshal([]byte(`{"v":1,"type":"room.leave"}`), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.V != Version || env.Type != TypeRoomLeave {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.ReqID != "" || env.Payload != nil {
		t.Fatalf("optional fields should stay zero: %+v", env)
	}

	if err := json.Unmarshal([]byte(`{"v":2,"type":"x","reqId":"a","ts":123,"payload":{"k":1}}`), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.V != 2 || env.ReqID != "a" || env.TS != 123 || len(env.Payload) == 0 {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}
