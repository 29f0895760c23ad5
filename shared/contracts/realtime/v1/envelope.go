package v1

import "encoding/json"

// Inbound is a client -> server envelope. Payload semantics depend on Type.
type Inbound struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ReqID   string          `json:"reqId,omitempty"`
	TS      int64           `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is a server -> client envelope: either a response
// (Type "<request-type>.resp", OK set, ReqID echoed) or an event
// (no ReqID, no OK). Payload is always present on the wire.
type Outbound struct {
	V       int        `json:"v"`
	Type    string     `json:"type"`
	ReqID   string     `json:"reqId,omitempty"`
	OK      *bool      `json:"ok,omitempty"`
	Error   *WireError `json:"error,omitempty"`
	Payload any        `json:"payload"`
}

// WireError carries a stable machine code plus a human-readable message.
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Event builds a server-originated broadcast envelope.
func Event(typ string, payload any) Outbound {
	if payload == nil {
		payload = struct{}{}
	}
	return Outbound{V: Version, Type: typ, Payload: payload}
}

// RespOK builds the success response for req, echoing its reqId.
func RespOK(req Inbound, payload any) Outbound {
	if payload == nil {
		payload = struct{}{}
	}
	ok := true
	return Outbound{
		V:       Version,
		Type:    req.Type + RespSuffix,
		ReqID:   req.ReqID,
		OK:      &ok,
		Payload: payload,
	}
}

// RespErr builds the failure response for req with a stable error code.
func RespErr(req Inbound, code, message string) Outbound {
	ok := false
	return Outbound{
		V:       Version,
		Type:    req.Type + RespSuffix,
		ReqID:   req.ReqID,
		OK:      &ok,
		Error:   &WireError{Code: code, Message: message},
		Payload: struct{}{},
	}
}
