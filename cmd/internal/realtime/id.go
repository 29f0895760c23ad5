package realtime

import (
	"time"

	"goban/cmd/identity/ids"
)

// newConnID returns a ULID identifying one websocket connection in logs.
// ULIDs sort by creation time, so a grep over conn_id lines reads in
// connect order. The fallback only triggers when the entropy source fails.
func newConnID(now time.Time) string {
	id, err := ids.NewULID(now)
	if err != nil {
		return "conn-unknown"
	}
	return id
}
