package messages

import (
	"net"

	"github.com/phuhao00/worldsync/server/internal/model"
)

// RegisterSession upserts the broadcast address for a player. Sent on every
// inbound command, not only logins.
type RegisterSession struct {
	PlayerID string
	Addr     *net.UDPAddr
}

// SessionSnapshotRequest asks the registry for every known session.
type SessionSnapshotRequest struct{}

// SessionSnapshotResponse answers SessionSnapshotRequest, sorted by player id.
type SessionSnapshotResponse struct {
	Sessions []model.Session
}
