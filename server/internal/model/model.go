package model

import (
	"fmt"
	"net"
)

// Point is an integer world coordinate pair.
type Point struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("%d;%d", p.X, p.Y)
}

// Player is the authoritative simulation state for one connected participant.
// JSON keys match what deployed clients decode out of the P0 broadcast.
type Player struct {
	ID          string `json:"id"`
	DisplayName string `json:"char_name"`
	Skin        uint8  `json:"skin"`
	LoggedIn    bool   `json:"logged_in"`
	Position    Point  `json:"pos"`
	Velocity    uint8  `json:"velocity"` // Last applied direction code (0-4)
	Team        uint8  `json:"team"`
	WorldPos    Point  `json:"world_pos"` // Carried through unchanged, nothing mutates it
	LastUpdate  int64  `json:"last_update"`
}

// NewPlayer returns a freshly logged-in player at the origin.
func NewPlayer(id string, skin uint8, now int64) Player {
	return Player{
		ID:          id,
		DisplayName: id,
		Skin:        skin,
		LoggedIn:    true,
		LastUpdate:  now,
	}
}

// Session maps a player to the address its broadcasts go to.
type Session struct {
	PlayerID string       `json:"playerId"`
	Addr     *net.UDPAddr `json:"-"`
}

// AddrString is the printable broadcast address, empty when unset.
func (s Session) AddrString() string {
	if s.Addr == nil {
		return ""
	}
	return s.Addr.String()
}
