package models

import "time"

// Role is the parity a player bets on.
type Role string

const (
	RoleEven Role = "even"
	RoleOdd  Role = "odd"
)

// Complement returns the opposite role.
func (r Role) Complement() Role {
	if r == RoleEven {
		return RoleOdd
	}
	return RoleEven
}

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleEven || r == RoleOdd
}

const (
	// MaxPlayers is the number of participants in a room once it is full.
	MaxPlayers = 2

	MinNumber = 1
	MaxNumber = 9
)

// Room is the persisted state of a two-player session.
type Room struct {
	ID        string          `json:"id"`
	Players   []string        `json:"players"`
	Roles     map[string]Role `json:"roles"`
	Numbers   map[string]int  `json:"numbers"`
	CreatedAt time.Time       `json:"created_at"`
	StartedAt *time.Time      `json:"started_at,omitempty"`
}

// IsFull reports whether both seats are taken.
func (r *Room) IsFull() bool {
	return len(r.Players) >= MaxPlayers
}

// HasPlayer reports whether participantID is seated in the room.
func (r *Room) HasPlayer(participantID string) bool {
	for _, p := range r.Players {
		if p == participantID {
			return true
		}
	}
	return false
}

// Complete reports whether every player has submitted a number.
func (r *Room) Complete() bool {
	return len(r.Numbers) >= MaxPlayers
}

// Opponent returns the other player in the room, or "" if there is none.
func (r *Room) Opponent(participantID string) string {
	for _, p := range r.Players {
		if p != participantID {
			return p
		}
	}
	return ""
}
