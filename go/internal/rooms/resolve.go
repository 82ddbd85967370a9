package rooms

import (
	"fmt"

	"github.com/mcdev12/parity/go/internal/events"
	"github.com/mcdev12/parity/go/internal/models"
)

// Resolve computes the outcome of a complete round: the even role wins iff
// the sum of both numbers is even. Both inputs are 1..9, so there is always
// exactly one winner.
func Resolve(room *models.Room) (events.GameResultPayload, error) {
	if len(room.Numbers) != models.MaxPlayers {
		return events.GameResultPayload{}, fmt.Errorf("round incomplete: %d of %d numbers", len(room.Numbers), models.MaxPlayers)
	}

	sum := 0
	for _, n := range room.Numbers {
		sum += n
	}
	isEven := sum%2 == 0

	want := models.RoleOdd
	if isEven {
		want = models.RoleEven
	}

	winner := ""
	for participantID := range room.Numbers {
		if room.Roles[participantID] != want {
			continue
		}
		if winner != "" {
			return events.GameResultPayload{}, fmt.Errorf("roles are not complementary in room %s", room.ID)
		}
		winner = participantID
	}
	if winner == "" {
		return events.GameResultPayload{}, fmt.Errorf("no player holds role %s in room %s", want, room.ID)
	}

	return events.GameResultPayload{
		RoomID:  room.ID,
		Winner:  winner,
		Sum:     sum,
		IsEven:  isEven,
		Numbers: copyNumbers(room.Numbers),
	}, nil
}

// forfeitResult declares winner by forfeit; sum and parity cover whatever was submitted.
func forfeitResult(room *models.Room, winner, reason string) events.GameResultPayload {
	sum := 0
	for _, n := range room.Numbers {
		sum += n
	}
	return events.GameResultPayload{
		RoomID:  room.ID,
		Winner:  winner,
		Sum:     sum,
		IsEven:  sum%2 == 0,
		Numbers: copyNumbers(room.Numbers),
		Forfeit: true,
		Reason:  reason,
	}
}

func copyNumbers(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
