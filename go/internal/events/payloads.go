package events

// Event payload types that are shared between the rooms and gateway packages

// RoomCreatedPayload acknowledges a createRoom request to the creator.
type RoomCreatedPayload struct {
	RoomID  string `json:"roomId"`
	Role    string `json:"role"`
	Message string `json:"message"`
}

// RoomJoinedPayload acknowledges a joinRoom request to the joiner.
type RoomJoinedPayload struct {
	RoomID  string `json:"roomId"`
	Role    string `json:"role"`
	Message string `json:"message"`
}

// GameStartPayload is broadcast to both players once the room is full.
type GameStartPayload struct {
	RoomID  string `json:"roomId,omitempty"`
	Message string `json:"message"`
}

// GameResultPayload is broadcast to both players when a round resolves.
type GameResultPayload struct {
	RoomID  string         `json:"roomId,omitempty"`
	Winner  string         `json:"winner"`
	Sum     int            `json:"sum"`
	IsEven  bool           `json:"isEven"`
	Numbers map[string]int `json:"numbers"`
	Forfeit bool           `json:"forfeit,omitempty"`
	Reason  string         `json:"reason,omitempty"`
}

// GameCancelledPayload is broadcast when a round expires with nothing submitted.
type GameCancelledPayload struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// ErrorPayload reports a failure to the acting participant only.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ConnectedPayload tells a freshly connected client its participant id.
type ConnectedPayload struct {
	ParticipantID string `json:"participantId"`
}

// JoinRoomRequest is the inbound joinRoom payload.
type JoinRoomRequest struct {
	RoomID string `json:"roomId"`
}

// SubmitNumberRequest is the inbound submitNumber payload.
// Number is a pointer so a missing field can be told apart from zero.
type SubmitNumberRequest struct {
	RoomID string `json:"roomId"`
	Number *int   `json:"number"`
}
