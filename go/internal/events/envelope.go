package events

import (
	"encoding/json"
	"fmt"
)

// Type names a wire event.
type Type string

const (
	// inbound
	TypeCreateRoom   Type = "createRoom"
	TypeJoinRoom     Type = "joinRoom"
	TypeSubmitNumber Type = "submitNumber"

	// outbound
	TypeConnected     Type = "connected"
	TypeRoomCreated   Type = "roomCreated"
	TypeRoomJoined    Type = "roomJoined"
	TypeGameStart     Type = "gameStart"
	TypeGameResult    Type = "gameResult"
	TypeGameCancelled Type = "gameCancelled"
	TypeError         Type = "error"
)

// Envelope is the JSON frame exchanged over the realtime channel.
type Envelope struct {
	Event Type            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// New marshals payload into an envelope of the given type.
func New(t Type, payload any) (*Envelope, error) {
	if payload == nil {
		return &Envelope{Event: t}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return &Envelope{Event: t, Data: data}, nil
}

// Decode unmarshals the envelope data into v.
func (e *Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: missing data", e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%s: %w", e.Event, err)
	}
	return nil
}
