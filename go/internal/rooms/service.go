package rooms

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"connectrpc.com/connect"
	"github.com/mcdev12/parity/go/internal/models"
)

const (
	// RoomServiceName is the fully-qualified name of the inspection service.
	RoomServiceName = "parity.v1.RoomService"

	// RoomServiceGetRoomProcedure is the path of the GetRoom RPC.
	RoomServiceGetRoomProcedure = "/parity.v1.RoomService/GetRoom"
)

// GetRoomRequest asks for the current state of a room.
type GetRoomRequest struct {
	RoomID string `json:"roomId"`
}

// RoomView is the public projection of a room. Submitted numbers stay
// private until the round resolves, so only who has submitted is exposed.
type RoomView struct {
	ID        string            `json:"id"`
	Players   []string          `json:"players"`
	Roles     map[string]string `json:"roles"`
	Submitted []string          `json:"submitted"`
	Full      bool              `json:"full"`
	CreatedAt time.Time         `json:"createdAt"`
	StartedAt *time.Time        `json:"startedAt,omitempty"`
}

// GetRoomResponse wraps the room view.
type GetRoomResponse struct {
	Room RoomView `json:"room"`
}

// RoomsApp defines what the service layer needs from the rooms application
type RoomsApp interface {
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
}

// Service implements the RoomService connect handlers
type Service struct {
	app RoomsApp
}

// NewService creates a new rooms connect service
func NewService(app RoomsApp) *Service {
	return &Service{
		app: app,
	}
}

// GetRoom retrieves a room by ID
func (s *Service) GetRoom(ctx context.Context, req *connect.Request[GetRoomRequest]) (*connect.Response[GetRoomResponse], error) {
	room, err := s.app.GetRoom(ctx, req.Msg.RoomID)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&GetRoomResponse{
		Room: s.roomToView(room),
	}), nil
}

// NewRoomServiceHandler builds the HTTP handler for the service and returns
// the path prefix to mount it on.
func NewRoomServiceHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	getRoomHandler := connect.NewUnaryHandler(
		RoomServiceGetRoomProcedure,
		svc.GetRoom,
		opts...,
	)

	return "/" + RoomServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case RoomServiceGetRoomProcedure:
			getRoomHandler.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

func (s *Service) roomToView(room *models.Room) RoomView {
	roles := make(map[string]string, len(room.Roles))
	for participantID, role := range room.Roles {
		roles[participantID] = string(role)
	}

	submitted := make([]string, 0, len(room.Numbers))
	for participantID := range room.Numbers {
		submitted = append(submitted, participantID)
	}
	sort.Strings(submitted)

	return RoomView{
		ID:        room.ID,
		Players:   append([]string(nil), room.Players...),
		Roles:     roles,
		Submitted: submitted,
		Full:      room.IsFull(),
		CreatedAt: room.CreatedAt,
		StartedAt: room.StartedAt,
	}
}

func toConnectError(err error) *connect.Error {
	switch {
	case errors.Is(err, ErrValidation):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, ErrRoomFull):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, ErrStoreFailure):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
