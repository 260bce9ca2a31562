package apperrors

import (
	"github.com/emily-flambe/games-sub001/internal/protocol"
)

// RoomError is a client-visible rejection. Handlers turn these into targeted
// error replies; they never abort the room loop.
type RoomError struct {
	Code    int
	Message string
}

func (e *RoomError) Error() string {
	return e.Message
}

var (
	ErrConnectionLimit  = &RoomError{Code: protocol.ErrCodeConnectionLimit, Message: "room connection limit reached"}
	ErrRoomNotFound     = &RoomError{Code: protocol.ErrCodeRoomNotFound, Message: "room not found"}
	ErrPermissionDenied = &RoomError{Code: protocol.ErrCodePermissionDenied, Message: "you are not allowed to do that"}
	ErrNotHost          = &RoomError{Code: protocol.ErrCodePermissionDenied, Message: "only the host can do that"}
	ErrSpectatorAction  = &RoomError{Code: protocol.ErrCodePermissionDenied, Message: "spectators cannot submit game actions"}
	ErrNotJoined        = &RoomError{Code: protocol.ErrCodePermissionDenied, Message: "join the room first"}
	ErrGameNotStarted   = &RoomError{Code: protocol.ErrCodeGameNotStarted, Message: "game has not started"}
	ErrGameInProgress   = &RoomError{Code: protocol.ErrCodeGameNotStarted, Message: "game already in progress"}
	ErrGameOver         = &RoomError{Code: protocol.ErrCodeGameOver, Message: "game is already over"}
	ErrInvalidMessage   = &RoomError{Code: protocol.ErrCodeInvalidMessage, Message: "invalid message format"}
)
