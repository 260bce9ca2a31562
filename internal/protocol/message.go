package protocol

import "encoding/json"

// Message is the wire envelope exchanged over every WebSocket connection.
// Data carries a per-type payload; PlayerID and Timestamp are optional and
// filled by the server on outbound events.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	PlayerID  string          `json:"playerId,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// MessageType identifies a message kind.
type MessageType string

// Client → server message types.
const (
	MsgJoinAsPlayer    MessageType = "join_as_player"
	MsgJoinAsSpectator MessageType = "join_as_spectator"
	MsgRename          MessageType = "rename"
	MsgChangeAvatar    MessageType = "change_avatar"
	MsgStartGame       MessageType = "start_game"
	MsgGameAction      MessageType = "game_action"
	MsgChat            MessageType = "chat_message"
	MsgLeave           MessageType = "leave"
	MsgPing            MessageType = "ping"
)

// Server → client message types.
const (
	MsgJoinedAsPlayer      MessageType = "joined_as_player"
	MsgJoinedAsSpectator   MessageType = "joined_as_spectator"
	MsgPlayerJoined        MessageType = "player_joined"
	MsgPlayerLeft          MessageType = "player_left"
	MsgPlayerDisconnected  MessageType = "player_disconnected"
	MsgPlayerReconnected   MessageType = "player_reconnected"
	MsgHostAssigned        MessageType = "host_assigned"
	MsgPlayerRenamed       MessageType = "player_renamed"
	MsgAvatarChanged       MessageType = "avatar_changed"
	MsgSpectatorJoined     MessageType = "spectator_joined"
	MsgSpectatorLeft       MessageType = "spectator_left"
	MsgGameStarted         MessageType = "game_started"
	MsgGameStateUpdate     MessageType = "game_state_update"
	MsgGameActionResult    MessageType = "game_action_result"
	MsgGameEnded           MessageType = "game_ended"
	MsgChatBroadcast       MessageType = "chat_message"
	MsgRoomState           MessageType = "room_state"
	MsgError               MessageType = "error"
	MsgPong                MessageType = "pong"
)

// Error codes carried in ErrorData.Code.
const (
	ErrCodeUnknown          = 1000
	ErrCodeInvalidMessage   = 1001
	ErrCodeUnknownType      = 1002
	ErrCodeRateLimit        = 1003
	ErrCodeConnectionLimit  = 2001
	ErrCodeRoomNotFound     = 2002
	ErrCodePermissionDenied = 3001
	ErrCodeGameNotStarted   = 3002
	ErrCodeGameOver         = 3003
	ErrCodeGameAdapter      = 3004
)

// ErrorMessages maps error codes to their default client-facing text.
var ErrorMessages = map[int]string{
	ErrCodeUnknown:          "unknown error",
	ErrCodeInvalidMessage:   "invalid message format",
	ErrCodeUnknownType:      "unknown message type",
	ErrCodeRateLimit:        "too many messages, slow down",
	ErrCodeConnectionLimit:  "room connection limit reached",
	ErrCodeRoomNotFound:     "room not found",
	ErrCodePermissionDenied: "you are not allowed to do that",
	ErrCodeGameNotStarted:   "game has not started",
	ErrCodeGameOver:         "game is already over",
	ErrCodeGameAdapter:      "invalid game action",
}
