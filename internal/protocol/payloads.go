package protocol

import "encoding/json"

// --- Client request payloads ---

// JoinAsPlayerData requests a player seat. RejoinToken rebinds a disconnected
// identity instead of creating a new one.
type JoinAsPlayerData struct {
	DisplayName  string `json:"display_name"`
	AvatarSymbol string `json:"avatar_symbol"`
	RejoinToken  string `json:"rejoin_token,omitempty"`
}

// JoinAsSpectatorData requests a spectator seat.
type JoinAsSpectatorData struct {
	DisplayName string `json:"display_name"`
	RejoinToken string `json:"rejoin_token,omitempty"`
}

// RenameData changes the sender's display name.
type RenameData struct {
	DisplayName string `json:"display_name"`
}

// ChangeAvatarData changes the sender's avatar symbol.
type ChangeAvatarData struct {
	AvatarSymbol string `json:"avatar_symbol"`
}

// ChatData is an inbound chat line.
type ChatData struct {
	Text string `json:"text"`
}

// PingData carries the client clock for latency measurement.
type PingData struct {
	Timestamp int64 `json:"timestamp"`
}

// --- Server response payloads ---

// PlayerInfo is the roster view of one player.
type PlayerInfo struct {
	ID           string `json:"id"`
	DisplayName  string `json:"display_name"`
	AvatarSymbol string `json:"avatar_symbol"`
	Connected    bool   `json:"connected"`
	IsHost       bool   `json:"is_host"`
	JoinedAt     int64  `json:"joined_at"`
}

// SpectatorInfo is the roster view of one spectator.
type SpectatorInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Connected   bool   `json:"connected"`
	JoinedAt    int64  `json:"joined_at"`
}

// ChatEntry is one retained chat line.
type ChatEntry struct {
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
}

// RoomStateData is the full room snapshot sent on join and on reconnect, so a
// client can render without replaying history.
type RoomStateData struct {
	RoomCode   string          `json:"room_code"`
	GameType   string          `json:"game_type"`
	Status     string          `json:"status"`
	HostID     string          `json:"host_id,omitempty"`
	Players    []PlayerInfo    `json:"players"`
	Spectators []SpectatorInfo `json:"spectators"`
	Chat       []ChatEntry     `json:"chat"`
	GameState  json.RawMessage `json:"game_state,omitempty"`
}

// JoinedAsPlayerData confirms a player join and hands out the rejoin token.
type JoinedAsPlayerData struct {
	Player      PlayerInfo     `json:"player"`
	RejoinToken string         `json:"rejoin_token"`
	Reconnected bool           `json:"reconnected"`
	Room        *RoomStateData `json:"room,omitempty"`
}

// JoinedAsSpectatorData confirms a spectator join.
type JoinedAsSpectatorData struct {
	Spectator   SpectatorInfo  `json:"spectator"`
	RejoinToken string         `json:"rejoin_token"`
	Reconnected bool           `json:"reconnected"`
	Room        *RoomStateData `json:"room,omitempty"`
}

// PlayerJoinedData announces a new or returning participant to the room.
type PlayerJoinedData struct {
	Player PlayerInfo `json:"player"`
}

// PlayerLeftData announces an explicit leave or a disconnect.
type PlayerLeftData struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
}

// SpectatorJoinedData announces a spectator.
type SpectatorJoinedData struct {
	Spectator SpectatorInfo `json:"spectator"`
}

// HostAssignedData names the newly elected host.
type HostAssignedData struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
}

// PlayerRenamedData announces a display-name change.
type PlayerRenamedData struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
}

// AvatarChangedData announces an avatar change.
type AvatarChangedData struct {
	PlayerID     string `json:"player_id"`
	AvatarSymbol string `json:"avatar_symbol"`
}

// GameStartedData announces the transition to playing.
type GameStartedData struct {
	GameType  string          `json:"game_type"`
	GameState json.RawMessage `json:"game_state"`
}

// GameStateUpdateData carries the adapter's new state blob and optional delta.
type GameStateUpdateData struct {
	GameState json.RawMessage `json:"game_state"`
	Delta     json.RawMessage `json:"delta,omitempty"`
}

// GameActionResultData is the targeted acknowledgement of one action.
type GameActionResultData struct {
	Accepted bool            `json:"accepted"`
	Delta    json.RawMessage `json:"delta,omitempty"`
}

// GameEndedData announces the win result and final state.
type GameEndedData struct {
	Winners   []string        `json:"winners"`
	Detail    string          `json:"detail,omitempty"`
	GameState json.RawMessage `json:"game_state"`
}

// ErrorData is the payload of an error message.
type ErrorData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// PongData answers a ping.
type PongData struct {
	ClientTimestamp int64 `json:"client_timestamp"`
	ServerTimestamp int64 `json:"server_timestamp"`
}
