// Package storage persists room snapshots to Redis. The snapshot is the only
// durable artifact; its shape must round-trip exactly through a full
// write → restart → read cycle.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const snapshotKeyPrefix = "room:snapshot:"

// SessionData is the persisted session header.
type SessionData struct {
	RoomCode  string `json:"room_code"`
	GameType  string `json:"game_type"`
	Status    string `json:"status"` // waiting | playing | finished
	HostID    string `json:"host_id,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// PlayerData is one persisted player record.
type PlayerData struct {
	ID             string `json:"id"`
	DisplayName    string `json:"display_name"`
	AvatarSymbol   string `json:"avatar_symbol"`
	RejoinToken    string `json:"rejoin_token"`
	Connected      bool   `json:"connected"`
	JoinedAt       int64  `json:"joined_at"`
	DisconnectedAt int64  `json:"disconnected_at,omitempty"`
}

// SpectatorData is one persisted spectator record.
type SpectatorData struct {
	ID             string `json:"id"`
	DisplayName    string `json:"display_name"`
	RejoinToken    string `json:"rejoin_token"`
	Connected      bool   `json:"connected"`
	JoinedAt       int64  `json:"joined_at"`
	DisconnectedAt int64  `json:"disconnected_at,omitempty"`
}

// ChatMessageData is one persisted chat line.
type ChatMessageData struct {
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
}

// Snapshot is the full durable state of one room, written after every
// mutating message and read back on cold start.
type Snapshot struct {
	Session    SessionData       `json:"session"`
	Players    []PlayerData      `json:"players"`
	Spectators []SpectatorData   `json:"spectators"`
	Chat       []ChatMessageData `json:"chat"`
	GameState  json.RawMessage   `json:"game_state,omitempty"`
}

// Store persists snapshots keyed by room code.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a snapshot store. Snapshots expire after ttl; a ttl of
// zero keeps them forever.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// SaveSnapshot writes a room snapshot, refreshing its TTL.
func (s *Store) SaveSnapshot(ctx context.Context, roomCode string, snap *Snapshot) error {
	if snap == nil {
		return nil
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("serialize snapshot for room %s: %w", roomCode, err)
	}

	return s.client.Set(ctx, snapshotKeyPrefix+roomCode, data, s.ttl).Err()
}

// LoadSnapshot reads a room snapshot. A missing snapshot returns (nil, nil).
func (s *Store) LoadSnapshot(ctx context.Context, roomCode string) (*Snapshot, error) {
	data, err := s.client.Get(ctx, snapshotKeyPrefix+roomCode).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("deserialize snapshot for room %s: %w", roomCode, err)
	}
	return &snap, nil
}

// DeleteSnapshot removes a room snapshot.
func (s *Store) DeleteSnapshot(ctx context.Context, roomCode string) error {
	return s.client.Del(ctx, snapshotKeyPrefix+roomCode).Err()
}

// ListRoomCodes returns the codes of all persisted rooms.
func (s *Store) ListRoomCodes(ctx context.Context) ([]string, error) {
	keys, err := s.client.Keys(ctx, snapshotKeyPrefix+"*").Result()
	if err != nil {
		return nil, err
	}

	codes := make([]string, len(keys))
	for i, key := range keys {
		codes[i] = key[len(snapshotKeyPrefix):]
	}
	return codes, nil
}
