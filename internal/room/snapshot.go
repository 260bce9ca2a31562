package room

import (
	"context"
	"sort"
	"time"

	"github.com/emily-flambe/games-sub001/internal/logger"
	"github.com/emily-flambe/games-sub001/internal/storage"
)

// SnapshotStore is the durable side of the coordinator. *storage.Store
// implements it; tests substitute an in-memory fake.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, roomCode string, snap *storage.Snapshot) error
	LoadSnapshot(ctx context.Context, roomCode string) (*storage.Snapshot, error)
	DeleteSnapshot(ctx context.Context, roomCode string) error
}

const persistTimeout = 2 * time.Second

func loadSnapshot(store SnapshotStore, code string) (*storage.Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	return store.LoadSnapshot(ctx, code)
}

// buildSnapshot captures the full durable state of the room.
func (r *Room) buildSnapshot() *storage.Snapshot {
	snap := &storage.Snapshot{
		Session: storage.SessionData{
			RoomCode:  r.code,
			GameType:  r.gameType,
			Status:    r.status,
			HostID:    r.hostID,
			CreatedAt: r.createdAt.UnixMilli(),
		},
		Players:    make([]storage.PlayerData, 0, len(r.players)),
		Spectators: make([]storage.SpectatorData, 0, len(r.spectators)),
		Chat:       append([]storage.ChatMessageData(nil), r.chat...),
		GameState:  r.gameState,
	}

	for _, p := range r.players {
		data := storage.PlayerData{
			ID:           p.id,
			DisplayName:  p.displayName,
			AvatarSymbol: p.avatarSymbol,
			RejoinToken:  p.rejoinToken,
			Connected:    p.connected,
			JoinedAt:     p.joinedAt.UnixMilli(),
		}
		if !p.disconnectedAt.IsZero() {
			data.DisconnectedAt = p.disconnectedAt.UnixMilli()
		}
		snap.Players = append(snap.Players, data)
	}
	sort.Slice(snap.Players, func(i, j int) bool { return snap.Players[i].ID < snap.Players[j].ID })

	for _, sp := range r.spectators {
		data := storage.SpectatorData{
			ID:          sp.id,
			DisplayName: sp.displayName,
			RejoinToken: sp.rejoinToken,
			Connected:   sp.connected,
			JoinedAt:    sp.joinedAt.UnixMilli(),
		}
		if !sp.disconnectedAt.IsZero() {
			data.DisconnectedAt = sp.disconnectedAt.UnixMilli()
		}
		snap.Spectators = append(snap.Spectators, data)
	}
	sort.Slice(snap.Spectators, func(i, j int) bool { return snap.Spectators[i].ID < snap.Spectators[j].ID })

	return snap
}

// persist writes the current snapshot with bounded retries. Exhausting the
// retries flags the room degraded but keeps it serving from memory; recovery
// is only lost, not live service.
func (r *Room) persist() {
	if r.store == nil {
		return
	}
	snap := r.buildSnapshot()

	var lastErr error
	for attempt := 0; attempt <= r.cfg.SnapshotRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(r.cfg.SnapshotBackoffDuration() * time.Duration(attempt))
		}
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		lastErr = r.store.SaveSnapshot(ctx, r.code, snap)
		cancel()
		if lastErr == nil {
			if r.degraded {
				r.degraded = false
				logger.LogInfo("room %s: persistence recovered", r.code)
			}
			return
		}
	}

	if !r.degraded {
		r.degraded = true
		logger.LogError("room %s: persistence failing, serving from memory only: %v", r.code, lastErr)
	}
}
