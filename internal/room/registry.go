package room

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/emily-flambe/games-sub001/internal/config"
	"github.com/emily-flambe/games-sub001/internal/game"
	"github.com/emily-flambe/games-sub001/internal/logger"
)

const (
	roomCodeLength = 6
	roomCodeChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Registry owns the mapping from room code to coordinator. Rooms are created
// and looked up here, and reaped once they have been empty past the idle
// threshold; the coordinators themselves never self-terminate.
type Registry struct {
	store    SnapshotStore
	cfg      config.RoomConfig
	maxConns int

	mu         sync.RWMutex
	rooms      map[string]*Room
	emptySince map[string]time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// RoomSummary is the list-rooms view of one room.
type RoomSummary struct {
	RoomCode    string `json:"room_code"`
	GameType    string `json:"game_type"`
	Status      string `json:"status"`
	PlayerCount int    `json:"player_count"`
}

// NewRegistry creates the registry and starts its reap loop.
func NewRegistry(store SnapshotStore, cfg config.RoomConfig, maxConns int) *Registry {
	g := &Registry{
		store:      store,
		cfg:        cfg,
		maxConns:   maxConns,
		rooms:      make(map[string]*Room),
		emptySince: make(map[string]time.Time),
		stopCh:     make(chan struct{}),
	}
	g.wg.Add(1)
	go g.reapLoop()
	return g
}

// Create starts a new room for the given game type and returns it with its
// freshly generated code.
func (g *Registry) Create(gameType string) (*Room, error) {
	if !game.Known(gameType) {
		return nil, fmt.Errorf("unknown game type %q", gameType)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	code := g.generateCode()
	r := New(code, gameType, g.store, g.cfg, g.maxConns)
	g.rooms[code] = r
	logger.LogInfo("room %s created (game=%s)", code, gameType)
	return r, nil
}

// Get looks up a live room, falling back to the durable snapshot so a room
// survives a process restart.
func (g *Registry) Get(code string) *Room {
	g.mu.RLock()
	r, ok := g.rooms[code]
	g.mu.RUnlock()
	if ok {
		return r
	}
	return g.restore(code)
}

func (g *Registry) restore(code string) *Room {
	if g.store == nil {
		return nil
	}
	snap, err := loadSnapshot(g.store, code)
	if err != nil {
		logger.LogError("room %s: load snapshot: %v", code, err)
		return nil
	}
	if snap == nil {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.rooms[code]; ok { // lost the race, another restore won
		return r
	}
	r := NewFromSnapshot(snap, g.store, g.cfg, g.maxConns)
	g.rooms[code] = r
	logger.LogInfo("room %s restored from snapshot (game=%s)", code, r.gameType)
	return r
}

// List summarizes all live rooms.
func (g *Registry) List() []RoomSummary {
	g.mu.RLock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.mu.RUnlock()

	summaries := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		view := r.View()
		summaries = append(summaries, RoomSummary{
			RoomCode:    view.RoomCode,
			GameType:    view.GameType,
			Status:      view.Status,
			PlayerCount: len(view.Players),
		})
	}
	return summaries
}

// Close stops the reap loop and shuts down every room, flushing final
// snapshots.
func (g *Registry) Close() {
	g.stopOnce.Do(func() { close(g.stopCh) })
	g.wg.Wait()

	g.mu.Lock()
	rooms := g.rooms
	g.rooms = make(map[string]*Room)
	g.mu.Unlock()

	for _, r := range rooms {
		r.Shutdown()
	}
}

func (g *Registry) reapLoop() {
	defer g.wg.Done()
	ticker := time.NewTicker(g.cfg.ReapIntervalDuration())
	defer ticker.Stop()

	for {
		select {
		case <-g.stopCh:
			return
		case <-ticker.C:
			g.reapIdle()
		}
	}
}

// reapIdle shuts down rooms that have reported empty continuously past the
// idle threshold. The durable snapshot is left to expire via its TTL.
func (g *Registry) reapIdle() {
	g.mu.Lock()
	candidates := make(map[string]*Room, len(g.rooms))
	for code, r := range g.rooms {
		candidates[code] = r
	}
	g.mu.Unlock()

	now := time.Now()
	for code, r := range candidates {
		if !r.IsEmpty() {
			g.mu.Lock()
			delete(g.emptySince, code)
			g.mu.Unlock()
			continue
		}

		g.mu.Lock()
		since, ok := g.emptySince[code]
		if !ok {
			g.emptySince[code] = now
			g.mu.Unlock()
			continue
		}
		expired := now.Sub(since) >= g.cfg.IdleReapDuration()
		if expired {
			delete(g.rooms, code)
			delete(g.emptySince, code)
		}
		g.mu.Unlock()

		if expired {
			r.Shutdown()
			logger.LogInfo("room %s reaped after idling", code)
		}
	}
}

// generateCode returns a code not currently in use. Caller holds g.mu.
func (g *Registry) generateCode() string {
	for {
		b := make([]byte, roomCodeLength)
		for i := range b {
			b[i] = roomCodeChars[rand.Intn(len(roomCodeChars))]
		}
		code := string(b)
		if _, exists := g.rooms[code]; !exists {
			return code
		}
	}
}
