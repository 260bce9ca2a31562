package room

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emily-flambe/games-sub001/internal/config"
	"github.com/emily-flambe/games-sub001/internal/game"
	"github.com/emily-flambe/games-sub001/internal/protocol"
	"github.com/emily-flambe/games-sub001/internal/testutil"
)

func TestRoom_SnapshotRoundTrip(t *testing.T) {
	t.Parallel()
	store := testutil.NewMemStore()
	r := New("ROUNDT", game.TypeCheckbox, store, testRoomConfig(), 100)

	connA, alice, aliceToken := joinPlayer(t, r, "Alice")
	joinPlayer(t, r, "Bob")
	joinSpectator(t, r, "Watcher")

	r.Dispatch(connA, protocol.MustNewMessage(protocol.MsgChat, protocol.ChatData{Text: "hello"}))
	r.Dispatch(connA, protocol.MustNewMessage(protocol.MsgStartGame, nil))
	r.Dispatch(connA, protocol.MustNewMessage(protocol.MsgGameAction, json.RawMessage(`{"cell":3}`)))
	before := r.View()
	r.Shutdown()

	snap, err := store.LoadSnapshot(context.Background(), "ROUNDT")
	require.NoError(t, err)
	require.NotNil(t, snap)

	restored := NewFromSnapshot(snap, store, testRoomConfig(), 100)
	t.Cleanup(restored.Shutdown)
	after := restored.View()

	assert.Equal(t, before.RoomCode, after.RoomCode)
	assert.Equal(t, before.GameType, after.GameType)
	assert.Equal(t, StatusPlaying, after.Status)
	assert.Equal(t, before.HostID, after.HostID)
	assert.JSONEq(t, string(before.GameState), string(after.GameState))
	require.Len(t, after.Players, 2)
	require.Len(t, after.Spectators, 1)
	require.Len(t, after.Chat, 1)
	assert.Equal(t, "hello", after.Chat[0].Text)
	for _, p := range after.Players {
		assert.False(t, p.Connected, "restored identities start disconnected")
	}

	// The rejoin token issued before the restart still resolves the identity.
	c := testutil.NewFakeConn()
	restored.Attach(c)
	restored.Dispatch(c, protocol.MustNewMessage(protocol.MsgJoinAsPlayer, protocol.JoinAsPlayerData{
		DisplayName: "Alice",
		RejoinToken: aliceToken,
	}))
	restored.View()

	msg := c.LastOfType(protocol.MsgJoinedAsPlayer)
	require.NotNil(t, msg)
	payload, err := protocol.ParsePayload[protocol.JoinedAsPlayerData](msg)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, payload.Player.ID)
	assert.True(t, payload.Reconnected)
}

func TestRoom_PersistFailureDegradesButServes(t *testing.T) {
	t.Parallel()
	store := testutil.NewMemStore()
	store.FailSaves = 1 << 30
	r := New("FAILSV", game.TypeCheckbox, store, testRoomConfig(), 100)

	c, _, _ := joinPlayer(t, r, "Alice")
	r.Dispatch(c, protocol.MustNewMessage(protocol.MsgChat, protocol.ChatData{Text: "still here"}))
	view := r.View()

	// Persistence is down, live service is not.
	assert.Equal(t, 0, store.Saves())
	require.Len(t, view.Players, 1)
	require.Len(t, view.Chat, 1)

	r.Shutdown()
	assert.True(t, r.degraded)
	assert.Equal(t, 0, store.Saves())
}

func TestRoom_PersistRecoversAfterFailure(t *testing.T) {
	t.Parallel()
	store := testutil.NewMemStore()
	cfg := testRoomConfig()
	cfg.SnapshotRetries = 0
	store.FailSaves = 1
	r := New("RECOVR", game.TypeCheckbox, store, cfg, 100)
	t.Cleanup(r.Shutdown)

	c, _, _ := joinPlayer(t, r, "Alice") // first save fails
	r.Dispatch(c, protocol.MustNewMessage(protocol.MsgRename, protocol.RenameData{DisplayName: "Alicia"}))
	r.View()

	assert.GreaterOrEqual(t, store.Saves(), 1, "the next mutation persists again")
	snap, err := store.LoadSnapshot(context.Background(), "RECOVR")
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.Len(t, snap.Players, 1)
	assert.Equal(t, "Alicia", snap.Players[0].DisplayName)
}

func TestRoom_IsEmptyRespectsGraceWindow(t *testing.T) {
	t.Parallel()

	t.Run("within grace window", func(t *testing.T) {
		t.Parallel()
		r, _ := newTestRoom(t, game.TypeCheckbox)
		c, _, _ := joinPlayer(t, r, "Alice")
		assert.False(t, r.IsEmpty())

		r.Detach(c)
		assert.False(t, r.IsEmpty(), "disconnected identity holds the room for 60s")
	})

	t.Run("expired grace window", func(t *testing.T) {
		t.Parallel()
		cfg := testRoomConfig()
		cfg.ReconnectGraceSeconds = 0
		r := New("GRACE0", game.TypeCheckbox, testutil.NewMemStore(), cfg, 100)
		t.Cleanup(r.Shutdown)

		c := testutil.NewFakeConn()
		r.Attach(c)
		r.Dispatch(c, protocol.MustNewMessage(protocol.MsgJoinAsPlayer, protocol.JoinAsPlayerData{DisplayName: "Alice"}))
		r.View()
		assert.False(t, r.IsEmpty())

		r.Detach(c)
		assert.True(t, r.IsEmpty())
	})
}

// TestRoom_HostInvariantUnderChurn drives a random mix of joins, disconnects,
// rejoins and leaves and checks after every step that a connected player
// implies a connected host.
func TestRoom_HostInvariantUnderChurn(t *testing.T) {
	t.Parallel()
	r, _ := newTestRoom(t, game.TypeCheckbox)
	rng := rand.New(rand.NewSource(42))

	type member struct {
		conn  *testutil.FakeConn
		id    string
		token string
	}
	var active []member
	var gone []member

	checkInvariant := func(step int) {
		view := r.View()
		anyConnected := false
		for _, p := range view.Players {
			if p.Connected {
				anyConnected = true
			}
		}
		if !anyConnected {
			return
		}
		require.NotEmpty(t, view.HostID, "step %d: connected players but no host", step)
		for _, p := range view.Players {
			if p.ID == view.HostID {
				require.True(t, p.Connected, "step %d: host %s is disconnected", step, p.ID)
				return
			}
		}
		t.Fatalf("step %d: host %s missing from roster", step, view.HostID)
	}

	for step := 0; step < 300; step++ {
		switch op := rng.Intn(4); {
		case op == 0 && len(active) < 40: // join fresh
			conn, player, token := joinPlayer(t, r, fmt.Sprintf("p%04d", step))
			active = append(active, member{conn: conn, id: player.ID, token: token})

		case op == 1 && len(active) > 0: // disconnect
			i := rng.Intn(len(active))
			m := active[i]
			r.Detach(m.conn)
			active = append(active[:i], active[i+1:]...)
			gone = append(gone, m)

		case op == 2 && len(gone) > 0: // rejoin
			i := rng.Intn(len(gone))
			m := gone[i]
			gone = append(gone[:i], gone[i+1:]...)

			c := testutil.NewFakeConn()
			r.Attach(c)
			r.Dispatch(c, protocol.MustNewMessage(protocol.MsgJoinAsPlayer, protocol.JoinAsPlayerData{
				DisplayName: "rejoined",
				RejoinToken: m.token,
			}))
			r.View()
			msg := c.LastOfType(protocol.MsgJoinedAsPlayer)
			require.NotNil(t, msg)
			payload, err := protocol.ParsePayload[protocol.JoinedAsPlayerData](msg)
			require.NoError(t, err)
			require.Equal(t, m.id, payload.Player.ID)
			active = append(active, member{conn: c, id: m.id, token: m.token})

		case op == 3 && len(active) > 0: // explicit leave
			i := rng.Intn(len(active))
			m := active[i]
			r.Dispatch(m.conn, protocol.MustNewMessage(protocol.MsgLeave, nil))
			active = append(active[:i], active[i+1:]...)
		}

		checkInvariant(step)
	}
}

func TestRegistry_CreateAndGet(t *testing.T) {
	t.Parallel()
	g := NewRegistry(testutil.NewMemStore(), registryConfig(), 100)
	t.Cleanup(g.Close)

	r, err := g.Create(game.TypeVotes)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Len(t, r.Code(), roomCodeLength)

	assert.Same(t, r, g.Get(r.Code()))
	assert.Nil(t, g.Get("NOSUCH"))
}

func TestRegistry_RejectsUnknownGameType(t *testing.T) {
	t.Parallel()
	g := NewRegistry(testutil.NewMemStore(), registryConfig(), 100)
	t.Cleanup(g.Close)

	_, err := g.Create("poker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown game type")
}

func TestRegistry_List(t *testing.T) {
	t.Parallel()
	g := NewRegistry(testutil.NewMemStore(), registryConfig(), 100)
	t.Cleanup(g.Close)

	r1, err := g.Create(game.TypeCheckbox)
	require.NoError(t, err)
	_, err = g.Create(game.TypeCounty)
	require.NoError(t, err)
	joinPlayer(t, r1, "Alice")

	summaries := g.List()
	require.Len(t, summaries, 2)
	byCode := make(map[string]RoomSummary)
	for _, s := range summaries {
		byCode[s.RoomCode] = s
	}
	assert.Equal(t, 1, byCode[r1.Code()].PlayerCount)
	assert.Equal(t, StatusWaiting, byCode[r1.Code()].Status)
}

func TestRegistry_RestoresAfterRestart(t *testing.T) {
	t.Parallel()
	store := testutil.NewMemStore()

	g1 := NewRegistry(store, registryConfig(), 100)
	r1, err := g1.Create(game.TypeCheckbox)
	require.NoError(t, err)
	code := r1.Code()
	_, alice, _ := joinPlayer(t, r1, "Alice")
	g1.Close() // flushes the final snapshot

	g2 := NewRegistry(store, registryConfig(), 100)
	t.Cleanup(g2.Close)
	r2 := g2.Get(code)
	require.NotNil(t, r2, "room comes back from the snapshot")

	view := r2.View()
	require.Len(t, view.Players, 1)
	assert.Equal(t, alice.ID, view.Players[0].ID)
	assert.False(t, view.Players[0].Connected)

	// Both lookups resolve to the same restored coordinator.
	assert.Same(t, r2, g2.Get(code))
}

func TestRegistry_ReapsIdleRooms(t *testing.T) {
	t.Parallel()
	cfg := registryConfig()
	cfg.ReconnectGraceSeconds = 0
	cfg.IdleReapMinutes = 0 // reap on the second empty observation
	g := NewRegistry(nil, cfg, 100)
	t.Cleanup(g.Close)

	r, err := g.Create(game.TypeCheckbox)
	require.NoError(t, err)
	code := r.Code()

	busy, err := g.Create(game.TypeCheckbox)
	require.NoError(t, err)
	joinPlayer(t, busy, "Alice")

	g.reapIdle() // marks the empty room
	require.NotNil(t, g.Get(code))
	g.reapIdle() // past the threshold now

	assert.Nil(t, g.Get(code), "idle room is gone")
	require.NotNil(t, g.Get(busy.Code()), "occupied room survives")
}

// registryConfig keeps the background reap ticker out of the way so tests
// drive reapIdle directly.
func registryConfig() config.RoomConfig {
	cfg := testRoomConfig()
	cfg.ReapIntervalSeconds = 3600
	cfg.IdleReapMinutes = 60
	return cfg
}
