package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emily-flambe/games-sub001/internal/game"
	"github.com/emily-flambe/games-sub001/internal/protocol"
	"github.com/emily-flambe/games-sub001/internal/testutil"
)

// bareRoom builds a room without starting its goroutine, so fan-out internals
// can be driven directly.
func bareRoom() *Room {
	return &Room{
		code:       "BARE01",
		players:    make(map[string]*playerRecord),
		spectators: make(map[string]*spectatorRecord),
		conns:      make(map[Conn]*connRecord),
		byIdentity: make(map[string]Conn),
	}
}

func TestMatches(t *testing.T) {
	t.Parallel()
	r := bareRoom()

	player := &connRecord{identityID: "p1", role: RolePlayer}
	spectator := &connRecord{identityID: "s1", role: RoleSpectator}
	unjoined := &connRecord{}

	tests := []struct {
		name string
		out  outbound
		rec  *connRecord
		want bool
	}{
		{name: "all reaches player", out: outbound{audience: audienceAll}, rec: player, want: true},
		{name: "all reaches spectator", out: outbound{audience: audienceAll}, rec: spectator, want: true},
		{name: "all reaches unjoined socket", out: outbound{audience: audienceAll}, rec: unjoined, want: true},
		{name: "playersOnly reaches player", out: outbound{audience: audiencePlayers}, rec: player, want: true},
		{name: "playersOnly skips spectator", out: outbound{audience: audiencePlayers}, rec: spectator, want: false},
		{name: "playersOnly skips unjoined", out: outbound{audience: audiencePlayers}, rec: unjoined, want: false},
		{name: "target hits owner", out: outbound{audience: audienceTarget, targetID: "p1"}, rec: player, want: true},
		{name: "target skips others", out: outbound{audience: audienceTarget, targetID: "p1"}, rec: spectator, want: false},
		{name: "target skips unjoined", out: outbound{audience: audienceTarget, targetID: ""}, rec: unjoined, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, r.matches(tt.out, tt.rec))
		})
	}
}

func TestDeliverDropsDeadSocketMidBatch(t *testing.T) {
	t.Parallel()
	r := bareRoom()

	alive := testutil.NewFakeConn()
	dead := testutil.NewFakeConn()
	dead.FailSend = true
	r.conns[alive] = &connRecord{identityID: "p1", role: RolePlayer}
	r.conns[dead] = &connRecord{identityID: "p2", role: RolePlayer}

	r.queueBroadcast(protocol.MsgChatBroadcast, protocol.ChatEntry{Text: "one"}, audienceAll, "")
	r.queueBroadcast(protocol.MsgChatBroadcast, protocol.ChatEntry{Text: "two"}, audienceAll, "")
	batch := r.pending
	r.pending = nil

	deadConns := r.deliver(batch)

	require.Len(t, deadConns, 1, "the failing socket is reported exactly once")
	assert.Same(t, dead, deadConns[0].(*testutil.FakeConn))
	assert.Len(t, alive.Messages(), 2, "the healthy socket still gets the whole batch")
}

func TestQueueHostAssignedPrecedesPending(t *testing.T) {
	t.Parallel()
	r := bareRoom()
	r.hostID = "p1"
	r.players["p1"] = &playerRecord{id: "p1", displayName: "Alice", connected: true, joinedAt: time.Now()}

	r.queueBroadcast(protocol.MsgPlayerDisconnected, protocol.PlayerLeftData{PlayerID: "p2"}, audienceAll, "")
	r.queueHostAssigned()

	require.Len(t, r.pending, 2)
	first, err := protocol.Decode(r.pending[0].data)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgHostAssigned, first.Type)
}

func TestQueueHostAssignedNoHost(t *testing.T) {
	t.Parallel()
	r := bareRoom()
	r.queueHostAssigned()
	assert.Empty(t, r.pending, "no election event without a host")
}

func TestRoom_UnknownMessageTypeIgnored(t *testing.T) {
	t.Parallel()
	r, _ := newTestRoom(t, game.TypeCheckbox)
	c, _, _ := joinPlayer(t, r, "Alice")

	before := len(c.Messages())
	r.Dispatch(c, &protocol.Message{Type: "teleport"})
	view := r.View()

	assert.False(t, c.Closed(), "unknown types never cost the connection")
	assert.Len(t, c.Messages(), before, "no reply, not even an error")
	assert.Len(t, view.Players, 1)
}
