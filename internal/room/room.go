// Package room implements the per-room session coordinator: connection
// admission, identity and role management, host election, ordered broadcast,
// chat history and durable snapshots. Each room is a single goroutine
// consuming a mailbox, so roster and game state need no locking.
package room

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/emily-flambe/games-sub001/internal/config"
	"github.com/emily-flambe/games-sub001/internal/game"
	"github.com/emily-flambe/games-sub001/internal/logger"
	"github.com/emily-flambe/games-sub001/internal/protocol"
	"github.com/emily-flambe/games-sub001/internal/storage"
)

// Session status values.
const (
	StatusWaiting  = "waiting"
	StatusPlaying  = "playing"
	StatusFinished = "finished"
)

// Participant roles.
const (
	RolePlayer    = "player"
	RoleSpectator = "spectator"
)

// Conn is the coordinator's view of one open socket. Send must not block;
// it reports false when the connection is gone or its buffer is full.
type Conn interface {
	Send(data []byte) bool
	Close()
}

type playerRecord struct {
	id             string
	displayName    string
	avatarSymbol   string
	rejoinToken    string
	connected      bool
	joinedAt       time.Time
	disconnectedAt time.Time
}

type spectatorRecord struct {
	id             string
	displayName    string
	rejoinToken    string
	connected      bool
	joinedAt       time.Time
	disconnectedAt time.Time
}

// connRecord tracks an admitted socket. The identity is empty until the
// socket completes a join.
type connRecord struct {
	identityID string
	role       string
}

type cmdKind int

const (
	cmdAttach cmdKind = iota
	cmdDetach
	cmdInbound
	cmdView
	cmdEmpty
	cmdShutdown
)

type command struct {
	kind  cmdKind
	conn  Conn
	msg   *protocol.Message
	view  chan protocol.RoomStateData
	empty chan bool
	done  chan struct{}
}

const mailboxSize = 256

// Room is one room coordinator. All fields below the mailbox are owned by
// the run goroutine and must not be touched from outside it.
type Room struct {
	mailbox   chan command
	closed    chan struct{}
	closeOnce sync.Once

	store    SnapshotStore
	cfg      config.RoomConfig
	maxConns int

	code      string
	gameType  string
	status    string
	hostID    string
	createdAt time.Time

	players    map[string]*playerRecord
	spectators map[string]*spectatorRecord
	tokens     map[string]string // rejoin token -> identity id

	conns      map[Conn]*connRecord
	byIdentity map[string]Conn

	chat      []storage.ChatMessageData
	adapter   game.Adapter
	gameState json.RawMessage

	pending  []outbound
	dirty    bool
	degraded bool
}

// New creates a room coordinator and starts its processing goroutine.
func New(code, gameType string, store SnapshotStore, cfg config.RoomConfig, maxConns int) *Room {
	r := &Room{
		mailbox:    make(chan command, mailboxSize),
		closed:     make(chan struct{}),
		store:      store,
		cfg:        cfg,
		maxConns:   maxConns,
		code:       code,
		gameType:   gameType,
		status:     StatusWaiting,
		createdAt:  time.Now(),
		players:    make(map[string]*playerRecord),
		spectators: make(map[string]*spectatorRecord),
		tokens:     make(map[string]string),
		conns:      make(map[Conn]*connRecord),
		byIdentity: make(map[string]Conn),
	}
	go r.run()
	return r
}

// NewFromSnapshot rebuilds a room from its durable snapshot. All identities
// come back disconnected with a fresh reconnect grace window.
func NewFromSnapshot(snap *storage.Snapshot, store SnapshotStore, cfg config.RoomConfig, maxConns int) *Room {
	r := New(snap.Session.RoomCode, snap.Session.GameType, store, cfg, maxConns)

	// Safe before any command is processed: the mailbox is still empty and
	// nothing has been handed a reference to the maps.
	now := time.Now()
	r.status = snap.Session.Status
	r.hostID = snap.Session.HostID
	r.createdAt = time.UnixMilli(snap.Session.CreatedAt)
	for _, p := range snap.Players {
		rec := &playerRecord{
			id:             p.ID,
			displayName:    p.DisplayName,
			avatarSymbol:   p.AvatarSymbol,
			rejoinToken:    p.RejoinToken,
			joinedAt:       time.UnixMilli(p.JoinedAt),
			disconnectedAt: now,
		}
		r.players[p.ID] = rec
		r.tokens[p.RejoinToken] = p.ID
	}
	for _, sp := range snap.Spectators {
		rec := &spectatorRecord{
			id:             sp.ID,
			displayName:    sp.DisplayName,
			rejoinToken:    sp.RejoinToken,
			joinedAt:       time.UnixMilli(sp.JoinedAt),
			disconnectedAt: now,
		}
		r.spectators[sp.ID] = rec
		r.tokens[sp.RejoinToken] = sp.ID
	}
	r.chat = append(r.chat, snap.Chat...)
	r.gameState = snap.GameState
	return r
}

// Code returns the room code.
func (r *Room) Code() string { return r.code }

// GameType returns the room's game type.
func (r *Room) GameType() string { return r.gameType }

// Attach admits a socket into the room. The 101st socket is rejected with an
// explicit error before the connection is closed.
func (r *Room) Attach(c Conn) {
	if !r.enqueue(command{kind: cmdAttach, conn: c}) {
		c.Close()
	}
}

// Detach releases a socket that closed. The identity record survives for the
// reconnect grace window.
func (r *Room) Detach(c Conn) {
	r.enqueue(command{kind: cmdDetach, conn: c})
}

// Dispatch queues one inbound message for processing. Per-connection FIFO
// order into the mailbox is the room's authoritative ordering.
func (r *Room) Dispatch(c Conn, msg *protocol.Message) {
	r.enqueue(command{kind: cmdInbound, conn: c, msg: msg})
}

// View returns the current room state as seen by a spectator.
func (r *Room) View() protocol.RoomStateData {
	reply := make(chan protocol.RoomStateData, 1)
	if !r.enqueue(command{kind: cmdView, view: reply}) {
		return protocol.RoomStateData{RoomCode: r.code, GameType: r.gameType}
	}
	select {
	case view := <-reply:
		return view
	case <-r.closed:
		// The command may still have been answered before the loop stopped.
		select {
		case view := <-reply:
			return view
		default:
			return protocol.RoomStateData{RoomCode: r.code, GameType: r.gameType}
		}
	}
}

// IsEmpty reports whether no identity is connected and none is still inside
// the reconnect grace window. The registry uses this to decide reaping.
func (r *Room) IsEmpty() bool {
	reply := make(chan bool, 1)
	if !r.enqueue(command{kind: cmdEmpty, empty: reply}) {
		return true
	}
	select {
	case empty := <-reply:
		return empty
	case <-r.closed:
		select {
		case empty := <-reply:
			return empty
		default:
			return true
		}
	}
}

// Shutdown flushes a final snapshot, closes every connection and stops the
// room goroutine. Called by the registry; the room never self-terminates.
func (r *Room) Shutdown() {
	done := make(chan struct{})
	if r.enqueue(command{kind: cmdShutdown, done: done}) {
		select {
		case <-done:
		case <-r.closed:
		}
	}
}

// enqueue races the mailbox send against the closed signal; a send can still
// win after close, leaving the command unprocessed. Callers that wait for a
// reply must therefore also select on r.closed.
func (r *Room) enqueue(cmd command) bool {
	select {
	case <-r.closed:
		return false
	case r.mailbox <- cmd:
		return true
	}
}

func (r *Room) run() {
	for cmd := range r.mailbox {
		if r.handle(cmd) {
			return
		}
	}
}

// handle processes exactly one command to completion. It returns true when
// the room should stop.
func (r *Room) handle(cmd command) (stop bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.LogPanic(rec)
			r.pending = r.pending[:0]
			r.dirty = false
		}
	}()

	switch cmd.kind {
	case cmdAttach:
		r.handleAttach(cmd.conn)
	case cmdDetach:
		r.releaseConn(cmd.conn)
	case cmdInbound:
		r.handleInbound(cmd.conn, cmd.msg)
	case cmdView:
		cmd.view <- r.buildRoomState()
		return false
	case cmdEmpty:
		cmd.empty <- r.isEmptyLocked()
		return false
	case cmdShutdown:
		r.persist()
		for c := range r.conns {
			c.Close()
		}
		r.closeOnce.Do(func() { close(r.closed) })
		close(cmd.done)
		return true
	}

	r.finish()
	return false
}

// finish runs the apply → persist → broadcast tail of a command. Write
// failures during fan-out release the dead connection, which may queue
// further events; the loop drains until quiescent.
func (r *Room) finish() {
	for {
		if r.dirty {
			r.persist()
			r.dirty = false
		}
		if len(r.pending) == 0 {
			return
		}
		batch := r.pending
		r.pending = nil
		for _, dead := range r.deliver(batch) {
			r.releaseConn(dead)
		}
	}
}

func (r *Room) handleAttach(c Conn) {
	if len(r.conns) >= r.maxConns {
		r.sendTo(c, protocol.NewErrorMessage(protocol.ErrCodeConnectionLimit))
		c.Close()
		logger.LogInfo("room %s: connection rejected, limit %d reached", r.code, r.maxConns)
		return
	}
	r.conns[c] = &connRecord{}
}

// releaseConn drops a socket. A joined identity is flipped to disconnected
// but retained; host loss triggers an immediate election whose host_assigned
// event goes out ahead of the disconnect notice.
func (r *Room) releaseConn(c Conn) {
	rec, ok := r.conns[c]
	if !ok {
		return
	}
	delete(r.conns, c)
	if rec.identityID == "" {
		return
	}
	delete(r.byIdentity, rec.identityID)

	now := time.Now()
	var name string
	switch rec.role {
	case RolePlayer:
		if p := r.players[rec.identityID]; p != nil {
			p.connected = false
			p.disconnectedAt = now
			name = p.displayName
		}
	case RoleSpectator:
		if sp := r.spectators[rec.identityID]; sp != nil {
			sp.connected = false
			sp.disconnectedAt = now
			name = sp.displayName
		}
	}
	r.dirty = true

	if r.ensureHost() {
		r.queueHostAssigned()
	}
	r.queueBroadcast(protocol.MsgPlayerDisconnected, protocol.PlayerLeftData{
		PlayerID:    rec.identityID,
		DisplayName: name,
	}, audienceAll, "")
	logger.LogInfo("room %s: %s (%s) disconnected", r.code, name, rec.identityID)
}

func (r *Room) isEmptyLocked() bool {
	if len(r.conns) > 0 {
		return false
	}
	grace := r.cfg.ReconnectGraceDuration()
	now := time.Now()
	for _, p := range r.players {
		if p.connected || now.Sub(p.disconnectedAt) < grace {
			return false
		}
	}
	for _, sp := range r.spectators {
		if sp.connected || now.Sub(sp.disconnectedAt) < grace {
			return false
		}
	}
	return true
}

// sendTo serializes and writes one message to a single socket, releasing the
// connection on failure.
func (r *Room) sendTo(c Conn, msg *protocol.Message) {
	data, err := msg.Encode()
	if err != nil {
		logger.LogError("room %s: encode %s: %v", r.code, msg.Type, err)
		return
	}
	if !c.Send(data) {
		r.releaseConn(c)
	}
}
