package room

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/emily-flambe/games-sub001/internal/apperrors"
	"github.com/emily-flambe/games-sub001/internal/logger"
	"github.com/emily-flambe/games-sub001/internal/protocol"
	"github.com/emily-flambe/games-sub001/internal/storage"
)

const (
	maxNameLen = 50
	maxChatLen = 1000
)

// handleInbound routes one decoded message. Per-message failures reply to
// the sender only and never leak out of this call.
func (r *Room) handleInbound(c Conn, msg *protocol.Message) {
	rec, ok := r.conns[c]
	if !ok {
		// Socket raced its own close; nothing to do.
		return
	}

	switch msg.Type {
	case protocol.MsgPing:
		r.handlePing(c, msg)
	case protocol.MsgJoinAsPlayer:
		r.handleJoinAsPlayer(c, rec, msg)
	case protocol.MsgJoinAsSpectator:
		r.handleJoinAsSpectator(c, rec, msg)
	case protocol.MsgRename:
		r.withIdentity(c, rec, func() { r.handleRename(c, rec, msg) })
	case protocol.MsgChangeAvatar:
		r.withIdentity(c, rec, func() { r.handleChangeAvatar(c, rec, msg) })
	case protocol.MsgChat:
		r.withIdentity(c, rec, func() { r.handleChat(c, rec, msg) })
	case protocol.MsgStartGame:
		r.withIdentity(c, rec, func() { r.handleStartGame(c, rec) })
	case protocol.MsgGameAction:
		r.withIdentity(c, rec, func() { r.handleGameAction(c, rec, msg) })
	case protocol.MsgLeave:
		r.withIdentity(c, rec, func() { r.handleLeave(c, rec) })
	default:
		logger.LogInfo("room %s: unknown message type %q ignored", r.code, msg.Type)
	}
}

func (r *Room) withIdentity(c Conn, rec *connRecord, fn func()) {
	if rec.identityID == "" {
		r.sendRoomError(c, apperrors.ErrNotJoined)
		return
	}
	fn()
}

func (r *Room) sendRoomError(c Conn, err *apperrors.RoomError) {
	r.sendTo(c, protocol.NewErrorMessageWithText(err.Code, err.Message))
}

func (r *Room) handlePing(c Conn, msg *protocol.Message) {
	payload, err := protocol.ParsePayload[protocol.PingData](msg)
	if err != nil {
		return
	}
	r.sendTo(c, protocol.MustNewMessage(protocol.MsgPong, protocol.PongData{
		ClientTimestamp: payload.Timestamp,
		ServerTimestamp: time.Now().UnixMilli(),
	}))
}

func (r *Room) handleJoinAsPlayer(c Conn, rec *connRecord, msg *protocol.Message) {
	if rec.identityID != "" {
		r.sendRoomError(c, apperrors.ErrInvalidMessage)
		return
	}
	payload, err := protocol.ParsePayload[protocol.JoinAsPlayerData](msg)
	if err != nil {
		r.sendTo(c, protocol.NewErrorMessage(protocol.ErrCodeInvalidMessage))
		return
	}

	// A valid rejoin token rebinds the retained identity to this socket.
	if p := r.rejoinPlayer(payload.RejoinToken); p != nil {
		r.bindConn(c, rec, p.id, RolePlayer)
		p.connected = true
		p.disconnectedAt = time.Time{}
		r.dirty = true

		if r.ensureHost() {
			r.queueHostAssigned()
		}
		r.queueBroadcast(protocol.MsgJoinedAsPlayer, protocol.JoinedAsPlayerData{
			Player:      r.playerInfo(p),
			RejoinToken: p.rejoinToken,
			Reconnected: true,
		}, audienceTarget, p.id)
		// Full resync so the client can render without replaying history.
		r.queueBroadcast(protocol.MsgRoomState, r.buildRoomState(), audienceTarget, p.id)
		r.queueBroadcast(protocol.MsgPlayerReconnected, protocol.PlayerJoinedData{Player: r.playerInfo(p)}, audienceAll, "")
		logger.LogInfo("room %s: player %s (%s) reconnected", r.code, p.displayName, p.id)
		return
	}

	p := &playerRecord{
		id:           uuid.New().String(),
		displayName:  sanitizeName(payload.DisplayName, "Player"),
		avatarSymbol: sanitizeName(payload.AvatarSymbol, "?"),
		rejoinToken:  uuid.New().String(),
		connected:    true,
		joinedAt:     time.Now(),
	}
	r.players[p.id] = p
	r.tokens[p.rejoinToken] = p.id
	r.bindConn(c, rec, p.id, RolePlayer)
	r.dirty = true

	// The first player in a session becomes host automatically.
	if r.ensureHost() {
		r.queueHostAssigned()
	}
	room := r.buildRoomState()
	r.queueBroadcast(protocol.MsgJoinedAsPlayer, protocol.JoinedAsPlayerData{
		Player:      r.playerInfo(p),
		RejoinToken: p.rejoinToken,
		Room:        &room,
	}, audienceTarget, p.id)
	r.queueBroadcast(protocol.MsgPlayerJoined, protocol.PlayerJoinedData{Player: r.playerInfo(p)}, audienceAll, "")
	logger.LogInfo("room %s: player %s (%s) joined", r.code, p.displayName, p.id)
}

// rejoinPlayer resolves a token to a retained, currently disconnected player.
func (r *Room) rejoinPlayer(token string) *playerRecord {
	if token == "" {
		return nil
	}
	id, ok := r.tokens[token]
	if !ok {
		return nil
	}
	p, ok := r.players[id]
	if !ok || p.connected {
		return nil
	}
	return p
}

func (r *Room) handleJoinAsSpectator(c Conn, rec *connRecord, msg *protocol.Message) {
	if rec.identityID != "" {
		r.sendRoomError(c, apperrors.ErrInvalidMessage)
		return
	}
	payload, err := protocol.ParsePayload[protocol.JoinAsSpectatorData](msg)
	if err != nil {
		r.sendTo(c, protocol.NewErrorMessage(protocol.ErrCodeInvalidMessage))
		return
	}

	if sp := r.rejoinSpectator(payload.RejoinToken); sp != nil {
		r.bindConn(c, rec, sp.id, RoleSpectator)
		sp.connected = true
		sp.disconnectedAt = time.Time{}
		r.dirty = true

		r.queueBroadcast(protocol.MsgJoinedAsSpectator, protocol.JoinedAsSpectatorData{
			Spectator:   r.spectatorInfo(sp),
			RejoinToken: sp.rejoinToken,
			Reconnected: true,
		}, audienceTarget, sp.id)
		r.queueBroadcast(protocol.MsgRoomState, r.buildRoomState(), audienceTarget, sp.id)
		logger.LogInfo("room %s: spectator %s (%s) reconnected", r.code, sp.displayName, sp.id)
		return
	}

	sp := &spectatorRecord{
		id:          uuid.New().String(),
		displayName: sanitizeName(payload.DisplayName, "Guest"),
		rejoinToken: uuid.New().String(),
		connected:   true,
		joinedAt:    time.Now(),
	}
	r.spectators[sp.id] = sp
	r.tokens[sp.rejoinToken] = sp.id
	r.bindConn(c, rec, sp.id, RoleSpectator)
	r.dirty = true

	room := r.buildRoomState()
	r.queueBroadcast(protocol.MsgJoinedAsSpectator, protocol.JoinedAsSpectatorData{
		Spectator:   r.spectatorInfo(sp),
		RejoinToken: sp.rejoinToken,
		Room:        &room,
	}, audienceTarget, sp.id)
	r.queueBroadcast(protocol.MsgSpectatorJoined, protocol.SpectatorJoinedData{Spectator: r.spectatorInfo(sp)}, audienceAll, "")
	logger.LogInfo("room %s: spectator %s (%s) joined", r.code, sp.displayName, sp.id)
}

func (r *Room) rejoinSpectator(token string) *spectatorRecord {
	if token == "" {
		return nil
	}
	id, ok := r.tokens[token]
	if !ok {
		return nil
	}
	sp, ok := r.spectators[id]
	if !ok || sp.connected {
		return nil
	}
	return sp
}

func (r *Room) bindConn(c Conn, rec *connRecord, identityID, role string) {
	// An older socket for the same identity is superseded by the new one.
	if old, ok := r.byIdentity[identityID]; ok && old != c {
		delete(r.conns, old)
		old.Close()
	}
	rec.identityID = identityID
	rec.role = role
	r.byIdentity[identityID] = c
}

func (r *Room) handleRename(c Conn, rec *connRecord, msg *protocol.Message) {
	payload, err := protocol.ParsePayload[protocol.RenameData](msg)
	if err != nil {
		r.sendTo(c, protocol.NewErrorMessage(protocol.ErrCodeInvalidMessage))
		return
	}
	name := sanitizeName(payload.DisplayName, "")
	if name == "" {
		r.sendRoomError(c, apperrors.ErrInvalidMessage)
		return
	}

	switch rec.role {
	case RolePlayer:
		p := r.players[rec.identityID]
		if p.displayName == name {
			return // duplicate rename is a no-op, no second broadcast
		}
		p.displayName = name
	case RoleSpectator:
		sp := r.spectators[rec.identityID]
		if sp.displayName == name {
			return
		}
		sp.displayName = name
	}
	r.dirty = true
	r.queueBroadcast(protocol.MsgPlayerRenamed, protocol.PlayerRenamedData{
		PlayerID:    rec.identityID,
		DisplayName: name,
	}, audienceAll, "")
}

func (r *Room) handleChangeAvatar(c Conn, rec *connRecord, msg *protocol.Message) {
	if rec.role != RolePlayer {
		r.sendRoomError(c, apperrors.ErrPermissionDenied)
		return
	}
	payload, err := protocol.ParsePayload[protocol.ChangeAvatarData](msg)
	if err != nil {
		r.sendTo(c, protocol.NewErrorMessage(protocol.ErrCodeInvalidMessage))
		return
	}
	symbol := sanitizeName(payload.AvatarSymbol, "")
	if symbol == "" {
		r.sendRoomError(c, apperrors.ErrInvalidMessage)
		return
	}

	p := r.players[rec.identityID]
	if p.avatarSymbol == symbol {
		return
	}
	p.avatarSymbol = symbol
	r.dirty = true
	r.queueBroadcast(protocol.MsgAvatarChanged, protocol.AvatarChangedData{
		PlayerID:     rec.identityID,
		AvatarSymbol: symbol,
	}, audienceAll, "")
}

func (r *Room) handleChat(c Conn, rec *connRecord, msg *protocol.Message) {
	payload, err := protocol.ParsePayload[protocol.ChatData](msg)
	if err != nil {
		r.sendTo(c, protocol.NewErrorMessage(protocol.ErrCodeInvalidMessage))
		return
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		return
	}
	if runes := []rune(text); len(runes) > maxChatLen {
		text = string(runes[:maxChatLen])
	}

	entry := storage.ChatMessageData{
		SenderID:   rec.identityID,
		SenderName: r.displayName(rec),
		Text:       text,
		Timestamp:  time.Now().UnixMilli(),
	}
	r.chat = append(r.chat, entry)
	if limit := r.cfg.ChatHistorySize; len(r.chat) > limit {
		r.chat = r.chat[len(r.chat)-limit:]
	}
	r.dirty = true
	r.queueBroadcast(protocol.MsgChatBroadcast, protocol.ChatEntry{
		SenderID:   entry.SenderID,
		SenderName: entry.SenderName,
		Text:       entry.Text,
		Timestamp:  entry.Timestamp,
	}, audienceAll, "")
}

// handleLeave removes the identity for good, unlike a mere disconnect.
func (r *Room) handleLeave(c Conn, rec *connRecord) {
	identityID := rec.identityID
	name := r.displayName(rec)
	role := rec.role

	delete(r.conns, c)
	delete(r.byIdentity, identityID)
	switch role {
	case RolePlayer:
		if p := r.players[identityID]; p != nil {
			delete(r.tokens, p.rejoinToken)
			delete(r.players, identityID)
		}
	case RoleSpectator:
		if sp := r.spectators[identityID]; sp != nil {
			delete(r.tokens, sp.rejoinToken)
			delete(r.spectators, identityID)
		}
	}
	r.dirty = true

	if role == RolePlayer && r.ensureHost() {
		r.queueHostAssigned()
	}
	if role == RolePlayer {
		r.queueBroadcast(protocol.MsgPlayerLeft, protocol.PlayerLeftData{
			PlayerID:    identityID,
			DisplayName: name,
		}, audienceAll, "")
	} else {
		r.queueBroadcast(protocol.MsgSpectatorLeft, protocol.PlayerLeftData{
			PlayerID:    identityID,
			DisplayName: name,
		}, audienceAll, "")
	}
	c.Close()
	logger.LogInfo("room %s: %s %s (%s) left", r.code, role, name, identityID)
}

func (r *Room) displayName(rec *connRecord) string {
	switch rec.role {
	case RolePlayer:
		if p := r.players[rec.identityID]; p != nil {
			return p.displayName
		}
	case RoleSpectator:
		if sp := r.spectators[rec.identityID]; sp != nil {
			return sp.displayName
		}
	}
	return ""
}

// sanitizeName trims, strips control characters and caps length at 50 runes.
func sanitizeName(name, fallback string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(name))

	runes := []rune(cleaned)
	if len(runes) > maxNameLen {
		runes = runes[:maxNameLen]
	}
	cleaned = strings.TrimSpace(string(runes))
	if cleaned == "" {
		return fallback
	}
	return cleaned
}

func (r *Room) playerInfo(p *playerRecord) protocol.PlayerInfo {
	return protocol.PlayerInfo{
		ID:           p.id,
		DisplayName:  p.displayName,
		AvatarSymbol: p.avatarSymbol,
		Connected:    p.connected,
		IsHost:       p.id == r.hostID,
		JoinedAt:     p.joinedAt.UnixMilli(),
	}
}

func (r *Room) spectatorInfo(sp *spectatorRecord) protocol.SpectatorInfo {
	return protocol.SpectatorInfo{
		ID:          sp.id,
		DisplayName: sp.displayName,
		Connected:   sp.connected,
		JoinedAt:    sp.joinedAt.UnixMilli(),
	}
}

// buildRoomState assembles the full client-facing view, rosters ordered by
// join time for stable rendering.
func (r *Room) buildRoomState() protocol.RoomStateData {
	players := make([]protocol.PlayerInfo, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, r.playerInfo(p))
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].JoinedAt != players[j].JoinedAt {
			return players[i].JoinedAt < players[j].JoinedAt
		}
		return players[i].ID < players[j].ID
	})

	spectators := make([]protocol.SpectatorInfo, 0, len(r.spectators))
	for _, sp := range r.spectators {
		spectators = append(spectators, r.spectatorInfo(sp))
	}
	sort.Slice(spectators, func(i, j int) bool {
		if spectators[i].JoinedAt != spectators[j].JoinedAt {
			return spectators[i].JoinedAt < spectators[j].JoinedAt
		}
		return spectators[i].ID < spectators[j].ID
	})

	chat := make([]protocol.ChatEntry, len(r.chat))
	for i, entry := range r.chat {
		chat[i] = protocol.ChatEntry{
			SenderID:   entry.SenderID,
			SenderName: entry.SenderName,
			Text:       entry.Text,
			Timestamp:  entry.Timestamp,
		}
	}

	return protocol.RoomStateData{
		RoomCode:   r.code,
		GameType:   r.gameType,
		Status:     r.status,
		HostID:     r.hostID,
		Players:    players,
		Spectators: spectators,
		Chat:       chat,
		GameState:  r.gameState,
	}
}
