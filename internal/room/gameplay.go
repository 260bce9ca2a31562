package room

import (
	"errors"

	"github.com/emily-flambe/games-sub001/internal/apperrors"
	"github.com/emily-flambe/games-sub001/internal/game"
	"github.com/emily-flambe/games-sub001/internal/logger"
	"github.com/emily-flambe/games-sub001/internal/protocol"
)

// handleStartGame is host-only. It asks the adapter for the initial state
// and moves the session into playing.
func (r *Room) handleStartGame(c Conn, rec *connRecord) {
	if rec.role != RolePlayer || rec.identityID != r.hostID {
		r.sendRoomError(c, apperrors.ErrNotHost)
		return
	}
	switch r.status {
	case StatusPlaying:
		r.sendRoomError(c, apperrors.ErrGameInProgress)
		return
	case StatusFinished:
		r.sendRoomError(c, apperrors.ErrGameOver)
		return
	}

	adapter, err := game.New(r.gameType)
	if err != nil {
		logger.LogError("room %s: %v", r.code, err)
		r.sendTo(c, protocol.NewErrorMessage(protocol.ErrCodeUnknown))
		return
	}
	state, err := adapter.CreateInitialState(r.roster())
	if err != nil {
		logger.LogError("room %s: create initial state: %v", r.code, err)
		r.sendTo(c, protocol.NewErrorMessage(protocol.ErrCodeUnknown))
		return
	}

	r.adapter = adapter
	r.gameState = state
	r.status = StatusPlaying
	r.dirty = true

	r.queueBroadcast(protocol.MsgGameStarted, protocol.GameStartedData{
		GameType:  r.gameType,
		GameState: state,
	}, audienceAll, "")
	logger.LogInfo("room %s: game %s started by host %s", r.code, r.gameType, rec.identityID)
}

// handleGameAction forwards a player action to the adapter. Spectators are
// rejected here, before the adapter is ever reached.
func (r *Room) handleGameAction(c Conn, rec *connRecord, msg *protocol.Message) {
	if rec.role != RolePlayer {
		r.sendRoomError(c, apperrors.ErrSpectatorAction)
		return
	}
	switch r.status {
	case StatusWaiting:
		r.sendRoomError(c, apperrors.ErrGameNotStarted)
		return
	case StatusFinished:
		r.sendRoomError(c, apperrors.ErrGameOver)
		return
	}
	if r.adapter == nil {
		adapter, err := game.New(r.gameType)
		if err != nil {
			r.sendTo(c, protocol.NewErrorMessage(protocol.ErrCodeUnknown))
			return
		}
		r.adapter = adapter
	}

	newState, delta, err := r.adapter.ApplyAction(r.gameState, rec.identityID, msg.Data, r.roster())
	if err != nil {
		var actionErr *game.ActionError
		if errors.As(err, &actionErr) {
			// Rule-level rejection: no mutation, targeted reply only.
			r.sendTo(c, protocol.NewErrorMessageWithText(protocol.ErrCodeGameAdapter, actionErr.Reason))
			return
		}
		logger.LogError("room %s: adapter error: %v", r.code, err)
		r.sendTo(c, protocol.NewErrorMessage(protocol.ErrCodeUnknown))
		return
	}

	r.gameState = newState
	r.dirty = true

	r.queueBroadcast(protocol.MsgGameActionResult, protocol.GameActionResultData{
		Accepted: true,
		Delta:    delta,
	}, audienceTarget, rec.identityID)
	r.queueBroadcast(protocol.MsgGameStateUpdate, protocol.GameStateUpdateData{
		GameState: newState,
		Delta:     delta,
	}, audienceAll, "")

	win, err := r.adapter.CheckWinCondition(newState)
	if err != nil {
		logger.LogError("room %s: win check: %v", r.code, err)
		return
	}
	if win != nil {
		r.status = StatusFinished
		r.queueBroadcast(protocol.MsgGameEnded, protocol.GameEndedData{
			Winners:   win.Winners,
			Detail:    win.Detail,
			GameState: newState,
		}, audienceAll, "")
		logger.LogInfo("room %s: game ended, winners=%v", r.code, win.Winners)
	}
}

// roster builds the adapter's player view, ordered by join time so adapters
// see a deterministic sequence.
func (r *Room) roster() []game.RosterEntry {
	entries := make([]game.RosterEntry, 0, len(r.players))
	for _, info := range r.buildRoomState().Players {
		entries = append(entries, game.RosterEntry{
			ID:          info.ID,
			DisplayName: info.DisplayName,
			Connected:   info.Connected,
		})
	}
	return entries
}
