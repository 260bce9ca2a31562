// Package game defines the rule-engine boundary consumed by the room
// coordinator, plus the built-in game implementations. The coordinator never
// inspects game state; it only persists and broadcasts the blobs returned
// from here.
package game

import (
	"encoding/json"
	"fmt"
)

// RosterEntry is the adapter's view of one player.
type RosterEntry struct {
	ID          string
	DisplayName string
	Connected   bool
}

// WinResult reports a finished game.
type WinResult struct {
	Winners []string `json:"winners"`
	Detail  string   `json:"detail,omitempty"`
}

// ActionError is a rule-level rejection of an action. It leaves state
// untouched and is reported only to the acting player.
type ActionError struct {
	Reason string
}

func (e *ActionError) Error() string {
	return e.Reason
}

// Adapter is a pluggable per-game rule engine. State blobs are opaque JSON
// owned by the adapter; implementations must be deterministic in the order
// actions are applied.
type Adapter interface {
	// CreateInitialState builds the state blob for a fresh game.
	CreateInitialState(roster []RosterEntry) (json.RawMessage, error)

	// ApplyAction applies one player action and returns the new state plus a
	// broadcastable delta. A *ActionError return means the action was
	// rejected and state is unchanged.
	ApplyAction(state json.RawMessage, actorID string, action json.RawMessage, roster []RosterEntry) (newState, delta json.RawMessage, err error)

	// CheckWinCondition inspects state only; nil means the game continues.
	CheckWinCondition(state json.RawMessage) (*WinResult, error)
}

type factory func() Adapter

var registry = map[string]factory{
	TypeCheckbox: func() Adapter { return &Checkbox{} },
	TypeVotes:    func() Adapter { return &Votes{} },
	TypeCounty:   func() Adapter { return &County{} },
}

// Game type identifiers accepted by New.
const (
	TypeCheckbox = "checkbox"
	TypeVotes    = "votes"
	TypeCounty   = "county"
)

// New returns the adapter for a game type.
func New(gameType string) (Adapter, error) {
	f, ok := registry[gameType]
	if !ok {
		return nil, fmt.Errorf("unknown game type %q", gameType)
	}
	return f(), nil
}

// Known reports whether a game type is registered.
func Known(gameType string) bool {
	_, ok := registry[gameType]
	return ok
}
