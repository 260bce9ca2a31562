package game

import (
	"encoding/json"
	"sort"
	"strings"
)

// County is the free-text collection round: every player names a county, and
// once all connected players have submitted the answers are revealed.
type County struct{}

const countyMaxLen = 100

type countyState struct {
	Phase   string            `json:"phase"` // collecting | revealed
	Entries map[string]string `json:"entries"`
}

type countyAction struct {
	County string `json:"county"`
}

type countyDelta struct {
	ActorID   string            `json:"actor_id"`
	Submitted int               `json:"submitted"`
	Phase     string            `json:"phase"`
	Entries   map[string]string `json:"entries,omitempty"` // only on reveal
}

func (g *County) CreateInitialState(_ []RosterEntry) (json.RawMessage, error) {
	return json.Marshal(countyState{Phase: "collecting", Entries: make(map[string]string)})
}

func (g *County) ApplyAction(state json.RawMessage, actorID string, action json.RawMessage, roster []RosterEntry) (json.RawMessage, json.RawMessage, error) {
	var st countyState
	if err := json.Unmarshal(state, &st); err != nil {
		return nil, nil, err
	}
	if st.Phase != "collecting" {
		return nil, nil, &ActionError{Reason: "answers already revealed"}
	}
	var act countyAction
	if err := json.Unmarshal(action, &act); err != nil {
		return nil, nil, &ActionError{Reason: "malformed county submission"}
	}
	name := strings.TrimSpace(act.County)
	if name == "" {
		return nil, nil, &ActionError{Reason: "county name is empty"}
	}
	if runes := []rune(name); len(runes) > countyMaxLen {
		name = string(runes[:countyMaxLen])
	}

	if st.Entries == nil {
		st.Entries = make(map[string]string)
	}
	st.Entries[actorID] = name

	allSubmitted := true
	for _, p := range roster {
		if p.Connected {
			if _, ok := st.Entries[p.ID]; !ok {
				allSubmitted = false
				break
			}
		}
	}
	delta := countyDelta{ActorID: actorID, Submitted: len(st.Entries), Phase: st.Phase}
	if allSubmitted {
		st.Phase = "revealed"
		delta.Phase = st.Phase
		delta.Entries = st.Entries
	}

	newState, err := json.Marshal(st)
	if err != nil {
		return nil, nil, err
	}
	deltaJSON, err := json.Marshal(delta)
	if err != nil {
		return nil, nil, err
	}
	return newState, deltaJSON, nil
}

func (g *County) CheckWinCondition(state json.RawMessage) (*WinResult, error) {
	var st countyState
	if err := json.Unmarshal(state, &st); err != nil {
		return nil, err
	}
	if st.Phase != "revealed" {
		return nil, nil
	}

	winners := make([]string, 0, len(st.Entries))
	for id := range st.Entries {
		winners = append(winners, id)
	}
	sort.Strings(winners)
	return &WinResult{Winners: winners, Detail: "all counties collected"}, nil
}
