package game

import "encoding/json"

// Checkbox is the cooperative 3x3 toggle grid. Any player may toggle any
// cell; the room wins together once all nine cells are checked.
type Checkbox struct{}

type checkboxState struct {
	Cells     [9]bool           `json:"cells"`
	CheckedBy map[string]string `json:"checked_by"` // cell index -> player id
}

type checkboxAction struct {
	Cell int `json:"cell"`
}

type checkboxDelta struct {
	Cell    int    `json:"cell"`
	Checked bool   `json:"checked"`
	ActorID string `json:"actor_id"`
}

func (g *Checkbox) CreateInitialState(_ []RosterEntry) (json.RawMessage, error) {
	return json.Marshal(checkboxState{CheckedBy: make(map[string]string)})
}

func (g *Checkbox) ApplyAction(state json.RawMessage, actorID string, action json.RawMessage, _ []RosterEntry) (json.RawMessage, json.RawMessage, error) {
	var st checkboxState
	if err := json.Unmarshal(state, &st); err != nil {
		return nil, nil, err
	}
	var act checkboxAction
	if err := json.Unmarshal(action, &act); err != nil {
		return nil, nil, &ActionError{Reason: "malformed checkbox action"}
	}
	if act.Cell < 0 || act.Cell > 8 {
		return nil, nil, &ActionError{Reason: "cell out of range"}
	}

	st.Cells[act.Cell] = !st.Cells[act.Cell]
	key := cellKey(act.Cell)
	if st.Cells[act.Cell] {
		if st.CheckedBy == nil {
			st.CheckedBy = make(map[string]string)
		}
		st.CheckedBy[key] = actorID
	} else {
		delete(st.CheckedBy, key)
	}

	newState, err := json.Marshal(st)
	if err != nil {
		return nil, nil, err
	}
	delta, err := json.Marshal(checkboxDelta{Cell: act.Cell, Checked: st.Cells[act.Cell], ActorID: actorID})
	if err != nil {
		return nil, nil, err
	}
	return newState, delta, nil
}

func (g *Checkbox) CheckWinCondition(state json.RawMessage) (*WinResult, error) {
	var st checkboxState
	if err := json.Unmarshal(state, &st); err != nil {
		return nil, err
	}
	for _, checked := range st.Cells {
		if !checked {
			return nil, nil
		}
	}

	// Everyone who checked a cell shares the win.
	seen := make(map[string]bool)
	winners := make([]string, 0, len(st.CheckedBy))
	for _, id := range st.CheckedBy {
		if !seen[id] {
			seen[id] = true
			winners = append(winners, id)
		}
	}
	return &WinResult{Winners: winners, Detail: "all cells checked"}, nil
}

func cellKey(cell int) string {
	return string(rune('0' + cell))
}
