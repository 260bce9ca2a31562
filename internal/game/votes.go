package game

import (
	"encoding/json"
	"sort"
)

// Votes is a two-option vote. Each player votes once (revotes overwrite until
// the vote closes); the vote closes when every connected player has voted.
type Votes struct{}

type votesState struct {
	Question string         `json:"question"`
	Options  [2]string      `json:"options"`
	Ballots  map[string]int `json:"ballots"` // player id -> option index
	Closed   bool           `json:"closed"`
	Winner   int            `json:"winner"` // -1 until closed, -2 on tie
}

type votesAction struct {
	Option int `json:"option"`
}

type votesDelta struct {
	ActorID string `json:"actor_id"`
	Votes   [2]int `json:"votes"`
	Closed  bool   `json:"closed"`
}

func (g *Votes) CreateInitialState(_ []RosterEntry) (json.RawMessage, error) {
	return json.Marshal(votesState{
		Question: "Which one?",
		Options:  [2]string{"Option A", "Option B"},
		Ballots:  make(map[string]int),
		Winner:   -1,
	})
}

func (g *Votes) ApplyAction(state json.RawMessage, actorID string, action json.RawMessage, roster []RosterEntry) (json.RawMessage, json.RawMessage, error) {
	var st votesState
	if err := json.Unmarshal(state, &st); err != nil {
		return nil, nil, err
	}
	if st.Closed {
		return nil, nil, &ActionError{Reason: "voting is closed"}
	}
	var act votesAction
	if err := json.Unmarshal(action, &act); err != nil {
		return nil, nil, &ActionError{Reason: "malformed vote"}
	}
	if act.Option != 0 && act.Option != 1 {
		return nil, nil, &ActionError{Reason: "option out of range"}
	}

	if st.Ballots == nil {
		st.Ballots = make(map[string]int)
	}
	st.Ballots[actorID] = act.Option

	// Close once every connected player has a ballot.
	allVoted := true
	for _, p := range roster {
		if p.Connected && !hasBallot(st.Ballots, p.ID) {
			allVoted = false
			break
		}
	}
	if allVoted {
		st.Closed = true
		st.Winner = tally(st.Ballots)
	}

	newState, err := json.Marshal(st)
	if err != nil {
		return nil, nil, err
	}
	counts := voteCounts(st.Ballots)
	delta, err := json.Marshal(votesDelta{ActorID: actorID, Votes: counts, Closed: st.Closed})
	if err != nil {
		return nil, nil, err
	}
	return newState, delta, nil
}

func (g *Votes) CheckWinCondition(state json.RawMessage) (*WinResult, error) {
	var st votesState
	if err := json.Unmarshal(state, &st); err != nil {
		return nil, err
	}
	if !st.Closed {
		return nil, nil
	}
	if st.Winner < 0 {
		return &WinResult{Detail: "tie"}, nil
	}

	winners := make([]string, 0, len(st.Ballots))
	for id, option := range st.Ballots {
		if option == st.Winner {
			winners = append(winners, id)
		}
	}
	sort.Strings(winners)
	return &WinResult{Winners: winners, Detail: st.Options[st.Winner] + " wins"}, nil
}

func hasBallot(ballots map[string]int, id string) bool {
	_, ok := ballots[id]
	return ok
}

func voteCounts(ballots map[string]int) [2]int {
	var counts [2]int
	for _, option := range ballots {
		if option == 0 || option == 1 {
			counts[option]++
		}
	}
	return counts
}

func tally(ballots map[string]int) int {
	counts := voteCounts(ballots)
	switch {
	case counts[0] > counts[1]:
		return 0
	case counts[1] > counts[0]:
		return 1
	default:
		return -2
	}
}
