package room

// ensureHost re-establishes the invariant that the host is a connected
// player whenever any player is connected. Election is deterministic: the
// connected player with the earliest join time wins, ties broken by the
// lexicographically smallest id. Returns true when a new host was elected.
func (r *Room) ensureHost() bool {
	if current, ok := r.players[r.hostID]; ok && current.connected {
		return false
	}

	elected := ""
	for id, p := range r.players {
		if !p.connected {
			continue
		}
		if elected == "" {
			elected = id
			continue
		}
		best := r.players[elected]
		if p.joinedAt.Before(best.joinedAt) || (p.joinedAt.Equal(best.joinedAt) && id < elected) {
			elected = id
		}
	}

	if elected == r.hostID {
		return false
	}
	r.hostID = elected
	r.dirty = true
	return elected != ""
}
