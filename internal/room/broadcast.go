package room

import (
	"time"

	"github.com/emily-flambe/games-sub001/internal/logger"
	"github.com/emily-flambe/games-sub001/internal/protocol"
)

// audience selects which connections receive a broadcast.
type audience int

const (
	audienceAll audience = iota
	audiencePlayers
	audienceTarget
)

// outbound is one fan-out unit: a payload serialized exactly once, delivered
// to every matching socket in queue order.
type outbound struct {
	data     []byte
	audience audience
	targetID string
}

// queueBroadcast serializes an event once and appends it to the pending
// queue. Delivery happens after the current command's snapshot is persisted.
func (r *Room) queueBroadcast(msgType protocol.MessageType, payload any, aud audience, targetID string) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		logger.LogError("room %s: encode %s payload: %v", r.code, msgType, err)
		return
	}
	msg.Timestamp = time.Now().UnixMilli()
	data, err := msg.Encode()
	if err != nil {
		logger.LogError("room %s: encode %s: %v", r.code, msgType, err)
		return
	}
	r.pending = append(r.pending, outbound{data: data, audience: aud, targetID: targetID})
}

// queueHostAssigned emits the dedicated election event ahead of everything
// else queued by the same triggering message.
func (r *Room) queueHostAssigned() {
	if r.hostID == "" {
		return
	}
	host := r.players[r.hostID]
	msg := protocol.MustNewMessage(protocol.MsgHostAssigned, protocol.HostAssignedData{
		PlayerID:    host.id,
		DisplayName: host.displayName,
	})
	msg.Timestamp = time.Now().UnixMilli()
	data, err := msg.Encode()
	if err != nil {
		logger.LogError("room %s: encode host_assigned: %v", r.code, err)
		return
	}
	r.pending = append([]outbound{{data: data, audience: audienceAll}}, r.pending...)
	logger.LogInfo("room %s: host assigned to %s (%s)", r.code, host.displayName, host.id)
}

// deliver fans out a batch. A failed write marks that socket dead instead of
// aborting the batch; the caller releases dead sockets afterwards.
func (r *Room) deliver(batch []outbound) []Conn {
	var dead []Conn
	failed := make(map[Conn]bool)
	for _, out := range batch {
		for c, rec := range r.conns {
			if failed[c] || !r.matches(out, rec) {
				continue
			}
			if !c.Send(out.data) {
				failed[c] = true
				dead = append(dead, c)
			}
		}
	}
	return dead
}

func (r *Room) matches(out outbound, rec *connRecord) bool {
	switch out.audience {
	case audiencePlayers:
		return rec.role == RolePlayer
	case audienceTarget:
		return rec.identityID != "" && rec.identityID == out.targetID
	default:
		return true
	}
}
