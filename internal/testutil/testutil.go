// Package testutil provides in-memory fakes shared across package tests.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/emily-flambe/games-sub001/internal/protocol"
	"github.com/emily-flambe/games-sub001/internal/storage"
)

// FakeConn records every frame a room writes to it. It satisfies the room
// coordinator's Conn interface.
type FakeConn struct {
	mu       sync.Mutex
	frames   [][]byte
	closed   bool
	FailSend bool // when set, Send reports the socket as dead
}

// NewFakeConn creates an open fake connection.
func NewFakeConn() *FakeConn {
	return &FakeConn{}
}

// Send records one frame.
func (c *FakeConn) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.FailSend {
		return false
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	return true
}

// Close marks the connection closed.
func (c *FakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Closed reports whether Close was called.
func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Messages decodes all recorded frames.
func (c *FakeConn) Messages() []*protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]*protocol.Message, 0, len(c.frames))
	for _, frame := range c.frames {
		msg, err := protocol.Decode(frame)
		if err != nil {
			panic(fmt.Sprintf("testutil: recorded frame does not decode: %v", err))
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// MessagesOfType filters recorded messages by type.
func (c *FakeConn) MessagesOfType(t protocol.MessageType) []*protocol.Message {
	var out []*protocol.Message
	for _, msg := range c.Messages() {
		if msg.Type == t {
			out = append(out, msg)
		}
	}
	return out
}

// LastOfType returns the most recent message of the given type, or nil.
func (c *FakeConn) LastOfType(t protocol.MessageType) *protocol.Message {
	msgs := c.MessagesOfType(t)
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

// MemStore is an in-memory SnapshotStore with optional failure injection.
type MemStore struct {
	mu        sync.Mutex
	snaps     map[string][]byte
	saves     int
	FailSaves int // number of upcoming saves to fail
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{snaps: make(map[string][]byte)}
}

// SaveSnapshot stores a deep copy of the snapshot.
func (s *MemStore) SaveSnapshot(_ context.Context, roomCode string, snap *storage.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSaves > 0 {
		s.FailSaves--
		return fmt.Errorf("injected save failure")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	s.snaps[roomCode] = data
	s.saves++
	return nil
}

// LoadSnapshot returns the stored snapshot, or (nil, nil) when absent.
func (s *MemStore) LoadSnapshot(_ context.Context, roomCode string) (*storage.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.snaps[roomCode]
	if !ok {
		return nil, nil
	}
	var snap storage.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// DeleteSnapshot removes the stored snapshot.
func (s *MemStore) DeleteSnapshot(_ context.Context, roomCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, roomCode)
	return nil
}

// Saves returns the number of successful saves.
func (s *MemStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
