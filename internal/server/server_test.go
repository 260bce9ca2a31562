package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emily-flambe/games-sub001/internal/config"
	"github.com/emily-flambe/games-sub001/internal/game"
	"github.com/emily-flambe/games-sub001/internal/protocol"
	"github.com/emily-flambe/games-sub001/internal/room"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Limits.UpgradesPerSecond = 1000

	registry := room.NewRegistry(nil, cfg.Room, cfg.Limits.MaxConnectionsPerRoom)
	t.Cleanup(registry.Close)

	ts := httptest.NewServer(New(cfg, registry).Routes())
	t.Cleanup(ts.Close)
	return ts
}

func createRoom(t *testing.T, ts *httptest.Server, gameType string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"game_type": gameType})
	resp, err := http.Post(ts.URL+"/rooms", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		RoomCode string `json:"room_code"`
		GameType string `json:"game_type"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.Len(t, created.RoomCode, 6)
	require.Equal(t, gameType, created.GameType)
	return created.RoomCode
}

func TestHealth(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateRoomValidation(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/rooms", "application/json", strings.NewReader(`{"game_type":"poker"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/rooms", "application/json", strings.NewReader(`not json`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetRoomState(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	code := createRoom(t, ts, game.TypeVotes)

	resp, err := http.Get(ts.URL + "/rooms/" + code)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state protocol.RoomStateData
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	assert.Equal(t, code, state.RoomCode)
	assert.Equal(t, game.TypeVotes, state.GameType)
	assert.Equal(t, "waiting", state.Status)
	assert.Empty(t, state.Players)

	resp, err = http.Get(ts.URL + "/rooms/NOSUCH")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListRooms(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	createRoom(t, ts, game.TypeCheckbox)
	createRoom(t, ts, game.TypeCounty)

	resp, err := http.Get(ts.URL + "/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summaries []room.RoomSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summaries))
	assert.Len(t, summaries, 2)
}

func TestWebSocketUnknownRoom(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?room=NOSUCH"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketJoinFlow(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	code := createRoom(t, ts, game.TypeCheckbox)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?room=" + code
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	join := protocol.MustNewMessage(protocol.MsgJoinAsPlayer, protocol.JoinAsPlayerData{DisplayName: "Alice"})
	data, err := join.Encode()
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))

	joined := readUntil(t, ws, protocol.MsgJoinedAsPlayer)
	payload, err := protocol.ParsePayload[protocol.JoinedAsPlayerData](joined)
	require.NoError(t, err)
	assert.Equal(t, "Alice", payload.Player.DisplayName)
	assert.True(t, payload.Player.IsHost)
	assert.NotEmpty(t, payload.RejoinToken)
	require.NotNil(t, payload.Room)
	assert.Equal(t, code, payload.Room.RoomCode)
}

func TestWebSocketPing(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	code := createRoom(t, ts, game.TypeCheckbox)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?room=" + code
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	ping := protocol.MustNewMessage(protocol.MsgPing, protocol.PingData{Timestamp: 12345})
	data, err := ping.Encode()
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))

	pong := readUntil(t, ws, protocol.MsgPong)
	payload, err := protocol.ParsePayload[protocol.PongData](pong)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), payload.ClientTimestamp)
	assert.NotZero(t, payload.ServerTimestamp)
}

// readUntil reads frames until one of the wanted type arrives. Frames of
// other types (host_assigned, broadcasts) are skipped.
func readUntil(t *testing.T, ws *websocket.Conn, want protocol.MessageType) *protocol.Message {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	require.NoError(t, ws.SetReadDeadline(deadline))
	for {
		_, data, err := ws.ReadMessage()
		require.NoError(t, err, "waiting for %s", want)
		msg, err := protocol.Decode(data)
		require.NoError(t, err)
		if msg.Type == want {
			return msg
		}
	}
}
