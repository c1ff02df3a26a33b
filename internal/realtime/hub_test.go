package realtime

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient() *Client {
	return &Client{
		ID:    uuid.New().String(),
		rooms: make(map[string]struct{}),
		send:  make(chan WSMessage, 16),
	}
}

func drain(c *Client) []WSMessage {
	var out []WSMessage
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestHubRoomBroadcast(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	a, b, c := newTestClient(), newTestClient(), newTestClient()

	hub.Join(a, "room1")
	hub.Join(b, "room1")
	hub.Join(c, "room2")

	hub.Broadcast("room1", "question:live", map[string]string{"question_id": "q1"})

	require.Len(t, drain(a), 1)
	require.Len(t, drain(b), 1)
	assert.Empty(t, drain(c), "other rooms must not receive the event")
}

func TestHubHostSubRoom(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	confID := uuid.New().String()
	host, audience := newTestClient(), newTestClient()

	hub.Join(host, confID)
	hub.Join(host, confID+":host")
	hub.Join(audience, confID)

	hub.Broadcast(confID+":host", "poll:live-stats", map[string]int{"total_votes": 3})

	require.Len(t, drain(host), 1)
	assert.Empty(t, drain(audience), "host-only events must not reach the audience")
}

func TestHubLeaveAll(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	c := newTestClient()

	hub.Join(c, "room1")
	hub.Join(c, "room2")
	assert.Equal(t, 1, hub.RoomSize("room1"))

	hub.LeaveAll(c)
	assert.Equal(t, 0, hub.RoomSize("room1"))
	assert.Equal(t, 0, hub.RoomSize("room2"))
	assert.Empty(t, c.rooms)

	hub.Broadcast("room1", "x", nil)
	assert.Empty(t, drain(c))
}

func TestHubBroadcastEnvelope(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	c := newTestClient()
	hub.Join(c, "room")

	hub.Broadcast("room", "question:closed", map[string]string{"reason": "timeout"})

	msgs := drain(c)
	require.Len(t, msgs, 1)
	assert.Equal(t, "question:closed", msgs[0].Event)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(msgs[0].Data, &payload))
	assert.Equal(t, "timeout", payload["reason"])
}

func TestHubFullBufferDoesNotBlock(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	c := newTestClient()
	hub.Join(c, "room")

	for i := 0; i < cap(c.send)+5; i++ {
		hub.Broadcast("room", "tick", i)
	}
	// The slow client loses messages instead of stalling the hub.
	assert.Len(t, drain(c), cap(c.send))
}
