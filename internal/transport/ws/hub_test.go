package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenflow/internal/logger"
)

func receive(t *testing.T, conn *Connection) (Message, bool) {
	t.Helper()
	select {
	case data, ok := <-conn.Send:
		if !ok {
			return Message{}, false
		}
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg, true
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}, false
}

func TestHub_BroadcastReachesOnlyThatResponseSet(t *testing.T) {
	hub := NewHub(logger.Nop())
	a := &Connection{ResponseSetID: "rs-a", Send: make(chan []byte, 4), Hub: hub}
	b := &Connection{ResponseSetID: "rs-b", Send: make(chan []byte, 4), Hub: hub}
	hub.Register(a)
	hub.Register(b)

	hub.BroadcastToResponseSet("rs-a", string(MsgScreenChanged), map[string]string{"etag": `W/"1"`})

	msg, ok := receive(t, a)
	require.True(t, ok)
	assert.Equal(t, MsgScreenChanged, msg.Type)
	assert.JSONEq(t, `{"etag":"W/\"1\""}`, string(msg.Payload))

	select {
	case <-b.Send:
		t.Fatal("rs-b should not receive rs-a events")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_DisconnectClosesSubscriptions(t *testing.T) {
	hub := NewHub(logger.Nop())
	conn := &Connection{ResponseSetID: "rs", Send: make(chan []byte, 4), Hub: hub}
	hub.Register(conn)
	assert.Eventually(t, func() bool { return hub.Subscribers("rs") == 1 }, time.Second, 5*time.Millisecond)

	hub.DisconnectResponseSet("rs")

	msg, ok := receive(t, conn)
	require.True(t, ok)
	assert.Equal(t, MsgClosed, msg.Type)
	_, ok = receive(t, conn)
	assert.False(t, ok)
	assert.Eventually(t, func() bool { return hub.Subscribers("rs") == 0 }, time.Second, 5*time.Millisecond)

	// a late unregister from the read pump is harmless
	hub.Unregister(conn)
}
