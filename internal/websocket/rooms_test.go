package websocket

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/playroomhq/playroom/internal/room"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	sessionID string
	observer  bool

	mu     sync.Mutex
	events []string
}

func (c *fakeClient) SessionID() string { return c.sessionID }
func (c *fakeClient) Observer() bool    { return c.observer }

func (c *fakeClient) Emit(event string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *fakeClient) received(event string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e == event {
			return true
		}
	}
	return false
}

func newTestRooms(t *testing.T) *Rooms {
	t.Helper()
	n := 0
	m := NewRooms(func(channelID string, emitter room.Emitter) (*room.Room, error) {
		n++
		rm := room.New(room.Config{
			ID:      channelID,
			Emitter: emitter,
			NewSessionID: func() string {
				n++
				return fmt.Sprintf("gen-%d", n)
			},
			RandInt: func(int) int { return 0 },
		})
		if err := rm.Start(context.Background()); err != nil {
			return nil, err
		}
		return rm, nil
	})
	t.Cleanup(m.Close)
	return m
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition not reached before deadline")
}

func TestRooms_AttachCreatesRoomLazily(t *testing.T) {
	m := newTestRooms(t)
	require.Nil(t, m.Room("ch1"))

	c := &fakeClient{sessionID: "A"}
	require.NoError(t, m.Attach("ch1", c, "alice"))
	require.NotNil(t, m.Room("ch1"))

	waitUntil(t, func() bool { return c.received("player_list") })
}

func TestRooms_CapacityBound(t *testing.T) {
	m := newTestRooms(t)

	for i := 0; i < room.MaxClients; i++ {
		c := &fakeClient{sessionID: fmt.Sprintf("P%d", i)}
		require.NoError(t, m.Attach("ch1", c, ""))
	}

	full := &fakeClient{sessionID: "extra"}
	require.ErrorIs(t, m.Attach("ch1", full, ""), ErrRoomFull)

	// Observers do not count against capacity and are still admitted.
	obs := &fakeClient{sessionID: "editor", observer: true}
	require.NoError(t, m.Attach("ch1", obs, ""))

	// A different channel has its own capacity.
	other := &fakeClient{sessionID: "other"}
	require.NoError(t, m.Attach("ch2", other, ""))
}

func TestRooms_DetachFreesCapacityAndDisposesWhenEmpty(t *testing.T) {
	m := newTestRooms(t)

	a := &fakeClient{sessionID: "A"}
	b := &fakeClient{sessionID: "B"}
	require.NoError(t, m.Attach("ch1", a, ""))
	require.NoError(t, m.Attach("ch1", b, ""))

	m.Detach("ch1", "A", true)
	c := &fakeClient{sessionID: "C"}
	require.NoError(t, m.Attach("ch1", c, ""))

	rm := m.Room("ch1")
	require.NotNil(t, rm)

	m.Detach("ch1", "B", false)
	m.Detach("ch1", "C", false)

	require.Nil(t, m.Room("ch1"))
	require.Equal(t, room.PhaseDisposed, rm.Phase())

	// Detaching an unknown client from a gone channel is harmless.
	m.Detach("ch1", "ghost", false)
}

func TestRooms_BroadcastReachesAllChannelClients(t *testing.T) {
	m := newTestRooms(t)

	a := &fakeClient{sessionID: "A"}
	b := &fakeClient{sessionID: "B"}
	require.NoError(t, m.Attach("ch1", a, ""))
	require.NoError(t, m.Attach("ch1", b, ""))

	outsider := &fakeClient{sessionID: "X"}
	require.NoError(t, m.Attach("ch2", outsider, ""))

	m.Room("ch1").Chat("A", "hello")

	waitUntil(t, func() bool { return a.received("chat_message") && b.received("chat_message") })
	require.False(t, outsider.received("chat_message"))
}
