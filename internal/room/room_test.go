package room

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/playroomhq/playroom/internal/bots"
	"github.com/playroomhq/playroom/pkg/types"
	"github.com/stretchr/testify/require"
)

type emission struct {
	event   string
	payload any
}

type unicast struct {
	sessionID string
	event     string
	payload   any
}

type fakeEmitter struct {
	mu         sync.Mutex
	broadcasts []emission
	unicasts   []unicast
}

func (e *fakeEmitter) Broadcast(event string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.broadcasts = append(e.broadcasts, emission{event: event, payload: payload})
}

func (e *fakeEmitter) SendTo(sessionID, event string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unicasts = append(e.unicasts, unicast{sessionID: sessionID, event: event, payload: payload})
}

func (e *fakeEmitter) lastPlayerList() ([]string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.broadcasts) - 1; i >= 0; i-- {
		if e.broadcasts[i].event == types.EventPlayerList {
			return e.broadcasts[i].payload.([]string), true
		}
	}
	return nil, false
}

func (e *fakeEmitter) lastSnapshot() (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.broadcasts) - 1; i >= 0; i-- {
		if e.broadcasts[i].event == "state" {
			return e.broadcasts[i].payload.(Snapshot), true
		}
	}
	return Snapshot{}, false
}

func (e *fakeEmitter) unicastsTo(sessionID string) []unicast {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []unicast
	for _, u := range e.unicasts {
		if u.sessionID == sessionID {
			out = append(out, u)
		}
	}
	return out
}

type respondCall struct {
	systemPrompt string
	userMessage  string
}

type fakeResponder struct {
	mu      sync.Mutex
	calls   []respondCall
	reply   string
	release chan struct{} // when non-nil, Respond blocks until closed
}

func (r *fakeResponder) Respond(_ context.Context, systemPrompt, userMessage string) string {
	r.mu.Lock()
	r.calls = append(r.calls, respondCall{systemPrompt: systemPrompt, userMessage: userMessage})
	release := r.release
	r.mu.Unlock()
	if release != nil {
		<-release
	}
	return r.reply
}

func (r *fakeResponder) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type fakeSource struct {
	mu      sync.Mutex
	records []bots.Record
}

func (s *fakeSource) List(_ context.Context) ([]bots.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bots.Record(nil), s.records...), nil
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
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

// sequentialIDs returns a session id generator yielding S1, S2, ...
func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("S%d", n)
	}
}

func newTestRoom(t *testing.T, cfg Config) (*Room, *fakeEmitter) {
	t.Helper()
	emitter := &fakeEmitter{}
	cfg.ID = "test"
	cfg.Emitter = emitter
	if cfg.NewSessionID == nil {
		cfg.NewSessionID = sequentialIDs()
	}
	if cfg.RandInt == nil {
		cfg.RandInt = func(n int) int { return 0 }
	}
	r := New(cfg)
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(r.Dispose)
	return r, emitter
}

func TestJoinLeave_RosterTracksClients(t *testing.T) {
	r, emitter := newTestRoom(t, Config{})

	r.Join("A", "alice", false)
	waitFor(t, func() bool {
		list, ok := emitter.lastPlayerList()
		return ok && len(list) == 1
	})

	r.Join("B", "", false)
	waitFor(t, func() bool {
		list, ok := emitter.lastPlayerList()
		return ok && len(list) == 2
	})

	list, _ := emitter.lastPlayerList()
	require.Equal(t, []string{"A", "B"}, list)

	snap, ok := emitter.lastSnapshot()
	require.True(t, ok)
	require.Equal(t, "alice", snap.Players[0].Username)
	// Placeholder username for clients that joined without one.
	require.Equal(t, "#User B", snap.Players[1].Username)

	r.Leave("A", true)
	waitFor(t, func() bool {
		list, ok := emitter.lastPlayerList()
		return ok && len(list) == 1
	})
	list, _ = emitter.lastPlayerList()
	require.Equal(t, []string{"B"}, list)

	// Leaving again is a no-op: no further roster broadcast.
	emitter.mu.Lock()
	before := len(emitter.broadcasts)
	emitter.mu.Unlock()
	r.Leave("A", false)
	r.Chat("B", "ping") // fencepost: proves the queue drained past the leave
	waitFor(t, func() bool {
		emitter.mu.Lock()
		defer emitter.mu.Unlock()
		return len(emitter.broadcasts) > before
	})
	list, _ = emitter.lastPlayerList()
	require.Equal(t, []string{"B"}, list)
}

func TestJoin_ObserverGetsNoParticipant(t *testing.T) {
	r, emitter := newTestRoom(t, Config{})

	r.Join("editor", "ed", true)
	r.Join("A", "alice", false)
	waitFor(t, func() bool {
		list, ok := emitter.lastPlayerList()
		return ok && len(list) > 0
	})

	list, _ := emitter.lastPlayerList()
	require.Equal(t, []string{"A"}, list)
}

func TestMove_IsIdempotent(t *testing.T) {
	r, emitter := newTestRoom(t, Config{})

	r.Join("A", "alice", false)
	r.Move("A", 10, 20)
	waitFor(t, func() bool {
		snap, ok := emitter.lastSnapshot()
		return ok && len(snap.Players) == 1 && snap.Players[0].Position.X == 10
	})
	first, _ := emitter.lastSnapshot()

	r.Move("A", 10, 20)
	waitFor(t, func() bool {
		emitter.mu.Lock()
		defer emitter.mu.Unlock()
		count := 0
		for _, b := range emitter.broadcasts {
			if b.event == "state" {
				count++
			}
		}
		return count >= 3 // join, first move, second move
	})
	second, _ := emitter.lastSnapshot()
	require.Equal(t, first, second)
}

func TestMove_UnknownClientIsNoOp(t *testing.T) {
	r, emitter := newTestRoom(t, Config{})

	r.Join("A", "alice", false)
	r.Move("ghost", 5, 5)
	r.Chat("A", "ping")
	waitFor(t, func() bool {
		_, ok := emitter.lastSnapshot()
		return ok
	})

	snap, _ := emitter.lastSnapshot()
	require.Len(t, snap.Players, 1)
	require.Equal(t, Position{}, snap.Players[0].Position)
}

func TestChat_AppendsTranscriptAndBroadcasts(t *testing.T) {
	r, emitter := newTestRoom(t, Config{})

	r.Join("A", "alice", false)
	r.Chat("A", "hello")
	r.Chat("A", "world")

	waitFor(t, func() bool {
		snap, ok := emitter.lastSnapshot()
		return ok && len(snap.Messages) == 2
	})

	snap, _ := emitter.lastSnapshot()
	require.Equal(t, []string{"hello", "world"}, snap.Messages)

	emitter.mu.Lock()
	var chats []types.ChatBroadcast
	for _, b := range emitter.broadcasts {
		if b.event == types.EventChatMessage {
			chats = append(chats, b.payload.(types.ChatBroadcast))
		}
	}
	emitter.mu.Unlock()
	require.Equal(t, []types.ChatBroadcast{
		{User: "A", Text: "hello"},
		{User: "A", Text: "world"},
	}, chats)
}

func TestPrivateMessage_ToPlayerIsUnicast(t *testing.T) {
	r, emitter := newTestRoom(t, Config{})

	r.Join("A", "alice", false)
	r.Join("B", "bob", false)
	r.PrivateMessage("A", "B", "psst")

	waitFor(t, func() bool {
		return len(emitter.unicastsTo("B")) == 1
	})

	got := emitter.unicastsTo("B")[0]
	require.Equal(t, types.EventPrivateMessage, got.event)
	require.Equal(t, types.PrivateMessage{User: "A", Text: "psst"}, got.payload)
	require.Empty(t, emitter.unicastsTo("A"))
}

func TestPrivateMessage_UnknownRecipientIsDropped(t *testing.T) {
	responder := &fakeResponder{reply: "hi"}
	r, emitter := newTestRoom(t, Config{Responder: responder})

	r.Join("A", "alice", false)
	r.PrivateMessage("A", "nobody", "hello?")
	r.Chat("A", "still alive")

	waitFor(t, func() bool {
		snap, ok := emitter.lastSnapshot()
		return ok && len(snap.Messages) == 1
	})

	snap, _ := emitter.lastSnapshot()
	require.Equal(t, []string{"still alive"}, snap.Messages)
	require.Zero(t, responder.callCount())
	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	require.Empty(t, emitter.unicasts)
}

func TestPrivateMessage_ToBotInvokesResponder(t *testing.T) {
	responder := &fakeResponder{reply: "short answer"}
	source := &fakeSource{records: []bots.Record{{ID: 1, Name: "Bot", Prompt: "You are terse."}}}
	r, emitter := newTestRoom(t, Config{Responder: responder, Records: source})

	r.Join("A", "alice", false)
	r.PrivateMessage("A", "S1", "hi")

	waitFor(t, func() bool {
		return len(emitter.unicastsTo("A")) == 1
	})

	responder.mu.Lock()
	require.Equal(t, []respondCall{{systemPrompt: "You are terse.", userMessage: "hi"}}, responder.calls)
	responder.mu.Unlock()

	got := emitter.unicastsTo("A")[0]
	require.Equal(t, types.EventPrivateMessage, got.event)
	require.Equal(t, types.PrivateMessage{User: "S1", Text: "short answer"}, got.payload)
}

func TestPrivateMessage_BotUsesRoomDefaultPromptWhenRecordEmpty(t *testing.T) {
	responder := &fakeResponder{reply: "ok"}
	source := &fakeSource{records: []bots.Record{{ID: 1, Name: "Blank"}}}
	r, emitter := newTestRoom(t, Config{
		Responder:     responder,
		Records:       source,
		DefaultPrompt: "room default",
	})

	r.Join("A", "alice", false)
	r.PrivateMessage("A", "S1", "hey")
	waitFor(t, func() bool { return len(emitter.unicastsTo("A")) == 1 })

	responder.mu.Lock()
	require.Equal(t, "room default", responder.calls[0].systemPrompt)
	responder.mu.Unlock()

	// UpdatePrompt rewrites the fallback for later messages.
	r.UpdatePrompt("be mysterious")
	r.PrivateMessage("A", "S1", "again")
	waitFor(t, func() bool { return len(emitter.unicastsTo("A")) == 2 })

	responder.mu.Lock()
	require.Equal(t, "be mysterious", responder.calls[1].systemPrompt)
	responder.mu.Unlock()
}

func TestPrivateMessage_ReplyNotDeliveredAfterLeave(t *testing.T) {
	responder := &fakeResponder{reply: "too late", release: make(chan struct{})}
	source := &fakeSource{records: []bots.Record{{ID: 1, Name: "Bot", Prompt: "p"}}}
	r, emitter := newTestRoom(t, Config{Responder: responder, Records: source})

	r.Join("A", "alice", false)
	r.PrivateMessage("A", "S1", "hi")
	waitFor(t, func() bool { return responder.callCount() == 1 })

	// The delegate call is in flight; other traffic keeps flowing.
	r.Join("B", "bob", false)
	waitFor(t, func() bool {
		list, ok := emitter.lastPlayerList()
		return ok && len(list) == 3
	})

	r.Leave("A", false)
	waitFor(t, func() bool {
		list, _ := emitter.lastPlayerList()
		return len(list) == 2
	})

	close(responder.release)

	// The reply lands on the queue but fails the delivery check. Fencepost
	// with a chat to make sure the queue drained.
	r.Chat("B", "done")
	waitFor(t, func() bool {
		snap, ok := emitter.lastSnapshot()
		return ok && len(snap.Messages) == 1
	})
	require.Empty(t, emitter.unicastsTo("A"))
}

func TestScenario_BotRoundTrip(t *testing.T) {
	responder := &fakeResponder{reply: "yes."}
	source := &fakeSource{records: []bots.Record{{ID: 1, Name: "Bot", Prompt: "You are terse."}}}
	r, emitter := newTestRoom(t, Config{Responder: responder, Records: source})

	// Bot was materialized during Start under the first generated id.
	r.Join("A", "alice", false)
	waitFor(t, func() bool {
		list, ok := emitter.lastPlayerList()
		return ok && len(list) == 2
	})
	list, _ := emitter.lastPlayerList()
	require.ElementsMatch(t, []string{"S1", "A"}, list)

	snap, _ := emitter.lastSnapshot()
	require.Equal(t, "Bot", snap.Players[0].Username)
	require.True(t, snap.Players[0].Bot)

	r.PrivateMessage("A", "S1", "hi")
	waitFor(t, func() bool { return len(emitter.unicastsTo("A")) == 1 })
	require.Equal(t, types.PrivateMessage{User: "S1", Text: "yes."}, emitter.unicastsTo("A")[0].payload)

	r.Leave("A", true)
	waitFor(t, func() bool {
		list, _ := emitter.lastPlayerList()
		return len(list) == 1
	})
	list, _ = emitter.lastPlayerList()
	require.Equal(t, []string{"S1"}, list)
}

func TestDispose_StopsProcessing(t *testing.T) {
	emitter := &fakeEmitter{}
	r := New(Config{ID: "d", Emitter: emitter, NewSessionID: sequentialIDs(), RandInt: func(int) int { return 0 }})
	require.NoError(t, r.Start(context.Background()))

	r.Join("A", "alice", false)
	waitFor(t, func() bool {
		_, ok := emitter.lastPlayerList()
		return ok
	})

	r.Dispose()
	require.Equal(t, PhaseDisposed, r.Phase())

	// Operations after dispose are dropped.
	before := func() int {
		emitter.mu.Lock()
		defer emitter.mu.Unlock()
		return len(emitter.broadcasts)
	}()
	r.Join("B", "bob", false)
	r.Chat("A", "hello?")
	time.Sleep(50 * time.Millisecond)
	emitter.mu.Lock()
	after := len(emitter.broadcasts)
	emitter.mu.Unlock()
	require.Equal(t, before, after)

	// Dispose is idempotent.
	r.Dispose()
}
