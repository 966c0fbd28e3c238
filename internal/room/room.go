// Package room implements the authoritative session room: a single
// serialized owner of shared state that routes client traffic, keeps the bot
// roster reconciled with the config store, and delegates bot replies to the
// chat-completion responder.
package room

import (
	"context"
	"fmt"
	"sync"

	"github.com/playroomhq/playroom/internal/bots"
	"github.com/playroomhq/playroom/internal/crypto"
	"github.com/playroomhq/playroom/internal/logger"
	"github.com/playroomhq/playroom/pkg/types"
)

// MaxClients bounds the number of concurrent non-observer clients per room.
// The transport rejects joins beyond this before they reach the room.
const MaxClients = 4

// Emitter delivers events to the room's connected clients. Implementations
// must be safe for concurrent use; the room calls them from its loop.
type Emitter interface {
	Broadcast(event string, payload any)
	SendTo(sessionID string, event string, payload any)
}

// Responder produces a bot reply for a prompt and message. It never returns
// an error; upstream failures degrade to canned fallback strings.
type Responder interface {
	Respond(ctx context.Context, systemPrompt, userMessage string) string
}

// RecordSource is the full-load side of the bot config store.
type RecordSource interface {
	List(ctx context.Context) ([]bots.Record, error)
}

// Phase is the room lifecycle state.
type Phase int

const (
	PhaseCreated Phase = iota
	PhaseActive
	PhaseDisposed
)

// Config wires a room's collaborators. NewSessionID and RandInt exist for
// deterministic tests; both default to crypto-backed randomness.
type Config struct {
	ID            string
	DefaultPrompt string
	Emitter       Emitter
	Responder     Responder
	Records       RecordSource
	Feed          *bots.Feed

	NewSessionID func() string
	RandInt      func(n int) int
}

// Room is one isolated session instance. All state mutation funnels through
// its event loop; public methods only enqueue.
type Room struct {
	id            string
	emitter       Emitter
	responder     Responder
	records       RecordSource
	feed          *bots.Feed
	defaultPrompt string

	newSessionID func() string
	randInt      func(n int) int

	// state is touched only by the loop goroutine (and by Start before the
	// loop exists).
	state *State

	mu     sync.Mutex
	phase  Phase
	events chan any
	sub    *bots.Subscription
}

// New creates a room in the Created phase. Call Start before routing client
// traffic to it.
func New(cfg Config) *Room {
	r := &Room{
		id:            cfg.ID,
		emitter:       cfg.Emitter,
		responder:     cfg.Responder,
		records:       cfg.Records,
		feed:          cfg.Feed,
		defaultPrompt: cfg.DefaultPrompt,
		newSessionID:  cfg.NewSessionID,
		randInt:       cfg.RandInt,
		state:         newState(),
		phase:         PhaseCreated,
		events:        make(chan any, 256),
	}
	if r.newSessionID == nil {
		r.newSessionID = crypto.NewSessionID
	}
	if r.randInt == nil {
		r.randInt = crypto.RandIntn
	}
	return r
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// Phase returns the current lifecycle phase.
func (r *Room) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Start runs synchronous setup: the initial roster load and the change-feed
// subscription. Once it returns, the room is Active and processing events.
func (r *Room) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.phase != PhaseCreated {
		r.mu.Unlock()
		return fmt.Errorf("room %s: start from phase %d", r.id, r.phase)
	}
	r.mu.Unlock()

	if r.records != nil {
		records, err := r.records.List(ctx)
		if err != nil {
			return fmt.Errorf("room %s: initial bot load: %w", r.id, err)
		}
		for _, rec := range records {
			r.materializeRecord(rec)
		}
	}

	logger.Infof("[room %s] created with %d bots", r.id, len(r.state.bots))

	r.mu.Lock()
	if r.feed != nil {
		r.sub = r.feed.Subscribe()
	}
	r.phase = PhaseActive
	r.mu.Unlock()

	go r.loop()
	if r.sub != nil {
		go r.forwardFeed(r.sub)
	}
	return nil
}

// forwardFeed turns change-feed notifications into ordinary room events so
// they serialize with client traffic. Exits when the subscription closes.
func (r *Room) forwardFeed(sub *bots.Subscription) {
	for evt := range sub.C {
		switch evt.Kind {
		case bots.EventInsert:
			r.enqueue(botInsertEvent{record: evt.Record})
		case bots.EventUpdate:
			r.enqueue(botUpdateEvent{record: evt.Record})
		case bots.EventDelete:
			r.enqueue(botDeleteEvent{record: evt.Record})
		}
	}
}

func (r *Room) enqueue(evt any) {
	r.mu.Lock()
	if r.phase != PhaseActive {
		r.mu.Unlock()
		logger.Tracef("[room %s] dropping %T (phase %d)", r.id, evt, r.phase)
		return
	}
	r.mu.Unlock()

	select {
	case r.events <- evt:
	default:
		// Avoid blocking transport callbacks indefinitely; drop under overload.
		logger.Warnf("[room %s] queue full; dropping event %T", r.id, evt)
	}
}

func (r *Room) loop() {
	for evt := range r.events {
		switch e := evt.(type) {
		case joinEvent:
			r.handleJoin(e)
		case leaveEvent:
			r.handleLeave(e)
		case moveEvent:
			r.handleMove(e)
		case chatEvent:
			r.handleChat(e)
		case privateEvent:
			r.handlePrivate(e)
		case botReplyEvent:
			r.handleBotReply(e)
		case promptEvent:
			r.defaultPrompt = e.prompt
		case reloadEvent:
			r.handleReload()
		case botInsertEvent:
			r.handleBotUpsert(e.record)
		case botUpdateEvent:
			r.handleBotUpsert(e.record)
		case botDeleteEvent:
			r.handleBotDelete(e.record)
		case disposeEvent:
			r.handleDispose(e)
			return
		default:
			logger.Warnf("[room %s] unknown event %T", r.id, evt)
		}
	}
}

// Join registers a client. Observers get no participant; everyone else gets
// a freshly placed player and the updated roster is broadcast.
func (r *Room) Join(sessionID, username string, observer bool) {
	r.enqueue(joinEvent{sessionID: sessionID, username: username, observer: observer})
}

// Leave removes the participant owned by sessionID. consented distinguishes
// graceful leave from an abrupt disconnect; removal is the same either way.
func (r *Room) Leave(sessionID string, consented bool) {
	r.enqueue(leaveEvent{sessionID: sessionID, consented: consented})
}

// Move overwrites the position of sessionID's own participant.
func (r *Room) Move(sessionID string, x, y float64) {
	r.enqueue(moveEvent{sessionID: sessionID, pos: Position{X: x, Y: y}})
}

// Chat appends to the transcript and broadcasts to every client.
func (r *Room) Chat(sessionID, text string) {
	r.enqueue(chatEvent{sessionID: sessionID, text: text})
}

// PrivateMessage routes a directed message: to a connected player as a
// unicast, to a bot via the responder, otherwise silently dropped.
func (r *Room) PrivateMessage(from, to, text string) {
	r.enqueue(privateEvent{from: from, to: to, text: text})
}

// UpdatePrompt overwrites the room-wide fallback prompt used by bot records
// that carry no prompt of their own.
func (r *Room) UpdatePrompt(prompt string) {
	r.enqueue(promptEvent{prompt: prompt})
}

// Reload re-runs the full roster load against the config store.
func (r *Room) Reload() {
	r.enqueue(reloadEvent{})
}

// Dispose releases the change-feed subscription and stops the loop. Blocks
// until the in-flight event, if any, has finished. No operations are valid
// afterwards.
func (r *Room) Dispose() {
	r.mu.Lock()
	if r.phase != PhaseActive {
		r.mu.Unlock()
		return
	}
	r.phase = PhaseDisposed
	r.mu.Unlock()

	done := make(chan struct{})
	// Enqueue directly: the phase gate above already flipped to Disposed.
	r.events <- disposeEvent{done: done}
	<-done
}

func (r *Room) handleDispose(e disposeEvent) {
	if r.sub != nil {
		r.sub.Close()
		r.sub = nil
	}
	r.state = newState()
	logger.Infof("[room %s] disposed", r.id)
	close(e.done)
}

func (r *Room) handleJoin(e joinEvent) {
	if e.observer {
		logger.Debugf("[room %s] observer connected: %s", r.id, e.sessionID)
		return
	}
	username := e.username
	if username == "" {
		username = fmt.Sprintf("#User %s", e.sessionID)
	}
	r.state.add(&Participant{
		SessionID: e.sessionID,
		Username:  username,
		HeroType:  r.randInt(12) + 1,
		Position:  r.randomPosition(),
		Kind:      KindPlayer,
	})
	logger.Infof("[room %s] %s joined", r.id, e.sessionID)
	r.broadcastRoster()
}

func (r *Room) handleLeave(e leaveEvent) {
	if !r.state.remove(e.sessionID) {
		// Observer or already gone.
		return
	}
	logger.Infof("[room %s] %s left (consented=%t)", r.id, e.sessionID, e.consented)
	r.broadcastRoster()
}

func (r *Room) handleMove(e moveEvent) {
	p := r.state.get(e.sessionID)
	if p == nil || p.Kind != KindPlayer {
		return
	}
	p.Position = e.pos
	r.broadcastState()
}

func (r *Room) handleChat(e chatEvent) {
	r.state.messages = append(r.state.messages, e.text)
	r.emitter.Broadcast(types.EventChatMessage, types.ChatBroadcast{User: e.sessionID, Text: e.text})
	r.broadcastState()
}

func (r *Room) handlePrivate(e privateEvent) {
	target := r.state.get(e.to)
	if target == nil {
		logger.Debugf("[room %s] private message to unknown recipient %s; dropped", r.id, e.to)
		return
	}

	if target.Kind == KindPlayer {
		r.emitter.SendTo(e.to, types.EventPrivateMessage, types.PrivateMessage{User: e.from, Text: e.text})
		return
	}

	prompt := target.Prompt
	if prompt == "" {
		prompt = r.defaultPrompt
	}
	botSession := target.SessionID

	// The delegate call takes wall-clock time (network wait plus backoff).
	// It runs outside the loop so other clients' traffic keeps flowing; the
	// reply re-enters the queue for the delivery check.
	go func() {
		reply := r.responder.Respond(context.Background(), prompt, e.text)
		r.enqueue(botReplyEvent{to: e.from, from: botSession, text: reply})
	}()
}

func (r *Room) handleBotReply(e botReplyEvent) {
	if r.state.get(e.to) == nil {
		// Requester disconnected while the delegate call was in flight.
		logger.Debugf("[room %s] dropping bot reply for departed client %s", r.id, e.to)
		return
	}
	r.emitter.SendTo(e.to, types.EventPrivateMessage, types.PrivateMessage{User: e.from, Text: e.text})
}

func (r *Room) broadcastRoster() {
	r.emitter.Broadcast(types.EventPlayerList, r.state.sessionIDs())
	r.broadcastState()
}

func (r *Room) broadcastState() {
	r.emitter.Broadcast("state", r.state.snapshot())
}

func (r *Room) randomPosition() Position {
	return Position{
		X: float64(r.randInt(100)),
		Y: float64(r.randInt(100)),
	}
}
