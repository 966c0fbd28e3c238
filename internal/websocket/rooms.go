package websocket

import (
	"errors"
	"sync"

	"github.com/playroomhq/playroom/internal/logger"
	"github.com/playroomhq/playroom/internal/room"
)

// ErrRoomFull rejects a join once a room holds MaxClients non-observer
// clients.
var ErrRoomFull = errors.New("room is full")

// Client is one connected transport client attached to a room. Both the
// Socket.IO and plain-WebSocket transports implement it.
type Client interface {
	SessionID() string
	Observer() bool
	Emit(event string, payload any)
}

// RoomFactory builds and starts the room for a channel. The emitter passed
// in delivers to the clients attached under that channel.
type RoomFactory func(channelID string, emitter room.Emitter) (*room.Room, error)

// Rooms tracks live rooms by channel id and the clients attached to each.
// Rooms are created lazily on first join and disposed when the last client
// detaches.
type Rooms struct {
	factory RoomFactory

	mu      sync.Mutex
	entries map[string]*roomEntry
}

type roomEntry struct {
	room    *room.Room
	clients map[string]Client
}

// NewRooms creates an empty room registry.
func NewRooms(factory RoomFactory) *Rooms {
	return &Rooms{
		factory: factory,
		entries: make(map[string]*roomEntry),
	}
}

// Attach joins a client to the channel's room, creating and starting the
// room if this is the first client. Non-observer joins beyond the capacity
// bound are rejected before the room sees them.
func (m *Rooms) Attach(channelID string, c Client, username string) error {
	m.mu.Lock()
	e := m.entries[channelID]
	if e == nil {
		rm, err := m.factory(channelID, &entryEmitter{rooms: m, channelID: channelID})
		if err != nil {
			m.mu.Unlock()
			return err
		}
		e = &roomEntry{room: rm, clients: make(map[string]Client)}
		m.entries[channelID] = e
	}
	if !c.Observer() {
		players := 0
		for _, cl := range e.clients {
			if !cl.Observer() {
				players++
			}
		}
		if players >= room.MaxClients {
			m.mu.Unlock()
			return ErrRoomFull
		}
	}
	e.clients[c.SessionID()] = c
	rm := e.room
	m.mu.Unlock()

	rm.Join(c.SessionID(), username, c.Observer())
	return nil
}

// Detach removes a client. Disposes the room once nobody is attached.
func (m *Rooms) Detach(channelID, sessionID string, consented bool) {
	m.mu.Lock()
	e := m.entries[channelID]
	if e == nil {
		m.mu.Unlock()
		return
	}
	delete(e.clients, sessionID)
	var dispose *room.Room
	if len(e.clients) == 0 {
		delete(m.entries, channelID)
		dispose = e.room
	}
	rm := e.room
	m.mu.Unlock()

	rm.Leave(sessionID, consented)
	if dispose != nil {
		logger.Infof("[rooms] channel %s empty; disposing room", channelID)
		dispose.Dispose()
	}
}

// Room returns the live room for a channel, or nil.
func (m *Rooms) Room(channelID string) *room.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.entries[channelID]; e != nil {
		return e.room
	}
	return nil
}

// Close disposes every live room.
func (m *Rooms) Close() {
	m.mu.Lock()
	var rooms []*room.Room
	for id, e := range m.entries {
		rooms = append(rooms, e.room)
		delete(m.entries, id)
	}
	m.mu.Unlock()

	for _, rm := range rooms {
		rm.Dispose()
	}
}

// entryEmitter delivers room emissions to the clients attached under one
// channel. It re-reads the registry on every call so late joins and leaves
// are always reflected.
type entryEmitter struct {
	rooms     *Rooms
	channelID string
}

func (e *entryEmitter) snapshotClients() []Client {
	e.rooms.mu.Lock()
	defer e.rooms.mu.Unlock()
	entry := e.rooms.entries[e.channelID]
	if entry == nil {
		return nil
	}
	out := make([]Client, 0, len(entry.clients))
	for _, c := range entry.clients {
		out = append(out, c)
	}
	return out
}

func (e *entryEmitter) Broadcast(event string, payload any) {
	for _, c := range e.snapshotClients() {
		c.Emit(event, payload)
	}
}

func (e *entryEmitter) SendTo(sessionID string, event string, payload any) {
	e.rooms.mu.Lock()
	entry := e.rooms.entries[e.channelID]
	var target Client
	if entry != nil {
		target = entry.clients[sessionID]
	}
	e.rooms.mu.Unlock()

	if target != nil {
		target.Emit(event, payload)
	}
}
