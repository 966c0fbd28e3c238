package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/playroomhq/playroom/internal/crypto"
	"github.com/playroomhq/playroom/internal/logger"
	"github.com/playroomhq/playroom/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// SimpleServer is a plain WebSocket transport (not Socket.IO) speaking the
// same event catalog as envelopes of {type, data}. Used by tooling clients
// that do not carry a Socket.IO stack.
type SimpleServer struct {
	jwtManager *crypto.JWTManager
	rooms      *Rooms
}

// Event is a plain-WebSocket message envelope.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewSimpleServer creates a new plain WebSocket server over the shared room
// registry.
func NewSimpleServer(jwtManager *crypto.JWTManager, rooms *Rooms) *SimpleServer {
	return &SimpleServer{
		jwtManager: jwtManager,
		rooms:      rooms,
	}
}

// wsClient adapts a gorilla connection to the room Client interface. Writes
// are serialized with a mutex; gorilla connections allow one writer at a
// time.
type wsClient struct {
	conn      *websocket.Conn
	sessionID string
	observer  bool

	writeMu sync.Mutex
}

func (c *wsClient) SessionID() string { return c.sessionID }
func (c *wsClient) Observer() bool    { return c.observer }

func (c *wsClient) Emit(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Warnf("WebSocket emit marshal error: %v", err)
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(Event{Type: event, Data: data}); err != nil {
		logger.Tracef("WebSocket write error (session %s): %v", c.sessionID, err)
	}
}

// HandleWebSocket handles plain WebSocket connections. Auth travels in query
// parameters: token, channelId and observer.
func (s *SimpleServer) HandleWebSocket(c *gin.Context) {
	claims, err := s.jwtManager.VerifyToken(c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: "invalid token"})
		return
	}

	channelID := c.Query("channelId")
	if channelID == "" {
		channelID = "default"
	}
	observer := c.Query("observer") == "true" || c.Query("observer") == "1"

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	client := &wsClient{
		conn:      conn,
		sessionID: crypto.NewSessionID(),
		observer:  observer,
	}

	if err := s.rooms.Attach(channelID, client, claims.Username); err != nil {
		msg := "Failed to join room"
		if errors.Is(err, ErrRoomFull) {
			msg = "Room is full"
		}
		client.Emit(types.EventError, map[string]string{"message": msg})
		return
	}

	consented := false
	defer func() {
		s.rooms.Detach(channelID, client.sessionID, consented)
	}()

	logger.Infof("WebSocket client ready (user: %s, session: %s, channel: %s)", claims.Subject, client.sessionID, channelID)

	rm := s.rooms.Room(channelID)
	for {
		var evt Event
		if err := conn.ReadJSON(&evt); err != nil {
			// A normal close frame is a graceful leave; anything else is an
			// abrupt disconnect.
			consented = websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
			if !consented {
				logger.Tracef("WebSocket read error (session %s): %v", client.sessionID, err)
			}
			return
		}
		if rm == nil {
			continue
		}

		switch evt.Type {
		case types.EventMove:
			var p types.MovePayload
			if json.Unmarshal(evt.Data, &p) == nil {
				rm.Move(client.sessionID, p.X, p.Y)
			}
		case types.EventChatMessage:
			var p types.ChatMessagePayload
			if json.Unmarshal(evt.Data, &p) == nil {
				rm.Chat(client.sessionID, p.Text)
			}
		case types.EventPrivateMessage:
			var p types.PrivateMessagePayload
			if json.Unmarshal(evt.Data, &p) == nil {
				rm.PrivateMessage(client.sessionID, p.SendPlayerID, p.Text)
			}
		case types.EventUpdatePrompt:
			if !observer {
				continue
			}
			var p types.UpdatePromptPayload
			if json.Unmarshal(evt.Data, &p) == nil {
				rm.UpdatePrompt(p.Prompt)
			}
		default:
			logger.Tracef("WebSocket unknown event %q (session %s)", evt.Type, client.sessionID)
		}
	}
}
