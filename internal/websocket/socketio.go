package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/playroomhq/playroom/internal/crypto"
	"github.com/playroomhq/playroom/internal/logger"
	socket "github.com/zishang520/socket.io/servers/socket/v3"
	sockettypes "github.com/zishang520/socket.io/v3/pkg/types"
)

// SocketIOServer is the primary realtime transport: one Socket.IO server
// multiplexing every room over a single endpoint.
type SocketIOServer struct {
	jwtManager *crypto.JWTManager
	server     *socket.Server
	socketData sync.Map // socket id -> *SocketData
	rooms      *Rooms
}

// NewSocketIOServer creates a new Socket.IO v4 server routing joins into the
// given room registry.
func NewSocketIOServer(jwtManager *crypto.JWTManager, rooms *Rooms) *SocketIOServer {
	opts := socket.DefaultServerOptions()

	opts.SetCors(&sockettypes.Cors{
		Origin:      "*",
		Credentials: false,
	})

	// How frequently the server pings clients to detect stale sockets, and
	// how long it waits before considering one dead. Together these bound
	// how quickly an abruptly-killed client is removed from its room.
	const pingInterval = 5 * time.Second
	const pingTimeout = 15 * time.Second

	opts.SetPingTimeout(pingTimeout)
	opts.SetPingInterval(pingInterval)
	opts.SetPath("/v1/room")

	server := socket.NewServer(nil, opts)

	s := &SocketIOServer{
		jwtManager: jwtManager,
		server:     server,
		socketData: sync.Map{},
		rooms:      rooms,
	}

	s.server.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		s.handleConnection(client)
	})

	return s
}

// SocketData stores connection metadata for each socket.
type SocketData struct {
	UserID    string
	Username  string
	ChannelID string
	Observer  bool
	Socket    *socket.Socket
}

func decodeAny(input any, out any) error {
	raw, err := json.Marshal(input)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// getSocketData retrieves socket metadata by socket ID.
func (s *SocketIOServer) getSocketData(socketID string) *SocketData {
	if data, ok := s.socketData.Load(socketID); ok {
		if sd, ok := data.(*SocketData); ok {
			return sd
		}
	}
	return &SocketData{}
}

// HandleSocketIO creates a Gin handler for Socket.IO.
func (s *SocketIOServer) HandleSocketIO() gin.HandlerFunc {
	httpHandler := s.server.ServeHandler(nil)

	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "false")

		if c.Request.Method == "OPTIONS" {
			c.Status(http.StatusOK)
			return
		}

		logger.Tracef("Socket.IO request: %s %s", c.Request.Method, c.Request.URL.Path)
		httpHandler.ServeHTTP(c.Writer, c.Request)
	}
}

// Close shuts down the Socket.IO server and disposes every room.
func (s *SocketIOServer) Close() error {
	s.server.Close(nil)
	s.rooms.Close()
	return nil
}
