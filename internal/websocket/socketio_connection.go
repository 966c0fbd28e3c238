package websocket

import (
	"errors"

	"github.com/playroomhq/playroom/internal/logger"
	"github.com/playroomhq/playroom/pkg/types"
	socket "github.com/zishang520/socket.io/servers/socket/v3"
)

// socketClient adapts a Socket.IO socket to the room Client interface. The
// socket id doubles as the participant session id.
type socketClient struct {
	socket   *socket.Socket
	observer bool
}

func (c *socketClient) SessionID() string { return string(c.socket.Id()) }
func (c *socketClient) Observer() bool    { return c.observer }

func (c *socketClient) Emit(event string, payload any) {
	c.socket.Emit(event, payload)
}

func (s *SocketIOServer) handleConnection(client *socket.Socket) {
	socketID := string(client.Id())

	logger.Infof("Socket.IO connection attempt (socket ID: %s)", socketID)

	handshake := client.Handshake()

	authMap := handshake.Auth
	if len(authMap) == 0 {
		logger.Warnf("Socket.IO missing auth data (socket %s)", socketID)
		client.Emit(types.EventError, map[string]string{"message": "Missing authentication data"})
		client.Disconnect(true)
		return
	}

	var authPayload types.SocketAuthPayload
	if err := decodeAny(authMap, &authPayload); err != nil {
		logger.Warnf("Socket.IO invalid auth data (socket %s): %v", socketID, err)
		client.Emit(types.EventError, map[string]string{"message": "Invalid authentication data"})
		client.Disconnect(true)
		return
	}

	claims, err := s.jwtManager.VerifyToken(authPayload.Token)
	if err != nil {
		logger.Warnf("Socket.IO invalid token (socket %s): %v", socketID, err)
		client.Emit(types.EventError, map[string]string{"message": "Invalid authentication token"})
		client.Disconnect(true)
		return
	}

	channelID := authPayload.ChannelID
	if channelID == "" {
		channelID = "default"
	}

	userID := claims.Subject
	logger.Debugf("Socket.IO token verified: userID=%s, channelId=%s, observer=%t, socketId=%s",
		userID, channelID, authPayload.Observer, socketID)

	socketData := &SocketData{
		UserID:    userID,
		Username:  claims.Username,
		ChannelID: channelID,
		Observer:  authPayload.Observer,
		Socket:    client,
	}
	s.socketData.Store(socketID, socketData)

	if err := s.rooms.Attach(channelID, &socketClient{socket: client, observer: authPayload.Observer}, claims.Username); err != nil {
		s.socketData.Delete(socketID)
		if errors.Is(err, ErrRoomFull) {
			logger.Infof("Socket.IO join rejected, room full (socket %s, channel %s)", socketID, channelID)
			client.Emit(types.EventError, map[string]string{"message": "Room is full"})
		} else {
			logger.Errorf("Socket.IO room attach failed (socket %s): %v", socketID, err)
			client.Emit(types.EventError, map[string]string{"message": "Failed to join room"})
		}
		client.Disconnect(true)
		return
	}

	logger.Infof("Socket.IO client ready (user: %s, channel: %s, observer: %t)", userID, channelID, authPayload.Observer)

	s.registerClientHandlers(client, socketID)
}
