package websocket

import (
	"strings"

	"github.com/playroomhq/playroom/internal/logger"
	"github.com/playroomhq/playroom/pkg/types"
	socket "github.com/zishang520/socket.io/servers/socket/v3"
)

func (s *SocketIOServer) registerClientHandlers(client *socket.Socket, socketID string) {
	client.On(types.EventMove, func(data ...any) {
		sd := s.getSocketData(socketID)
		if len(data) == 0 {
			return
		}
		var payload types.MovePayload
		if err := decodeAny(data[0], &payload); err != nil {
			logger.Warnf("Move data decode error: %v (type=%T)", err, data[0])
			return
		}
		if rm := s.rooms.Room(sd.ChannelID); rm != nil {
			rm.Move(socketID, payload.X, payload.Y)
		}
	})

	client.On(types.EventChatMessage, func(data ...any) {
		sd := s.getSocketData(socketID)
		if len(data) == 0 {
			return
		}
		var payload types.ChatMessagePayload
		if err := decodeAny(data[0], &payload); err != nil {
			logger.Warnf("Chat data decode error: %v (type=%T)", err, data[0])
			return
		}
		logger.Tracef("Chat from %s: %s", socketID, payload.Text)
		if rm := s.rooms.Room(sd.ChannelID); rm != nil {
			rm.Chat(socketID, payload.Text)
		}
	})

	client.On(types.EventPrivateMessage, func(data ...any) {
		sd := s.getSocketData(socketID)
		if len(data) == 0 {
			return
		}
		var payload types.PrivateMessagePayload
		if err := decodeAny(data[0], &payload); err != nil {
			logger.Warnf("Private message decode error: %v (type=%T)", err, data[0])
			return
		}
		if rm := s.rooms.Room(sd.ChannelID); rm != nil {
			rm.PrivateMessage(socketID, payload.SendPlayerID, payload.Text)
		}
	})

	// Room-wide fallback prompt. Editor sessions connect as observers; only
	// they may rewrite it.
	client.On(types.EventUpdatePrompt, func(data ...any) {
		sd := s.getSocketData(socketID)
		if !sd.Observer {
			logger.Warnf("update_prompt from non-observer socket %s; ignored", socketID)
			return
		}
		if len(data) == 0 {
			return
		}
		var payload types.UpdatePromptPayload
		if err := decodeAny(data[0], &payload); err != nil {
			logger.Warnf("Prompt data decode error: %v (type=%T)", err, data[0])
			return
		}
		if rm := s.rooms.Room(sd.ChannelID); rm != nil {
			rm.UpdatePrompt(payload.Prompt)
		}
	})

	client.On("disconnect", func(data ...any) {
		sd := s.getSocketData(socketID)
		reason := ""
		if len(data) > 0 {
			if r, ok := data[0].(string); ok {
				reason = r
			}
		}
		logger.Infof("User disconnected: %s (socket %s, reason: %s)", sd.UserID, socketID, reason)

		// A client-initiated namespace disconnect is a graceful leave.
		consented := strings.Contains(reason, "client")
		s.rooms.Detach(sd.ChannelID, socketID, consented)
		s.socketData.Delete(socketID)
	})
}
