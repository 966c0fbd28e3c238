package types

// Common response types

type ErrorResponse struct {
	Error string `json:"error"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

// Socket handshake auth payload sent by clients when connecting.

type SocketAuthPayload struct {
	Token     string `json:"token"`
	ChannelID string `json:"channelId"`
	Observer  bool   `json:"isObserver"`
}

// Room event catalog (client -> room)

type MovePayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type ChatMessagePayload struct {
	Text string `json:"text"`
}

type PrivateMessagePayload struct {
	// SendPlayerID is the session id of the recipient.
	SendPlayerID string `json:"sendPlayerId"`
	Text         string `json:"text"`
}

type UpdatePromptPayload struct {
	Prompt string `json:"prompt"`
}

// Room event catalog (room -> clients)

type ChatBroadcast struct {
	User string `json:"user"`
	Text string `json:"text"`
}

type PrivateMessage struct {
	User string `json:"user"`
	Text string `json:"text"`
}

// Event names shared by the Socket.IO and plain-WebSocket transports.

const (
	EventMove           = "move"
	EventChatMessage    = "chat_message"
	EventPrivateMessage = "private_message"
	EventPlayerList     = "player_list"
	EventUpdatePrompt   = "update_prompt"
	EventError          = "error"
)

// Auth API types

type GuestAuthRequest struct {
	Username string `json:"username"`
}

type GuestAuthResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Bot editor API types

type SaveBotRequest struct {
	Name     string `json:"name" binding:"required"`
	PlayerID string `json:"playerId" binding:"required"`
}

type UpdateBotPromptRequest struct {
	ID     int64  `json:"id" binding:"required"`
	Prompt string `json:"prompt" binding:"required"`
}

type DeleteBotRequest struct {
	ID int64 `json:"id" binding:"required"`
}
