package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/playroomhq/playroom/internal/bots"
	"github.com/playroomhq/playroom/internal/logger"
	"github.com/playroomhq/playroom/pkg/types"
)

// BotHandler serves the editor's bot roster CRUD. Every write lands in the
// store and therefore on the change feed, so live rooms pick edits up
// without a restart.
type BotHandler struct {
	store *bots.Store
}

// NewBotHandler creates a bot handler over the roster store.
func NewBotHandler(store *bots.Store) *BotHandler {
	return &BotHandler{store: store}
}

// SaveBot handles POST /save_bot.
func (h *BotHandler) SaveBot(c *gin.Context) {
	var req types.SaveBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "Bot name and player ID are required"})
		return
	}

	rec, err := h.store.Create(c.Request.Context(), req.PlayerID, req.Name, "")
	if err != nil {
		logger.Errorf("Failed to save bot: %v", err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "Failed to save bot"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "bot": rec})
}

// GetBots handles GET /get_bots/:playerId.
func (h *BotHandler) GetBots(c *gin.Context) {
	playerID := c.Param("playerId")
	if playerID == "" {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "Player ID is required"})
		return
	}

	records, err := h.store.ListByOwner(c.Request.Context(), playerID)
	if err != nil {
		logger.Errorf("Failed to list bots: %v", err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "Failed to retrieve bots"})
		return
	}
	if records == nil {
		records = []bots.Record{}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "bots": records})
}

// UpdateBotPrompt handles POST /update_bot_prompt.
func (h *BotHandler) UpdateBotPrompt(c *gin.Context) {
	var req types.UpdateBotPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "Bot ID and prompt are required"})
		return
	}

	if _, err := h.store.UpdatePrompt(c.Request.Context(), req.ID, req.Prompt); err != nil {
		logger.Errorf("Failed to update bot prompt: %v", err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "Failed to update bot prompt"})
		return
	}

	c.JSON(http.StatusOK, types.SuccessResponse{Success: true})
}

// DeleteBot handles POST /delete_bot.
func (h *BotHandler) DeleteBot(c *gin.Context) {
	var req types.DeleteBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "Bot ID is required"})
		return
	}

	if err := h.store.Delete(c.Request.Context(), req.ID); err != nil {
		logger.Errorf("Failed to delete bot: %v", err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "Failed to delete bot"})
		return
	}

	c.JSON(http.StatusOK, types.SuccessResponse{Success: true})
}
