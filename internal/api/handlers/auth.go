package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/playroomhq/playroom/internal/crypto"
	"github.com/playroomhq/playroom/internal/logger"
	"github.com/playroomhq/playroom/pkg/types"
)

// AuthHandler issues guest tokens for room joins. Full account auth lives
// behind an external identity provider; the room server only needs a signed
// identity to hand to the transport.
type AuthHandler struct {
	jwtManager *crypto.JWTManager
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(jwtManager *crypto.JWTManager) *AuthHandler {
	return &AuthHandler{jwtManager: jwtManager}
}

// PostGuest handles POST /auth/guest.
func (h *AuthHandler) PostGuest(c *gin.Context) {
	var req types.GuestAuthRequest
	// Username is optional; an empty body is a valid anonymous request.
	_ = c.ShouldBindJSON(&req)

	userID := uuid.NewString()
	username := req.Username
	if username == "" {
		username = fmt.Sprintf("Guest-%s", userID[:8])
	}

	token, err := h.jwtManager.CreateToken(userID, username)
	if err != nil {
		logger.Errorf("Failed to create guest token: %v", err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "Failed to create token"})
		return
	}

	c.JSON(http.StatusOK, types.GuestAuthResponse{
		Token:    token,
		UserID:   userID,
		Username: username,
	})
}
