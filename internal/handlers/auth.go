package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const oauthStateCookie = "oauth_state"

// OAuthFlow is the Google side of the calendar connection.
type OAuthFlow interface {
	GetAuthURL(state string) string
	ExchangeCode(ctx context.Context, code string) error
}

type AuthHandler struct {
	flow   OAuthFlow
	logger *zap.Logger
}

func NewAuthHandler(flow OAuthFlow, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{flow: flow, logger: logger}
}

// /auth/google -> redirect to google
func (h *AuthHandler) HandleGoogleLogin(c *gin.Context) {
	state := uuid.NewString()
	url := h.flow.GetAuthURL(state)
	if url == "" {
		writeError(c, http.StatusServiceUnavailable, "google oauth is not configured")
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, state, 600, "/auth", "", false, true)
	c.Redirect(http.StatusTemporaryRedirect, url)
}

// /auth/callback -> Google send code here
func (h *AuthHandler) HandleGoogleCallback(c *gin.Context) {
	op := "handlers.HandleGoogleCallback"

	code := c.Query("code")
	if code == "" {
		writeError(c, http.StatusBadRequest, "Code not found")
		return
	}

	expected, err := c.Cookie(oauthStateCookie)
	if err != nil || expected == "" || expected != c.Query("state") {
		writeError(c, http.StatusBadRequest, "invalid oauth state")
		return
	}
	c.SetCookie(oauthStateCookie, "", -1, "/auth", "", false, true)

	if err := h.flow.ExchangeCode(c.Request.Context(), code); err != nil {
		h.logger.Error("failed to exchange code", zap.String("op", op), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Failed to exchange code")
		return
	}

	c.String(http.StatusOK, "Авторизация успешна! Можете закрыть окно и вернуться в чат.")
}
