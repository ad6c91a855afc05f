package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/modmail-service/internal/api/dto"
	"github.com/spec-kit/modmail-service/internal/auth"
	"github.com/spec-kit/modmail-service/pkg/util"
)

// AuthHandler issues dashboard tokens against the shared dashboard secret.
type AuthHandler struct {
	tokens       *auth.TokenManager
	hashedSecret string
}

// NewAuthHandler returns a new handler. hashedSecret is the bcrypt hash of
// the dashboard secret; empty disables token issuance.
func NewAuthHandler(tokens *auth.TokenManager, hashedSecret string) *AuthHandler {
	return &AuthHandler{tokens: tokens, hashedSecret: hashedSecret}
}

// Token exchanges the dashboard secret for a bearer token.
func (h *AuthHandler) Token(c *fiber.Ctx) error {
	if h.hashedSecret == "" {
		return util.NewConfigurationError("dashboard access is not configured")
	}

	var req dto.TokenRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid request body", nil)
	}
	if req.StaffID == "" || req.Secret == "" {
		return util.NewValidationError("staff_id and secret are required", nil)
	}

	if err := auth.CompareSecret(h.hashedSecret, req.Secret); err != nil {
		return util.NewUnauthorized("invalid dashboard secret")
	}

	token, expiresAt, err := h.tokens.GenerateToken(req.StaffID)
	if err != nil {
		return util.NewInternalError(err)
	}
	return c.JSON(dto.TokenResponse{Token: token, ExpiresAt: expiresAt})
}
