// Package http exposes the session endpoints over fiber: sign-up, sign-in,
// sign-out and the current session, plus a bearer-token guard for
// downstream routes.
package http

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dmitrijs2005/todoauth/internal/common"
	"github.com/dmitrijs2005/todoauth/internal/logging"
	"github.com/dmitrijs2005/todoauth/internal/server/auth"
	"github.com/dmitrijs2005/todoauth/internal/server/services"
)

// AuthService is satisfied by *services.UserService.
type AuthService interface {
	SignUp(ctx context.Context, in services.SignUpInput) (*services.AuthResult, error)
	SignIn(ctx context.Context, in services.SignInInput) (*services.AuthResult, error)
}

// TokenVerifier is satisfied by *auth.Issuer.
type TokenVerifier interface {
	Verify(token string) (*auth.Identity, error)
}

type Handler struct {
	service  AuthService
	verifier TokenVerifier
	cookies  cookies
	logger   logging.Logger
}

func NewHandler(service AuthService, verifier TokenVerifier, secureCookies bool, cookieTTL time.Duration, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Handler{
		service:  service,
		verifier: verifier,
		cookies:  cookies{secure: secureCookies, maxAge: cookieTTL},
		logger:   logger.With("module", "http_handler"),
	}
}

func (h *Handler) SignUp(c *fiber.Ctx) error {
	var input services.SignUpInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.service.SignUp(c.UserContext(), input)
	if err != nil {
		return h.fail(c, err, "sign up failed")
	}

	h.cookies.set(c, res.Token)
	return c.JSON(res)
}

func (h *Handler) SignIn(c *fiber.Ctx) error {
	var input services.SignInInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.service.SignIn(c.UserContext(), input)
	if err != nil {
		return h.fail(c, err, "sign in failed")
	}

	h.cookies.set(c, res.Token)
	return c.JSON(res)
}

// SignOut only drops the cookie; the token stays valid until it expires.
func (h *Handler) SignOut(c *fiber.Ctx) error {
	h.cookies.clear(c)
	return c.JSON(fiber.Map{"ok": true})
}

func (h *Handler) Session(c *fiber.Ctx) error {
	return c.JSON(resolveSession(c, h.verifier))
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy"})
}

// Me echoes the identity attached by RequireBearer.
func (h *Handler) Me(c *fiber.Ctx) error {
	id, ok := IdentityFrom(c)
	if !ok {
		return unauthorized(c)
	}
	return c.JSON(fiber.Map{
		"id":        id.SubjectID,
		"email":     id.Email,
		"expiresAt": id.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// fail maps service errors onto 400 responses. Anything outside the
// user-facing taxonomy is logged and replaced by generic.
func (h *Handler) fail(c *fiber.Ctx, err error, generic string) error {
	switch {
	case errors.Is(err, common.ErrValidation),
		errors.Is(err, common.ErrAccountExists),
		errors.Is(err, common.ErrInvalidCredentials):
		return badRequest(c, err.Error())
	}

	h.logger.Error(c.UserContext(), generic, "path", c.Path(), "error", err)
	return badRequest(c, generic)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
}
