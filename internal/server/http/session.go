package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dmitrijs2005/todoauth/internal/common"
	"github.com/dmitrijs2005/todoauth/internal/server/auth"
)

// SessionUser is the identity exposed by GET /session.
type SessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is the request-time view of the credential cookie. Both fields are
// null when no valid token is present.
type Session struct {
	User  *SessionUser `json:"user"`
	Token *string      `json:"token"`
}

// cookies writes and clears the token cookie.
type cookies struct {
	secure bool
	maxAge time.Duration
}

func (k cookies) set(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     common.TokenCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(k.maxAge / time.Second),
		Secure:   k.secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (k cookies) clear(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     common.TokenCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		Secure:   k.secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// resolveSession verifies the cookie token. Absence and every verification
// failure yield the null session.
func resolveSession(c *fiber.Ctx, verifier TokenVerifier) Session {
	token := c.Cookies(common.TokenCookieName)
	if token == "" {
		return Session{}
	}

	id, err := verifier.Verify(token)
	if err != nil {
		return Session{}
	}

	return Session{
		User:  &SessionUser{ID: id.SubjectID, Email: id.Email},
		Token: &token,
	}
}

var _ TokenVerifier = (*auth.Issuer)(nil)
