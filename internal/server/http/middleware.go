package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/todoauth/internal/common"
	"github.com/dmitrijs2005/todoauth/internal/logging"
	"github.com/dmitrijs2005/todoauth/internal/server/auth"
)

const identityKey = "identity"

// RequireBearer rejects requests without a valid "Authorization: Bearer"
// token and stores the verified identity in the request locals.
func RequireBearer(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if len(header) <= len(common.BearerPrefix) ||
			!strings.EqualFold(header[:len(common.BearerPrefix)], common.BearerPrefix) {
			return unauthorized(c)
		}

		id, err := verifier.Verify(strings.TrimSpace(header[len(common.BearerPrefix):]))
		if err != nil {
			return unauthorized(c)
		}

		c.Locals(identityKey, id)
		return c.Next()
	}
}

// IdentityFrom returns the identity stored by RequireBearer.
func IdentityFrom(c *fiber.Ctx) (*auth.Identity, bool) {
	id, ok := c.Locals(identityKey).(*auth.Identity)
	return id, ok && id != nil
}

// RequestLogger logs every request at debug level with credentials redacted,
// and its outcome at info level.
func RequestLogger(logger logging.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		logger.Debug(ctx, "incoming request",
			"method", c.Method(),
			"path", c.Path(),
			"origin", c.Get(fiber.HeaderOrigin),
			"headers", scrubHeaders(c),
		)

		start := time.Now()
		err := c.Next()
		if err != nil {
			// Let the app error handler write the response before reading the status.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		logger.Info(ctx, "request completed",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"latency", time.Since(start),
		)
		return nil
	}
}

func scrubHeaders(c *fiber.Ctx) map[string]string {
	out := make(map[string]string)
	c.Request().Header.VisitAll(func(k, v []byte) {
		key := string(k)
		lower := strings.ToLower(key)
		if strings.Contains(lower, "authorization") || strings.Contains(lower, "cookie") {
			out[key] = "[redacted]"
			return
		}
		out[key] = string(v)
	})
	return out
}

// RateLimitPerIP allows each client IP rps requests per second with the
// given burst. Limiters live in an LRU of cacheSize entries, so idle IPs are
// evicted by newer ones.
func RateLimitPerIP(rps float64, burst, cacheSize int) fiber.Handler {
	visitors, err := lru.New[string, *rate.Limiter](cacheSize)
	if err != nil {
		// Only a non-positive size fails.
		visitors, _ = lru.New[string, *rate.Limiter](1024)
	}

	return func(c *fiber.Ctx) error {
		ip := c.IP()

		lim, ok := visitors.Get(ip)
		if !ok {
			lim = rate.NewLimiter(rate.Limit(rps), burst)
			if prev, found, _ := visitors.PeekOrAdd(ip, lim); found {
				lim = prev
			}
		}

		if !lim.Allow() {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		}
		return c.Next()
	}
}
