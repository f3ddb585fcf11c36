package http

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/dmitrijs2005/todoauth/internal/common"
	"github.com/dmitrijs2005/todoauth/internal/logging"
)

const (
	shutdownTimeout  = 5 * time.Second
	limiterCacheSize = 4096
	corsAllowHeaders = "Origin, Content-Type, Accept, Authorization"
)

// Options configures NewServer.
type Options struct {
	Address        string
	SecureCookies  bool
	CookieTTL      time.Duration
	FrontendURL    string
	RateLimitRPS   float64
	RateLimitBurst int
}

type Server struct {
	address string
	app     *fiber.App
	logger  logging.Logger
}

// NewServer builds the fiber app with its middleware and routes. A
// non-positive RateLimitRPS disables the limiter.
func NewServer(opts Options, service AuthService, verifier TokenVerifier, l logging.Logger) *Server {
	if l == nil {
		l = logging.Nop{}
	}
	logger := l.With("module", "http_server")

	if opts.CookieTTL <= 0 {
		opts.CookieTTL = common.TokenValidity
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	app.Use(RequestLogger(logger))
	if opts.FrontendURL != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     opts.FrontendURL,
			AllowHeaders:     corsAllowHeaders,
			AllowCredentials: true,
		}))
	}

	h := NewHandler(service, verifier, opts.SecureCookies, opts.CookieTTL, l)

	limited := []fiber.Handler{}
	if opts.RateLimitRPS > 0 {
		limited = append(limited, RateLimitPerIP(opts.RateLimitRPS, opts.RateLimitBurst, limiterCacheSize))
	}

	app.Get("/health", h.Health)
	app.Get("/session", h.Session)
	app.Post("/signin", append(limited, h.SignIn)...)
	app.Post("/signup", append(limited, h.SignUp)...)
	app.Post("/signout", h.SignOut)
	app.Get("/me", RequireBearer(verifier), h.Me)

	return &Server{address: opts.Address, app: app, logger: logger}
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "HTTP shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := s.app.Listen(s.address); err != nil {
		return err
	}
	return nil
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
