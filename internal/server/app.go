// Package server initializes and runs the auth server.
// It opens the credential store, wires the auth service and starts the
// session HTTP server and the token verification gRPC server, stopping both
// on SIGINT/SIGTERM.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/todoauth/internal/logging"
	"github.com/dmitrijs2005/todoauth/internal/server/auth"
	"github.com/dmitrijs2005/todoauth/internal/server/config"
	"github.com/dmitrijs2005/todoauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/todoauth/internal/server/services"

	gs "github.com/dmitrijs2005/todoauth/internal/server/grpc"
	hs "github.com/dmitrijs2005/todoauth/internal/server/http"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	store       *UserStore
	issuer      *auth.Issuer
	userService *services.UserService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger, err := logging.New(c.LogBackend, c.LogLevel, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	if c.UsesFallbackSecret() {
		logger.Warn(ctx, "BETTER_AUTH_SECRET is not set, signing tokens with the fallback secret")
	}

	store, err := OpenUserStore(ctx, c.DatabaseDSN, repomanager.NewPostgresRepositoryManager(), logger)
	if err != nil {
		return nil, err
	}

	issuer := auth.NewIssuer(c.SecretKey, c.TokenValidity)
	us := services.NewUserService(store.Users, auth.NewHasher(), issuer, logger)

	return &App{config: c, logger: logger, store: store, issuer: issuer, userService: us}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := hs.NewServer(hs.Options{
		Address:        app.config.HTTPAddr,
		SecureCookies:  app.config.IsProduction(),
		CookieTTL:      app.issuer.Validity(),
		FrontendURL:    app.config.FrontendURL,
		RateLimitRPS:   app.config.RateLimitRPS,
		RateLimitBurst: app.config.RateLimitBurst,
	}, app.userService, app.issuer, app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.issuer)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled or a signal arrives, then waits for both
// servers to stop and closes the store.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "environment", app.config.Environment)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.config.GRPCAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startGRPCServer(ctx, cancelFunc)
		}()
	}

	wg.Wait()

	if err := app.store.Close(); err != nil {
		app.logger.Error(ctx, "closing store", "error", err)
	}
	if z, ok := app.logger.(*logging.ZapLogger); ok {
		_ = z.Sync()
	}
	app.logger.Info(ctx, "App stopped")
}
