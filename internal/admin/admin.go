// Package admin implements authctl, the operator CLI: applying migrations,
// creating users and checking tokens.
package admin

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/dmitrijs2005/todoauth/internal/dbx"
	"github.com/dmitrijs2005/todoauth/internal/flagx"
	"github.com/dmitrijs2005/todoauth/internal/logging"
	"github.com/dmitrijs2005/todoauth/internal/server/auth"
	"github.com/dmitrijs2005/todoauth/internal/server/config"
	"github.com/dmitrijs2005/todoauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/todoauth/internal/server/services"

	gs "github.com/dmitrijs2005/todoauth/internal/server/grpc"
)

const usage = `usage: authctl <command> [flags]

commands:
  migrate                          apply database migrations
  create-user -email E -name N     create a user, the password is prompted
  verify-token [-remote ADDR] TOKEN
                                   verify a token locally or via the gRPC service`

var ErrUsage = errors.New(usage)

var commandFlags = []string{"-email", "-name", "-remote", "-c", "-config"}

type App struct {
	cfg     *config.Config
	in      *bufio.Reader
	out     io.Writer
	logger  logging.Logger
	stdinFd int

	openDB  func(ctx context.Context, dsn string) (*sql.DB, error)
	manager repomanager.RepositoryManager
}

func NewApp(cfg *config.Config, in io.Reader, out io.Writer, logger logging.Logger) *App {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &App{
		cfg:     cfg,
		in:      bufio.NewReader(in),
		out:     out,
		logger:  logger.With("module", "authctl"),
		stdinFd: int(os.Stdin.Fd()),
		openDB:  dbx.OpenPostgres,
		manager: repomanager.NewPostgresRepositoryManager(),
	}
}

// Run executes the command named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "migrate":
		return a.migrate(ctx)
	case "create-user":
		return a.createUser(ctx, rest)
	case "verify-token":
		return a.verifyToken(ctx, rest)
	case "help", "-h", "--help":
		fmt.Fprintln(a.out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%w", cmd, ErrUsage)
	}
}

func (a *App) open(ctx context.Context) (*sql.DB, error) {
	if a.cfg.DatabaseDSN == "" {
		return nil, errors.New("DATABASE_URL (or -d) is required")
	}
	return a.openDB(ctx, a.cfg.DatabaseDSN)
}

func (a *App) migrate(ctx context.Context) error {
	db, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := a.manager.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	fmt.Fprintln(a.out, "Migrations applied")
	return nil
}

func (a *App) createUser(ctx context.Context, args []string) error {
	var email, name string
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&email, "email", "", "user email")
	fs.StringVar(&name, "name", "", "display name")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-email", "-name"})); err != nil {
		return err
	}

	var err error
	if email == "" {
		if email, err = GetSimpleText(a.in, "Enter email", a.out); err != nil {
			return err
		}
	}
	if name == "" {
		if name, err = GetSimpleText(a.in, "Enter name", a.out); err != nil {
			return err
		}
	}
	password, err := GetPassword(a.out, a.stdinFd)
	if err != nil {
		return err
	}

	db, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := services.NewUserService(
		a.manager.Users(db),
		auth.NewHasher(),
		auth.NewIssuer(a.cfg.SecretKey, a.cfg.TokenValidity),
		a.logger,
	)

	res, err := svc.SignUp(ctx, services.SignUpInput{Email: email, Password: password, Name: name})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Created user %s\n", res.User.ID)
	return nil
}

func (a *App) verifyToken(ctx context.Context, args []string) error {
	var remote string
	fs := flag.NewFlagSet("verify-token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&remote, "remote", "", "gRPC address of the token service")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-remote"})); err != nil {
		return err
	}

	pos := positional(args, append(config.KnownFlags(), commandFlags...))
	if len(pos) != 1 {
		return fmt.Errorf("verify-token takes exactly one token\n%w", ErrUsage)
	}
	token := pos[0]

	if remote != "" {
		return a.verifyRemote(ctx, remote, token)
	}

	id, err := auth.NewIssuer(a.cfg.SecretKey, a.cfg.TokenValidity).Verify(token)
	if err != nil {
		return err
	}
	a.printIdentity(id.SubjectID, id.Email, id.ExpiresAt)
	return nil
}

func (a *App) verifyRemote(ctx context.Context, addr, token string) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := gs.NewTokenServiceClient(conn).Verify(ctx, token)
	if err != nil {
		return err
	}

	fields := out.GetFields()
	exp := time.Unix(int64(fields["exp"].GetNumberValue()), 0)
	a.printIdentity(fields["sub"].GetStringValue(), fields["email"].GetStringValue(), exp)
	return nil
}

func (a *App) printIdentity(sub, email string, exp time.Time) {
	fmt.Fprintf(a.out, "sub=%s email=%s expires=%s\n", sub, email, exp.UTC().Format(time.RFC3339))
}
