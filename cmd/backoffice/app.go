package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/bcrypt"

	"git.cscs.ch/openchami/backoffice/internal/audit"
	"git.cscs.ch/openchami/backoffice/internal/auth"
	"git.cscs.ch/openchami/backoffice/internal/backoffice"
	"git.cscs.ch/openchami/backoffice/internal/config"
	"git.cscs.ch/openchami/backoffice/internal/console"
	"git.cscs.ch/openchami/backoffice/internal/mockapi"
	"git.cscs.ch/openchami/backoffice/internal/policy"
	"git.cscs.ch/openchami/backoffice/pkg/client"
)

// env is what every command gets after the Before hook ran.
type env struct {
	cfg    config.Config
	logger zerolog.Logger

	in  io.Reader
	out io.Writer
	log io.Writer
}

func newApp(in io.Reader, out, logOut io.Writer) *cli.App {
	e := &env{in: in, out: out, log: logOut}

	return &cli.App{
		Name:      "backoffice",
		Usage:     "administer products, users and orders",
		Version:   fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate),
		Writer:    out,
		ErrWriter: logOut,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api-url", Usage: "API root URL (overrides BACKOFFICE_API_URL)"},
			&cli.StringFlag{Name: "log-level", Usage: "log level (overrides BACKOFFICE_LOG_LEVEL)"},
			&cli.StringFlag{Name: "mode", Usage: "read-only or read-write (overrides BACKOFFICE_MODE)"},
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "skip delete confirmation"},
		},
		Before: e.setup,
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "sign in and store the token in the session file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", EnvVars: []string{"BACKOFFICE_PASSWORD"}, Usage: "read from stdin when omitted"},
				},
				Action: e.login,
			},
			{
				Name:   "logout",
				Usage:  "remove the session file",
				Action: e.logout,
			},
			{
				Name:   "whoami",
				Usage:  "show where the token comes from and what it claims",
				Action: e.whoami,
			},
			{
				Name:   "console",
				Usage:  "interactive shell over products, users and orders",
				Action: e.runConsole,
			},
			e.resourceCommand("products"),
			e.resourceCommand("users"),
			e.resourceCommand("orders"),
			{
				Name:  "mock-api",
				Usage: "serve an in-memory API with seeded data",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "listen", Usage: "listen address (overrides BACKOFFICE_MOCK_LISTEN_ADDR)"},
					&cli.BoolFlag{Name: "require-auth", Usage: "reject API calls without a bearer token"},
					&cli.BoolFlag{Name: "legacy-order-list", Usage: "serve GET /order as a bare array"},
				},
				Action: e.mockAPI,
			},
		},
	}
}

func (e *env) setup(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if c.IsSet("api-url") {
		cfg.APIURL = strings.TrimRight(strings.TrimSpace(c.String("api-url")), "/")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("mode") {
		cfg.Mode = c.String("mode")
	}
	if c.Bool("yes") {
		cfg.AssumeYes = true
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel)))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	e.logger = zerolog.New(e.log).With().Timestamp().Str("service", "backoffice").Str("version", version).Logger()
	e.cfg = cfg
	return nil
}

// newClient builds the API client. The token is read from the environment or
// the session file on first use.
func (e *env) newClient() (*client.Client, error) {
	sessionPath := e.cfg.SessionPath
	c, err := client.New(client.Config{
		BaseURL: e.cfg.APIURL,
		Timeout: e.cfg.Timeout,
		TokenRefresh: func(context.Context) (string, error) {
			resolved, err := auth.ResolveToken(sessionPath)
			return resolved.Token, err
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating API client: %w", err)
	}
	return c, nil
}

// subject names the signed-in staff member for the audit log.
func (e *env) subject() string {
	resolved, err := auth.ResolveToken(e.cfg.SessionPath)
	if err != nil || resolved.Token == "" {
		return ""
	}
	if claims, err := auth.Inspect(resolved.Token); err == nil && claims.Subject != "" {
		return claims.Subject
	}
	return resolved.Email
}

func (e *env) bindingOptions(guard *policy.Guard) backoffice.Options {
	return backoffice.Options{
		Limit:   e.cfg.PageSize,
		Logger:  e.logger,
		Audit:   audit.NewLogger(e.logger),
		Mode:    guard.Mode(),
		Subject: e.subject(),
	}
}

func (e *env) login(c *cli.Context) error {
	password := c.String("password")
	if password == "" {
		fmt.Fprint(e.out, "password: ")
		line, err := readLine(e.in)
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		password = line
	}

	api, err := e.newClient()
	if err != nil {
		return err
	}
	resp, err := auth.Login(c.Context, api, c.String("email"), password, e.cfg.SessionPath)
	if err != nil {
		return fmt.Errorf("login failed: %s", client.UserMessage(err, err.Error()))
	}
	e.logger.Info().Str("session_path", e.cfg.SessionPath).Msg("session saved")
	name := c.String("email")
	if resp.User != nil && resp.User.FullName() != "" {
		name = resp.User.FullName()
	}
	fmt.Fprintf(e.out, "signed in as %s\n", name)
	return nil
}

func (e *env) logout(*cli.Context) error {
	if err := auth.DeleteSession(e.cfg.SessionPath); err != nil {
		return err
	}
	fmt.Fprintln(e.out, "signed out")
	return nil
}

func (e *env) whoami(*cli.Context) error {
	resolved, err := auth.ResolveToken(e.cfg.SessionPath)
	if err != nil {
		return err
	}
	if resolved.Token == "" {
		fmt.Fprintln(e.out, "not signed in")
		return nil
	}

	fmt.Fprintf(e.out, "token source: %s\n", resolved.Source)
	claims, err := auth.Inspect(resolved.Token)
	if err != nil {
		fmt.Fprintf(e.out, "token is not a readable JWT: %v\n", err)
		return nil
	}
	fmt.Fprintf(e.out, "subject:      %s\n", claims.Subject)
	if claims.Role != "" {
		fmt.Fprintf(e.out, "role:         %s\n", claims.Role)
	}
	if !claims.ExpiresAt.IsZero() {
		state := "valid"
		if claims.Expired(time.Now()) {
			state = "expired"
		}
		fmt.Fprintf(e.out, "expires:      %s (%s)\n", claims.ExpiresAt.Local().Format(time.RFC3339), state)
	}
	return nil
}

// newConsole wires the screens. A non-empty only keeps that screen alone.
func (e *env) newConsole(only string) (*console.Console, error) {
	guard, err := policy.NewGuard(e.cfg.Mode)
	if err != nil {
		return nil, err
	}
	c, err := e.newClient()
	if err != nil {
		return nil, err
	}
	screens, catalog, err := console.Screens(c, e.bindingOptions(guard))
	if err != nil {
		return nil, err
	}
	if only != "" {
		for _, s := range screens {
			if s.Name() == only {
				screens = []console.Screen{s}
				break
			}
		}
	}
	return console.New(console.Options{
		Screens:   screens,
		Guard:     guard,
		AssumeYes: e.cfg.AssumeYes,
		Catalog:   catalog,
		Products:  c.Products(),
		Logger:    e.logger,
	})
}

func (e *env) runConsole(c *cli.Context) error {
	con, err := e.newConsole("")
	if err != nil {
		return err
	}
	if err := con.Start(c.Context); err != nil {
		e.logger.Warn().Err(err).Msg("initial load incomplete")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- con.Run(c.Context, e.in, e.out) }()
	select {
	case err := <-errCh:
		return err
	case <-c.Context.Done():
		fmt.Fprintln(e.out)
		return nil
	}
}

func (e *env) resourceCommand(name string) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: "one-shot " + name + " commands",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "print one page",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "page", Value: 1},
					&cli.IntFlag{Name: "limit", Usage: "page size (overrides BACKOFFICE_PAGE_SIZE)"},
					&cli.StringFlag{Name: "query", Aliases: []string{"q"}},
				},
				Action: func(c *cli.Context) error {
					if c.IsSet("limit") {
						if err := config.CheckPageSize(c.Int("limit")); err != nil {
							return fmt.Errorf("invalid --limit: %w", err)
						}
						e.cfg.PageSize = c.Int("limit")
					}
					con, err := e.newConsole(name)
					if err != nil {
						return err
					}
					con.SetOutput(io.Discard)
					if err := con.Exec(c.Context, "search "+c.String("query")); err != nil {
						return err
					}
					if status := con.Active().Status(); status.Err != "" {
						return errors.New(status.Err)
					}
					con.SetOutput(e.out)
					if page := c.Int("page"); page > 1 {
						return con.Exec(c.Context, "page "+strconv.Itoa(page))
					}
					return con.Exec(c.Context, "list")
				},
			},
			{
				Name:      "delete",
				Usage:     "delete one record",
				ArgsUsage: "<id> [--confirm]",
				Flags:     []cli.Flag{&cli.BoolFlag{Name: "confirm"}},
				Action: func(c *cli.Context) error {
					// Flags stop at the id, so a trailing --confirm arrives as an argument.
					args := c.Args().Slice()
					confirmed := c.Bool("confirm")
					if len(args) == 2 && console.IsConfirmation(args[1]) {
						confirmed = true
						args = args[:1]
					}
					var id int64
					if len(args) == 1 {
						id, _ = strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
					}
					if id < 1 {
						return fmt.Errorf("usage: backoffice %s delete <id> --confirm", name)
					}
					con, err := e.newConsole(name)
					if err != nil {
						return err
					}
					screen := con.Active()

					ctx := client.WithRequestID(c.Context, uuid.NewString())
					if err := con.Delete(ctx, id, confirmed); err != nil {
						var refused *policy.Error
						if errors.As(err, &refused) {
							return err
						}
						return errors.New(client.UserMessage(err, fmt.Sprintf("Failed to delete the %s. Please try again.", screen.Kind())))
					}
					fmt.Fprintf(e.out, "deleted %s %d\n", screen.Kind(), id)
					return nil
				},
			},
		},
	}
}

func (e *env) mockAPI(c *cli.Context) error {
	addr := e.cfg.MockListenAddr
	if c.IsSet("listen") {
		addr = c.String("listen")
	}

	st := mockapi.NewStore(bcrypt.DefaultCost)
	if err := mockapi.Seed(st); err != nil {
		return err
	}
	srv := mockapi.New(st, mockapi.Options{
		Secret:          []byte(e.cfg.MockJWTSecret),
		RequireAuth:     c.Bool("require-auth"),
		LegacyOrderList: c.Bool("legacy-order-list"),
		Logger:          e.logger,
		Version:         version,
	})
	e.logger.Info().Str("email", mockapi.SeedAdminEmail).Str("password", mockapi.SeedAdminPassword).Msg("seeded staff account")
	return srv.Run(c.Context, addr)
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
