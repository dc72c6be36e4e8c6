package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	auth "github.com/felapi/fel-auth"
	"github.com/felapi/fel-auth/activitymap"
	"github.com/felapi/fel-auth/middleware/ratelimit"
	"github.com/felapi/fel-auth/persistence"
	"github.com/go-extras/cobraflags"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"
)

const (
	addrFlag        = "addr"
	skipMigrateFlag = "skip-migrations"
)

var serveFlags = map[string]cobraflags.Flag{
	addrFlag: &cobraflags.StringFlag{
		Name:  addrFlag,
		Value: "",
		Usage: "Listen address, overrides APP_ADDR",
	},
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  serveCommand,
	}
	cobraflags.RegisterMap(cmd, serveFlags)
	cmd.Flags().Bool(skipMigrateFlag, false, "Do not apply pending migrations on start")
	return cmd
}

func serveCommand(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	log := d.logs.GetLogger("server")

	skip, _ := cmd.Flags().GetBool(skipMigrateFlag)
	if !skip {
		if err := persistence.Migrate(ctx, d.db); err != nil {
			return err
		}
	}

	srv := auth.NewServer(auth.ServerConfig{
		AppName:               d.cfg.App.Name,
		DisableStartupMessage: d.cfg.IsProduction(),
		Logger:                d.logs.GetLogger("http"),
		Middleware: []fiber.Handler{
			recover.New(recover.Config{EnableStackTrace: !d.cfg.IsProduction()}),
			requestid.New(requestid.Config{
				Generator: func() string { return ksuid.New().String() },
			}),
			auth.RequestLogger(d.logs.GetLogger("http")),
		},
	})

	auth.RegisterRoutes(srv, auth.RouteConfig{
		Auth: auth.NewHTTPAuthenticator(d.cfg, d.svc),
		Users: auth.NewAuthController(d.svc,
			auth.WithControllerDebug(!d.cfg.IsProduction()),
			auth.WithCommandTimeout(d.cfg.App.CommandTimeout),
		),
		Admin: auth.NewAdminController(d.svc,
			auth.WithActivityReader(d.feed),
			auth.WithActivityFormatter(activitymap.Formatter()),
		),
		Limiter: newLimiter(d, log),
	})

	addr := serveFlags[addrFlag].GetString()
	if addr == "" {
		addr = d.cfg.App.Addr
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr, "env", d.cfg.App.Env)
		errc <- srv.Serve(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newLimiter uses redis when REDIS_ADDR is set, the in memory limiter
// otherwise.
func newLimiter(d *deps, log auth.Logger) fiber.Handler {
	cfg := ratelimit.Config{
		Max:    d.cfg.RateLimit.Max,
		Window: d.cfg.RateLimit.Window,
		OnError: func(err error) {
			log.Warn("rate limiter unavailable", "error", err)
		},
	}

	if d.cfg.Redis.Addr == "" {
		return ratelimit.New(nil, cfg)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     d.cfg.Redis.Addr,
		Password: d.cfg.Redis.Password,
	})
	return ratelimit.New(rdb, cfg)
}
