package main

import (
	"context"
	"fmt"
	"time"

	auth "github.com/felapi/fel-auth"
	"github.com/felapi/fel-auth/config"
	"github.com/felapi/fel-auth/email"
	"github.com/felapi/fel-auth/logging"
	"github.com/felapi/fel-auth/persistence"
	"github.com/uptrace/bun"
)

// deps holds everything a command needs once configuration is loaded
type deps struct {
	cfg  *config.Config
	logs logging.Provider
	db   *bun.DB
	svc  auth.Services
	feed *auth.ActivityFeed
}

func loadConfig() (*config.Config, error) {
	return config.Load(config.Options{
		EnvFiles: []string{globalFlags[envFlag].GetString()},
		File:     globalFlags[configFlag].GetString(),
	})
}

func bootstrap(ctx context.Context) (*deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logs, err := logging.New(logging.Options{
		Driver: cfg.Log.Driver,
		Level:  cfg.Log.Level,
		Name:   "fel",
		File:   cfg.Log.File,
		MaxAge: time.Duration(cfg.Log.MaxAge) * 24 * time.Hour,
	})
	if err != nil {
		return nil, err
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	registry := auth.DefaultRoleRegistry()
	if cfg.Auth.RolesFile != "" {
		if registry, err = auth.LoadRoleRegistryFile(cfg.Auth.RolesFile); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	tokens, err := auth.NewTokenServiceFromConfig(cfg, auth.WithTokenLogger(logs.GetLogger("tokens")))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	feed := auth.NewActivityFeed(auth.DefaultActivityFeedSize)
	logger := logs.GetLogger("auth")

	svc := auth.Services{
		Users: auth.NewUsersRepository(db, auth.WithDeterministicUUID(cfg.GetDeterministicUUID())),
		Machine: auth.NewAccountStateMachine(
			auth.WithVerificationTTL(time.Duration(cfg.GetVerificationTTL()) * time.Second),
		),
		Tokens:     tokens,
		Mailer:     newMailer(cfg, logs.GetLogger("mail")),
		Passwords:  auth.NewBcryptHasher(auth.DefaultHashCost),
		Authorizer: auth.NewAuthorizer(registry),
		Activity: auth.MultiActivitySink{
			feed,
			auth.ActivitySinkFunc(func(_ context.Context, e auth.ActivityEvent) error {
				logs.GetLogger("activity").Info(string(e.EventType), "user_id", e.UserID, "actor", e.Actor.ID)
				return nil
			}),
		},
		Logger: logger,
	}

	return &deps{cfg: cfg, logs: logs, db: db, svc: svc, feed: feed}, nil
}

func (d *deps) Close() {
	_ = d.db.Close()
	_ = d.logs.Sync()
}

func openDB(ctx context.Context, cfg *config.Config) (*bun.DB, error) {
	db, err := persistence.Open(ctx, persistence.Options{
		Driver:   cfg.DB.Driver,
		DSN:      cfg.DB.DSN,
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		Database: cfg.DB.Database,
		Username: cfg.DB.Username,
		Password: cfg.DB.Password,
		Debug:    cfg.DB.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func newMailer(cfg *config.Config, logger auth.Logger) auth.Mailer {
	mailCfg := email.Config{
		AppName:         cfg.App.Name,
		AppURL:          cfg.App.URL,
		FromAddress:     cfg.Mail.FromAddress,
		FromName:        cfg.Mail.FromName,
		VerificationTTL: time.Duration(cfg.GetVerificationTTL()) * time.Second,
	}

	if cfg.Mail.Driver != "smtp" {
		return email.NewLogMailer(logger, mailCfg)
	}

	return email.NewSMTPMailer(email.SMTPConfig{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
	}, mailCfg)
}
