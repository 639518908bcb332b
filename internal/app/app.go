package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"stockroute/internal/config"
	"stockroute/internal/db"
	"stockroute/internal/engine"
	"stockroute/internal/migrate"
)

type Options struct {
	Workspace string
	Driver    string
	DSN       string
	JWTSecret string
	Logger    *log.Logger
}

// Env is an opened workspace: its config, database and engine.
type Env struct {
	Conn    *sql.DB
	Dialect db.Dialect
	Config  *config.Config
	Engine  engine.Engine
}

func (e *Env) Close() error {
	if e == nil || e.Conn == nil {
		return nil
	}
	return e.Conn.Close()
}

// Open loads the workspace config (falling back to the built-in default), opens and
// migrates the database and seeds stores and routes when the store table is empty.
func Open(ctx context.Context, opts Options) (*Env, error) {
	dialect, err := db.ParseDialect(opts.Driver)
	if err != nil {
		return nil, err
	}
	if _, err := db.EnsureWorkspace(opts.Workspace); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(opts.Workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace, Dialect: dialect, DSN: opts.DSN})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn, dialect); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, cfg, engine.Options{
		Dialect:   dialect,
		Workspace: opts.Workspace,
		JWTSecret: opts.JWTSecret,
		Logger:    opts.Logger,
	})
	if err := ensureSeeded(ctx, e); err != nil {
		conn.Close()
		return nil, fmt.Errorf("seed: %w", err)
	}
	return &Env{Conn: conn, Dialect: dialect, Config: cfg, Engine: e}, nil
}

func ensureSeeded(ctx context.Context, e engine.Engine) error {
	stores, err := e.ListStores(ctx)
	if err != nil {
		return err
	}
	if len(stores) > 0 {
		return nil
	}
	_, err = e.Seed(ctx)
	return err
}
