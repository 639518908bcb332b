package engine

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"stockroute/internal/config"
	"stockroute/internal/db"
	"stockroute/internal/distribution"
	"stockroute/internal/engine/auth"
	"stockroute/internal/events"
	"stockroute/internal/ingest"
	"stockroute/internal/repo"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrTooLarge     = errors.New("file too large")
	ErrNoValidRows  = errors.New("the file does not contain valid data")
)

// NoValidRowsError carries the rejected rows of a file without a single valid line.
type NoValidRowsError struct {
	ParseErrors []ingest.ParseError
}

func (e *NoValidRowsError) Error() string {
	return fmt.Sprintf("%s (%d rejected rows)", ErrNoValidRows.Error(), len(e.ParseErrors))
}

func (e *NoValidRowsError) Unwrap() error { return ErrNoValidRows }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Tokens    auth.Tokens
	Workspace string
	Logger    *log.Logger
	Now       func() time.Time
}

type Options struct {
	Dialect   db.Dialect
	Workspace string
	JWTSecret string
	Logger    *log.Logger
}

func New(conn *sql.DB, cfg *config.Config, opts Options) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:        conn,
		Repo:      repo.Repo{DB: conn, Dialect: opts.Dialect},
		Events:    events.Writer{DB: conn, Dialect: opts.Dialect},
		Config:    cfg,
		Tokens:    auth.Tokens{Secret: opts.JWTSecret, TTL: cfg.Auth.TokenTTL},
		Workspace: opts.Workspace,
		Logger:    opts.Logger,
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

func (e Engine) events() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

func (e Engine) tokens() auth.Tokens {
	t := e.Tokens
	if t.Now == nil {
		t.Now = e.now
	}
	return t
}

// Distributor wires the distribution pass to the store and route tables.
func (e Engine) Distributor() distribution.Distributor {
	return distribution.Distributor{
		Routes:                        repo.RouteResolver{Repo: e.Repo},
		Directory:                     repo.StoreDirectory{Repo: e.Repo},
		Warehouses:                    e.Config.Warehouses,
		Composer:                      e.Config.Composer(),
		Logger:                        e.logger(),
		KeepPlaceholdersOnLookupError: e.Config.Distribution.KeepPlaceholdersOnLookupError,
	}
}

// UserActor is the actor id recorded in events for a user.
func UserActor(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}
