// Package app assembles the Gadfly bot: database, Matrix client, lexicon,
// composer and engine, plus the command fan-in.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"maunium.net/go/mautrix/event"

	"github.com/mpavlenko/gadfly/common/retry"
	"github.com/mpavlenko/gadfly/internal/gadfly/commands"
	"github.com/mpavlenko/gadfly/internal/gadfly/compose"
	"github.com/mpavlenko/gadfly/internal/gadfly/engine"
	"github.com/mpavlenko/gadfly/internal/gadfly/lexicon"
	"github.com/mpavlenko/gadfly/internal/gadfly/llm"
	"github.com/mpavlenko/gadfly/internal/gadfly/matrix"
	"github.com/mpavlenko/gadfly/internal/gadfly/store"
)

// Config holds application configuration
type Config struct {
	DatabasePath string
	Matrix       matrix.Config
	Engine       engine.Settings
	LLM          llm.Config
	Compose      compose.Config

	// LexiconPath points at a YAML lexicon file. Empty uses the embedded
	// default lists.
	LexiconPath string

	// BotHandle is the conversational name folded into the call markers so
	// "gadfly, what do you think" registers as a direct address. Defaults to
	// the localpart of the Matrix user ID.
	BotHandle string

	// CommandPrefix is the control-command prefix. Defaults to "/gadfly".
	CommandPrefix string
}

// App is the assembled bot.
type App struct {
	config *Config
	store  *store.Store
	matrix *matrix.Client
	engine *engine.Engine
	router *commands.Router

	cancel context.CancelFunc

	namesMu sync.Mutex
	names   map[string]string
}

// New creates the application from config.
func New(config *Config) (*App, error) {
	slog.Info("opening database", "path", config.DatabasePath)
	db, err := store.New(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Inject the DB so the client can persist the sync token across restarts.
	matrixCfg := config.Matrix
	matrixCfg.DB = db.DB()
	slog.Info("connecting to Matrix", "homeserver", matrixCfg.Homeserver)
	matrixClient, err := matrix.New(&matrixCfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize Matrix client: %w", err)
	}

	handle := config.BotHandle
	if handle == "" {
		handle = localpart(config.Matrix.UserID)
	}
	lex, err := lexicon.Load(config.LexiconPath, handle)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load lexicon: %w", err)
	}
	slog.Info("lexicon ready", "path", orDefault(config.LexiconPath, "(embedded default)"), "handle", handle)

	provider := llm.New(config.LLM)
	contentRNG := engine.NewRand(uint64(time.Now().UnixNano()))
	composer := compose.New(config.Compose, provider, lex, contentRNG)

	app := &App{
		config: config,
		store:  db,
		matrix: matrixClient,
		names:  make(map[string]string),
	}

	app.engine = engine.New(engine.Options{
		Settings:   config.Engine,
		Lexicon:    lex,
		Composer:   &typingComposer{inner: composer, client: matrixClient},
		Transport:  matrixClient,
		ContentRNG: contentRNG,
	})

	prefix := config.CommandPrefix
	if prefix == "" {
		prefix = "/gadfly"
	}
	router := commands.NewRouter(prefix)
	handlers := commands.NewHandlers(app.engine, matrixClient)
	router.Register("help", handlers.HandleHelp)
	router.Register("version", handlers.HandleVersion)
	router.Register("status", handlers.HandleStatus)
	router.Register("on", handlers.HandleOn)
	router.Register("off", handlers.HandleOff)
	app.router = router

	return app, nil
}

// Run starts the bot and blocks until an interrupt signal.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	defer cancel()

	// Fail fast on bad credentials, but ride out a homeserver that is still
	// coming up next to us.
	if err := retry.Do(ctx, retry.DefaultConfig, func() error {
		return a.matrix.Probe(ctx)
	}); err != nil {
		return fmt.Errorf("credential probe failed: %w", err)
	}

	slog.Info("starting Matrix sync")
	if err := a.matrix.Start(ctx, a.handleMessage); err != nil {
		return fmt.Errorf("failed to start Matrix client: %w", err)
	}

	go a.engine.Run(ctx)

	slog.Info("gadfly is running; press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	return nil
}

// Stop stops the application.
func (a *App) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	slog.Info("stopping Matrix client")
	a.matrix.Stop()

	slog.Info("closing database")
	a.store.Close()
}

// handleMessage fans an inbound Matrix message to the command router or the
// engagement engine.
func (a *App) handleMessage(ctx context.Context, evt *event.Event) {
	msgContent := evt.Content.AsMessage()
	if msgContent == nil {
		return
	}
	text := msgContent.Body
	roomID := evt.RoomID.String()

	response, err := a.router.Route(ctx, text, evt)
	if err == nil {
		if response != "" {
			if err := a.matrix.SendNotice(ctx, roomID, response); err != nil {
				slog.Error("failed to send command response", "room", roomID, "err", err)
			}
		}
		return
	}
	if !errors.Is(err, commands.ErrNotACommand) {
		// A prefixed command that errored.
		if err2 := a.matrix.Reply(ctx, roomID, evt.ID.String(), fmt.Sprintf("Error: %s", err)); err2 != nil {
			slog.Error("failed to send command error", "room", roomID, "err", err2)
		}
		return
	}

	// Ordinary chat message.
	a.engine.HandleMessage(ctx, engine.Inbound{
		ConvID:      roomID,
		UserID:      evt.Sender.String(),
		DisplayName: a.displayName(ctx, evt.Sender.String()),
		Text:        text,
		EventID:     evt.ID.String(),
	})
}

// displayName resolves and caches a sender's display name. Stale entries are
// acceptable; the name only flavors prompts and memory lines.
func (a *App) displayName(ctx context.Context, userID string) string {
	a.namesMu.Lock()
	name, ok := a.names[userID]
	a.namesMu.Unlock()
	if ok {
		return name
	}

	name = a.matrix.GetDisplayName(ctx, userID)
	a.namesMu.Lock()
	a.names[userID] = name
	a.namesMu.Unlock()
	return name
}

// typingComposer shows the typing indicator while a response is being
// generated, so the persona's multi-second pause reads as typing rather than
// lag.
type typingComposer struct {
	inner  engine.Composer
	client *matrix.Client
}

func (t *typingComposer) Compose(ctx context.Context, convID string, mode engine.PersonaMode, crowd bool, prompt string) []string {
	// Best effort: typing failures never block generation.
	_ = t.client.SetTyping(ctx, convID, true, 15*time.Second)
	defer func() { _ = t.client.SetTyping(ctx, convID, false, 0) }()
	return t.inner.Compose(ctx, convID, mode, crowd, prompt)
}

func localpart(userID string) string {
	s := strings.TrimPrefix(userID, "@")
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	return s
}

// orDefault returns s if non-empty, otherwise fallback.
func orDefault(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
