// Package engine implements the engagement and rate-control core of the
// Gadfly persona: the per-conversation state machine, the pending queue and
// batch worker, and the silence-nudge and daily-greeting background
// processes. The engine consumes its collaborators (transport, composer,
// clock, RNG) as interfaces and never performs natural-language work beyond
// lexicon matching.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/mpavlenko/gadfly/internal/gadfly/lexicon"
)

// PersonaMode selects the response style for a flush.
type PersonaMode string

const (
	// ModeConversational is the default engagement style.
	ModeConversational PersonaMode = "conversational"
	// ModeModerator is the de-escalation style used when a batch contains
	// conflict (or, probabilistically, defensive) messages.
	ModeModerator PersonaMode = "moderator"
)

// Transport is the outbound side of the chat binding the engine consumes.
type Transport interface {
	// Send posts text to a conversation.
	Send(ctx context.Context, convID, text string) error
	// Reply posts text threaded to a specific inbound event.
	Reply(ctx context.Context, convID, eventID, text string) error
}

// Composer turns a persona mode and prompt into dispatchable lines for a
// conversation. An empty result means the flush should be abandoned silently.
type Composer interface {
	Compose(ctx context.Context, convID string, mode PersonaMode, crowd bool, prompt string) []string
}

// Inbound is one received chat message.
type Inbound struct {
	ConvID      string
	UserID      string
	DisplayName string
	Text        string
	EventID     string
}

// Options wires an Engine. Settings, Clock and the RNGs receive defaults
// when zero; Lexicon, Composer and Transport are required.
type Options struct {
	Settings   Settings
	Lexicon    *lexicon.Set
	Composer   Composer
	Transport  Transport
	Clock      Clock
	GateRNG    Rand
	ContentRNG Rand
}

// Engine is the engagement core. Safe for concurrent use: the store hands
// out per-conversation locks, and all I/O happens outside them.
type Engine struct {
	cfg        Settings
	store      *Store
	lex        *lexicon.Set
	composer   Composer
	transport  Transport
	clock      Clock
	gateRNG    Rand
	contentRNG Rand
	daily      *DailyBudget
	nudges     *WeeklyBudget
}

// New creates an Engine from opts.
func New(opts Options) *Engine {
	cfg := opts.Settings.withDefaults()
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock()
	}
	gateRNG := opts.GateRNG
	if gateRNG == nil {
		gateRNG = NewRand(uint64(time.Now().UnixNano()))
	}
	contentRNG := opts.ContentRNG
	if contentRNG == nil {
		contentRNG = NewRand(uint64(time.Now().UnixNano()) + 1)
	}
	return &Engine{
		cfg:        cfg,
		store:      NewStore(cfg),
		lex:        opts.Lexicon,
		composer:   opts.Composer,
		transport:  opts.Transport,
		clock:      clock,
		gateRNG:    gateRNG,
		contentRNG: contentRNG,
		daily:      NewDailyBudget(cfg.DailyMessageCap),
		nudges:     NewWeeklyBudget(cfg.MaxNudgesPerWeek),
	}
}

// Store exposes the conversation store for the control surface and tests.
func (e *Engine) Store() *Store { return e.store }

// Run drives the three periodic processes until ctx is cancelled. Inbound
// messages are fed separately through HandleMessage by the transport layer.
func (e *Engine) Run(ctx context.Context) {
	slog.Info("engine running",
		"worker_tick", e.cfg.WorkerTick,
		"nudge_tick", e.cfg.NudgeTick,
		"greet_tick", e.cfg.GreetTick)

	worker := time.NewTicker(e.cfg.WorkerTick)
	nudge := time.NewTicker(e.cfg.NudgeTick)
	greet := time.NewTicker(e.cfg.GreetTick)
	defer worker.Stop()
	defer nudge.Stop()
	defer greet.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine stopped")
			return
		case <-worker.C:
			e.FlushPending(ctx)
		case <-nudge.C:
			e.RunNudgeCheck(ctx)
		case <-greet.C:
			e.RunGreetCheck(ctx)
		}
	}
}

// Enable turns the persona on for a conversation.
func (e *Engine) Enable(convID string) {
	st := e.store.GetOrCreate(convID)
	st.mu.Lock()
	st.Enabled = true
	st.mu.Unlock()
	slog.Info("conversation enabled", "conv", convID)
}

// Disable turns the persona off for a conversation. The pending queue is
// cleared so a later re-enable does not flush a stale burst; memory and
// timers are kept so mute/ignore stay honest across a quick off/on toggle.
func (e *Engine) Disable(convID string) {
	st := e.store.GetOrCreate(convID)
	st.mu.Lock()
	st.Enabled = false
	st.Queue.Clear()
	st.mu.Unlock()
	slog.Info("conversation disabled", "conv", convID)
}

// Status reports whether the persona is enabled for a conversation.
// Conversations never seen before report enabled (they are created enabled
// on first message).
func (e *Engine) Status(convID string) bool {
	st := e.store.Get(convID)
	if st == nil {
		return true
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.Enabled
}
