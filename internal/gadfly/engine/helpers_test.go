package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mpavlenko/gadfly/internal/gadfly/lexicon"
)

// fakeClock is a settable Clock so timer behaviour can be tested without
// sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// scriptRand returns scripted values, then safe defaults: Float64 yields 1.0
// (so probability checks of the form "draw < chance" never fire) and IntN
// yields 0.
type scriptRand struct {
	floats []float64
	ints   []int
}

func (r *scriptRand) Float64() float64 {
	if len(r.floats) == 0 {
		return 1.0
	}
	v := r.floats[0]
	r.floats = r.floats[1:]
	return v
}

func (r *scriptRand) IntN(n int) int {
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	if v >= n {
		v = n - 1
	}
	return v
}

type sentMsg struct {
	conv    string
	text    string
	replyTo string
}

// fakeTransport records outbound messages; the next failNext deliveries fail
// without being recorded.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []sentMsg
	failNext int
}

func (f *fakeTransport) Send(ctx context.Context, convID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return errors.New("delivery failed")
	}
	f.sent = append(f.sent, sentMsg{conv: convID, text: text})
	return nil
}

func (f *fakeTransport) Reply(ctx context.Context, convID, eventID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return errors.New("delivery failed")
	}
	f.sent = append(f.sent, sentMsg{conv: convID, text: text, replyTo: eventID})
	return nil
}

func (f *fakeTransport) messages() []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMsg, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakeComposer returns scripted responses; an exhausted script means
// generation failure (nil result).
type fakeComposer struct {
	mu      sync.Mutex
	scripts [][]string
	prompts []string
	modes   []PersonaMode
	crowds  []bool
}

func (f *fakeComposer) Compose(ctx context.Context, convID string, mode PersonaMode, crowd bool, prompt string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.modes = append(f.modes, mode)
	f.crowds = append(f.crowds, crowd)
	if len(f.scripts) == 0 {
		return nil
	}
	out := f.scripts[0]
	f.scripts = f.scripts[1:]
	return out
}

const testLexiconYAML = `
call: ["hey bot"]
conflict: ["idiot"]
defensive: ["not my fault"]
pushback: ["shut up"]
order: ["one at a time"]
seeds: ["so, what is everyone reading these days?"]
greetings: ["morning, all"]
acks: ["fine, going quiet"]
closings: ["anyway."]
calming: "Easy, everyone."
`

func testLexicon(t *testing.T) *lexicon.Set {
	t.Helper()
	set, err := lexicon.Parse([]byte(testLexiconYAML), "gadfly")
	if err != nil {
		t.Fatalf("parse test lexicon: %v", err)
	}
	return set
}

// testSettings are tight enough that scenarios do not need long virtual
// spans. Inter-line pacing is disabled.
func testSettings() Settings {
	return Settings{
		ReplyChance:       0.05,
		ActiveWindow:      2 * time.Minute,
		MuteDuration:      10 * time.Minute,
		SendCooldown:      45 * time.Second,
		BatchWindow:       20 * time.Second,
		MaxBatchItems:     4,
		MemoryCapacity:    10,
		HistoryWindow:     5,
		QueueLimit:        8,
		InterLineDelayMax: -1,
		CrowdThreshold:    3,
		NudgeSilence:      10 * time.Hour,
		NudgeChance:       0.25,
		NudgeHourStart:    10,
		NudgeHourEnd:      23,
		InterjectMinGap:   time.Hour,
		MaxNudgesPerWeek:  2,
		GreetSilence:      20 * time.Hour,
		GreetSchedule:     "* 9-21 * * *",
		DialogTurnsMin:    2,
		DialogTurnsMax:    2,
		DialogMinTurns:    2,
		DialogExitChance:  0.35,
		DialogTTL:         15 * time.Minute,
		IgnoreDuration:    30 * time.Minute,
		DailyMessageCap:   7,
	}
}

type testEngine struct {
	eng       *Engine
	clock     *fakeClock
	gate      *scriptRand
	content   *scriptRand
	transport *fakeTransport
	composer  *fakeComposer
}

func newTestEngine(t *testing.T, settings Settings) *testEngine {
	t.Helper()
	clock := newFakeClock(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	gate := &scriptRand{}
	content := &scriptRand{}
	transport := &fakeTransport{}
	composer := &fakeComposer{}
	eng := New(Options{
		Settings:   settings,
		Lexicon:    testLexicon(t),
		Composer:   composer,
		Transport:  transport,
		Clock:      clock,
		GateRNG:    gate,
		ContentRNG: content,
	})
	return &testEngine{
		eng:       eng,
		clock:     clock,
		gate:      gate,
		content:   content,
		transport: transport,
		composer:  composer,
	}
}

func (te *testEngine) say(conv, user, text string) Decision {
	return te.eng.HandleMessage(context.Background(), Inbound{
		ConvID:      conv,
		UserID:      user,
		DisplayName: user,
		Text:        text,
		EventID:     "$" + user + "-" + text[:min(4, len(text))],
	})
}
