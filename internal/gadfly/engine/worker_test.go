package engine

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestFlushDispatchesThreadedReply(t *testing.T) {
	te := newTestEngine(t, testSettings())
	te.composer.scripts = [][]string{{"depends who's asking", "why do you want to know?"}}

	te.say("!room:test", "@alice:test", "hey bot, thoughts?")
	te.clock.Advance(30 * time.Second)
	te.eng.FlushPending(context.Background())

	msgs := te.transport.messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 dispatched lines, got %d", len(msgs))
	}
	if msgs[0].replyTo == "" {
		t.Error("expected first line to be threaded to the call event")
	}
	if msgs[1].replyTo != "" {
		t.Error("expected follow-up lines to be plain sends")
	}

	st := te.eng.Store().Get("!room:test")
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.Queue.Len() != 0 {
		t.Errorf("expected queue drained, got %d items", st.Queue.Len())
	}
	if !st.LastSent.Equal(te.clock.Now()) {
		t.Errorf("expected LastSent stamped, got %v", st.LastSent)
	}
}

func TestFlushRespectsSendCooldown(t *testing.T) {
	te := newTestEngine(t, testSettings())
	te.composer.scripts = [][]string{{"first"}, {"second"}}

	te.say("!room:test", "@alice:test", "hey bot")
	te.eng.FlushPending(context.Background())
	if got := len(te.transport.messages()); got != 1 {
		t.Fatalf("expected 1 message after first flush, got %d", got)
	}

	// New item lands immediately; the cooldown holds it back.
	te.say("!room:test", "@bob:test", "hey bot too")
	te.eng.FlushPending(context.Background())
	if got := len(te.transport.messages()); got != 1 {
		t.Fatalf("expected cooldown to block second flush, got %d messages", got)
	}

	te.clock.Advance(46 * time.Second)
	te.eng.FlushPending(context.Background())
	if got := len(te.transport.messages()); got != 2 {
		t.Fatalf("expected second flush after cooldown, got %d messages", got)
	}
}

func TestFlushAbandonedOnGenerationFailure(t *testing.T) {
	te := newTestEngine(t, testSettings())
	// No scripts: composer returns nil, simulating provider failure.

	te.say("!room:test", "@alice:test", "hey bot")
	te.eng.FlushPending(context.Background())

	if got := len(te.transport.messages()); got != 0 {
		t.Fatalf("expected nothing dispatched, got %d messages", got)
	}
	st := te.eng.Store().Get("!room:test")
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.Queue.Len() != 0 {
		t.Errorf("expected failed batch to be consumed, got %d items", st.Queue.Len())
	}
	if !st.LastSent.IsZero() {
		t.Errorf("expected LastSent untouched on abandon, got %v", st.LastSent)
	}
}

func TestDispatchContinuesPastFailedLine(t *testing.T) {
	te := newTestEngine(t, testSettings())
	te.composer.scripts = [][]string{{"one", "two", "three"}}
	te.transport.failNext = 1

	te.say("!room:test", "@alice:test", "hey bot, thoughts?")
	te.eng.FlushPending(context.Background())

	msgs := te.transport.messages()
	if len(msgs) != 2 {
		t.Fatalf("expected the lines after the failed one to deliver, got %d messages", len(msgs))
	}
	if msgs[0].text != "two" || msgs[1].text != "three" {
		t.Errorf("expected remaining lines in order, got %v", msgs)
	}
}

func TestFlushUsesModeratorModeForConflict(t *testing.T) {
	te := newTestEngine(t, testSettings())
	te.composer.scripts = [][]string{{"let's all take a breath"}}

	te.say("!room:test", "@alice:test", "you idiot")
	te.eng.FlushPending(context.Background())

	if len(te.composer.modes) != 1 {
		t.Fatalf("expected 1 compose call, got %d", len(te.composer.modes))
	}
	if te.composer.modes[0] != ModeModerator {
		t.Errorf("expected moderator mode, got %q", te.composer.modes[0])
	}
}

func TestDefensiveEscalatesProbabilistically(t *testing.T) {
	settings := testSettings()
	settings.DefensiveModeratorChance = 0.5
	te := newTestEngine(t, settings)
	te.composer.scripts = [][]string{{"a"}, {"b"}}
	te.gate.floats = []float64{0.4, 0.9}

	te.say("!room:test", "@alice:test", "it's not my fault, honestly")
	te.eng.FlushPending(context.Background())
	te.clock.Advance(time.Minute)
	te.say("!room:test", "@alice:test", "really, not my fault")
	te.eng.FlushPending(context.Background())

	if len(te.composer.modes) != 2 {
		t.Fatalf("expected 2 compose calls, got %d", len(te.composer.modes))
	}
	if te.composer.modes[0] != ModeModerator {
		t.Errorf("expected first draw (0.4 < 0.5) to escalate, got %q", te.composer.modes[0])
	}
	if te.composer.modes[1] != ModeConversational {
		t.Errorf("expected second draw (0.9) to stay conversational, got %q", te.composer.modes[1])
	}
}

func TestCrowdFlagCountsDistinctAuthors(t *testing.T) {
	te := newTestEngine(t, testSettings())
	te.composer.scripts = [][]string{{"easy"}}

	te.say("!room:test", "@alice:test", "idiot")
	te.say("!room:test", "@bob:test", "who are you calling idiot")
	te.say("!room:test", "@carol:test", "both of you, idiot behaviour")
	te.eng.FlushPending(context.Background())

	if len(te.composer.crowds) != 1 || !te.composer.crowds[0] {
		t.Fatalf("expected crowd flag set, got %v", te.composer.crowds)
	}
}

func TestPromptCarriesHistoryAndBatch(t *testing.T) {
	te := newTestEngine(t, testSettings())
	te.composer.scripts = [][]string{{"hm"}}

	te.say("!room:test", "@alice:test", "we were talking about cheese")
	te.clock.Advance(30 * time.Second)
	te.say("!room:test", "@bob:test", "hey bot, cheddar or brie?")
	te.eng.FlushPending(context.Background())

	if len(te.composer.prompts) != 1 {
		t.Fatalf("expected 1 prompt, got %d", len(te.composer.prompts))
	}
	prompt := te.composer.prompts[0]
	if !strings.Contains(prompt, "we were talking about cheese") {
		t.Errorf("expected rolling-memory context in prompt:\n%s", prompt)
	}
	if !strings.Contains(prompt, "cheddar or brie") {
		t.Errorf("expected batch text in prompt:\n%s", prompt)
	}
}

func TestDialogClosesAfterTurnBudget(t *testing.T) {
	te := newTestEngine(t, testSettings()) // DialogTurnsMin == DialogTurnsMax == 2
	te.composer.scripts = [][]string{{"turn one"}, {"turn two"}}

	te.say("!room:test", "@alice:test", "hey bot, got a minute?")
	te.eng.FlushPending(context.Background())

	te.clock.Advance(time.Minute)
	te.say("!room:test", "@alice:test", "hey bot, and another thing")
	te.eng.FlushPending(context.Background())

	msgs := te.transport.messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 2 replies + closing remark, got %d messages", len(msgs))
	}
	if msgs[2].text != "anyway." {
		t.Errorf("expected canned closing remark, got %q", msgs[2].text)
	}

	st := te.eng.Store().Get("!room:test")
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.Dialog != nil {
		t.Error("expected dialog session destroyed")
	}
	if _, ok := st.Ignored["@alice:test"]; !ok {
		t.Error("expected dialog partner to be ignored after close")
	}
}

func TestDailyCapBlocksFlush(t *testing.T) {
	settings := testSettings()
	settings.DailyMessageCap = 1
	te := newTestEngine(t, settings)
	te.composer.scripts = [][]string{{"only one today"}, {"should never appear"}}

	te.say("!room:test", "@alice:test", "hey bot")
	te.eng.FlushPending(context.Background())
	te.clock.Advance(time.Minute)
	te.say("!room:test", "@alice:test", "hey bot again")
	te.eng.FlushPending(context.Background())

	if got := len(te.transport.messages()); got != 1 {
		t.Fatalf("expected daily cap to hold at 1 message, got %d", got)
	}

	// The cap resets on UTC day rollover.
	te.clock.Advance(24 * time.Hour)
	te.eng.FlushPending(context.Background())
	if got := len(te.transport.messages()); got != 2 {
		t.Fatalf("expected flush after rollover, got %d messages", got)
	}
}

func TestBatchBoundedByMaxItems(t *testing.T) {
	settings := testSettings()
	settings.MaxBatchItems = 2
	te := newTestEngine(t, settings)
	te.composer.scripts = [][]string{{"ok"}}

	te.say("!room:test", "@alice:test", "idiot")
	te.say("!room:test", "@bob:test", "idiot yourself")
	te.say("!room:test", "@carol:test", "idiots, all")
	te.eng.FlushPending(context.Background())

	st := te.eng.Store().Get("!room:test")
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.Queue.Len() != 1 {
		t.Errorf("expected 1 item left after bounded drain, got %d", st.Queue.Len())
	}
}

func TestFreshStoreIsEmpty(t *testing.T) {
	te := newTestEngine(t, testSettings())
	if te.eng.Store().Len() != 0 {
		t.Fatalf("expected empty store, got %d conversations", te.eng.Store().Len())
	}
	if te.eng.Store().Get("!room:test") != nil {
		t.Fatal("expected unseen conversation to be nil")
	}
	// Unknown conversations report enabled.
	if !te.eng.Status("!room:test") {
		t.Error("expected unseen conversation to report enabled")
	}
}
