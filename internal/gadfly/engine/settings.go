package engine

import "time"

// Settings holds every engine tunable. Zero values are replaced with the
// documented defaults by withDefaults, so a zero Settings is a working
// configuration. Probability fields and NudgeHourStart accept a negative
// value to mean an explicit zero, since zero itself selects the default.
type Settings struct {
	// ReplyChance is the probability that a message outside the active
	// window triggers an auto-interjection. Negative disables interjections.
	// Default: 0.04.
	ReplyChance float64

	// ActiveWindow is how long a call/conflict/defensive message keeps the
	// conversation warmed up. Default: 2m.
	ActiveWindow time.Duration

	// MuteDuration is how long a pushback phrase silences the persona.
	// Default: 10m.
	MuteDuration time.Duration

	// SendCooldown is the minimum spacing between dispatches in one
	// conversation. Default: 45s.
	SendCooldown time.Duration

	// BatchWindow bounds the timestamp spread within one flushed batch.
	// Default: 20s.
	BatchWindow time.Duration

	// MaxBatchItems bounds the number of items per flush. Default: 6.
	MaxBatchItems int

	// MemoryCapacity is the rolling-memory size per conversation.
	// Default: 120.
	MemoryCapacity int

	// HistoryWindow is how many rolling-memory entries are included in the
	// generation prompt. Default: 8.
	HistoryWindow int

	// QueueLimit bounds the pending queue per conversation; the oldest item
	// is dropped on overflow. Default: 256.
	QueueLimit int

	// WorkerTick is the batch-worker interval. Default: 5s.
	WorkerTick time.Duration

	// InterLineDelayMax caps the randomized pause between dispatched lines.
	// Negative disables pacing (used in tests). Default: 1200ms.
	InterLineDelayMax time.Duration

	// DefensiveModeratorChance is the probability that a batch containing a
	// defensive (but no conflict) message is answered in moderator mode.
	// Default: 0.5.
	DefensiveModeratorChance float64

	// CrowdThreshold is the distinct-author count that sets the crowd flag.
	// Default: 3.
	CrowdThreshold int

	// NudgeTick is the silence-nudger interval. Default: 10m.
	NudgeTick time.Duration

	// NudgeSilence is the inactivity span before a nudge is considered.
	// Default: 10h.
	NudgeSilence time.Duration

	// NudgeChance is the probability a due nudge actually fires. Default: 0.25.
	NudgeChance float64

	// NudgeHourStart/NudgeHourEnd bound the local hours in which nudges may
	// fire (start inclusive, end exclusive). A negative start means midnight.
	// Defaults: 10 and 23.
	NudgeHourStart int
	NudgeHourEnd   int

	// InterjectMinGap is the minimum spacing between auto-interjections
	// (probabilistic replies and nudges share the same timestamp).
	// Default: 60m.
	InterjectMinGap time.Duration

	// MaxNudgesPerWeek caps nudges per conversation per rolling week.
	// Default: 4.
	MaxNudgesPerWeek int

	// GreetTick is the daily-greeter interval. Default: 30m.
	GreetTick time.Duration

	// GreetSilence is the inactivity span before a greeting is considered.
	// Default: 20h.
	GreetSilence time.Duration

	// GreetSchedule is a 5-field cron expression describing when greetings
	// are allowed. Default: "* 9-21 * * *".
	GreetSchedule string

	// MorningGreetChance lets a greeting through outside the schedule during
	// early-morning hours (6-9 local). Default: 0.1.
	MorningGreetChance float64

	// DialogTurnsMin/DialogTurnsMax bound the randomly drawn turn budget of
	// a dialog session. Defaults: 2 and 5.
	DialogTurnsMin int
	DialogTurnsMax int

	// DialogMinTurns is how many turns must be consumed before the early-exit
	// probability applies. Default: 2.
	DialogMinTurns int

	// DialogExitChance is the per-turn early-exit probability once
	// DialogMinTurns is reached. Default: 0.35.
	DialogExitChance float64

	// DialogTTL expires an idle dialog session. Default: 15m.
	DialogTTL time.Duration

	// IgnoreDuration is how long a dialog partner is ignored after the
	// session ends. Default: 30m.
	IgnoreDuration time.Duration

	// DailyMessageCap bounds persona messages per conversation per UTC day.
	// Default: 7.
	DailyMessageCap int
}

// withDefaults returns a copy of s with zero fields replaced by defaults.
func (s Settings) withDefaults() Settings {
	s.ReplyChance = chanceOr(s.ReplyChance, 0.04)
	if s.ActiveWindow <= 0 {
		s.ActiveWindow = 2 * time.Minute
	}
	if s.MuteDuration <= 0 {
		s.MuteDuration = 10 * time.Minute
	}
	if s.SendCooldown <= 0 {
		s.SendCooldown = 45 * time.Second
	}
	if s.BatchWindow <= 0 {
		s.BatchWindow = 20 * time.Second
	}
	if s.MaxBatchItems <= 0 {
		s.MaxBatchItems = 6
	}
	if s.MemoryCapacity <= 0 {
		s.MemoryCapacity = 120
	}
	if s.HistoryWindow <= 0 {
		s.HistoryWindow = 8
	}
	if s.QueueLimit <= 0 {
		s.QueueLimit = 256
	}
	if s.WorkerTick <= 0 {
		s.WorkerTick = 5 * time.Second
	}
	if s.InterLineDelayMax == 0 {
		s.InterLineDelayMax = 1200 * time.Millisecond
	}
	s.DefensiveModeratorChance = chanceOr(s.DefensiveModeratorChance, 0.5)
	if s.CrowdThreshold <= 0 {
		s.CrowdThreshold = 3
	}
	if s.NudgeTick <= 0 {
		s.NudgeTick = 10 * time.Minute
	}
	if s.NudgeSilence <= 0 {
		s.NudgeSilence = 10 * time.Hour
	}
	s.NudgeChance = chanceOr(s.NudgeChance, 0.25)
	if s.NudgeHourStart == 0 {
		s.NudgeHourStart = 10
	} else if s.NudgeHourStart < 0 {
		s.NudgeHourStart = 0
	}
	if s.NudgeHourEnd <= 0 {
		s.NudgeHourEnd = 23
	}
	if s.InterjectMinGap <= 0 {
		s.InterjectMinGap = time.Hour
	}
	if s.MaxNudgesPerWeek <= 0 {
		s.MaxNudgesPerWeek = 4
	}
	if s.GreetTick <= 0 {
		s.GreetTick = 30 * time.Minute
	}
	if s.GreetSilence <= 0 {
		s.GreetSilence = 20 * time.Hour
	}
	if s.GreetSchedule == "" {
		s.GreetSchedule = "* 9-21 * * *"
	}
	s.MorningGreetChance = chanceOr(s.MorningGreetChance, 0.1)
	if s.DialogTurnsMin <= 0 {
		s.DialogTurnsMin = 2
	}
	if s.DialogTurnsMax < s.DialogTurnsMin {
		s.DialogTurnsMax = s.DialogTurnsMin + 3
	}
	if s.DialogMinTurns <= 0 {
		s.DialogMinTurns = 2
	}
	s.DialogExitChance = chanceOr(s.DialogExitChance, 0.35)
	if s.DialogTTL <= 0 {
		s.DialogTTL = 15 * time.Minute
	}
	if s.IgnoreDuration <= 0 {
		s.IgnoreDuration = 30 * time.Minute
	}
	if s.DailyMessageCap <= 0 {
		s.DailyMessageCap = 7
	}
	return s
}

// chanceOr resolves a probability field: zero selects the default, negative
// means an explicit zero.
func chanceOr(v, def float64) float64 {
	switch {
	case v == 0:
		return def
	case v < 0:
		return 0
	}
	return v
}
