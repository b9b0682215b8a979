// Package compose turns raw model completions into the short, multi-line
// messages the persona actually posts. The model is asked for substance; the
// shaping — line splitting, terse-biased line budgets, crowd calming, the
// occasional self-ironic tail — happens here, deterministically except where
// the injected RNG is consulted.
package compose

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mpavlenko/gadfly/common/trace"
	"github.com/mpavlenko/gadfly/internal/gadfly/engine"
	"github.com/mpavlenko/gadfly/internal/gadfly/lexicon"
	"github.com/mpavlenko/gadfly/internal/gadfly/llm"
)

const (
	conversationalProfile = `You are Gadfly, a dry, curious regular in a group chat. You needle,
ask pointed questions, and keep replies short and informal. Never mention being a bot or an
assistant. Answer in at most a few short lines, one thought per line.`

	moderatorProfile = `You are Gadfly, a group-chat regular stepping in to cool an argument.
Be calm and even-handed, lower the temperature, do not take sides, and keep it brief. Never
mention being a bot or an assistant. Answer in at most a few short lines.`
)

// Config tunes the composer. Zero values take the documented defaults.
type Config struct {
	// MaxLines caps the lines of one response. Default: 3.
	MaxLines int
	// MaxLineChars truncates overlong lines. Default: 220.
	MaxLineChars int
	// SelfIronyChance appends a canned self-deprecating tail. Negative
	// disables the tail entirely. Default: 0.05.
	SelfIronyChance float64
}

func (c Config) withDefaults() Config {
	if c.MaxLines <= 0 {
		c.MaxLines = 3
	}
	if c.MaxLineChars <= 0 {
		c.MaxLineChars = 220
	}
	if c.SelfIronyChance == 0 {
		c.SelfIronyChance = 0.05
	} else if c.SelfIronyChance < 0 {
		c.SelfIronyChance = 0
	}
	return c
}

// Composer implements engine.Composer on top of an llm.Provider.
type Composer struct {
	cfg      Config
	provider llm.Provider
	lex      *lexicon.Set
	rng      engine.Rand
}

// New creates a Composer. rng is the content RNG shared with the engine.
func New(cfg Config, provider llm.Provider, lex *lexicon.Set, rng engine.Rand) *Composer {
	return &Composer{cfg: cfg.withDefaults(), provider: provider, lex: lex, rng: rng}
}

// Compose generates and shapes one response. An empty slice means the caller
// should abandon the flush; generation failures are logged here, not
// surfaced, because the persona's contract is "say something or stay quiet".
func (c *Composer) Compose(ctx context.Context, convID string, mode engine.PersonaMode, crowd bool, prompt string) []string {
	profile := conversationalProfile
	if mode == engine.ModeModerator {
		profile = moderatorProfile
	}

	raw, err := c.provider.Generate(ctx, profile, prompt)
	if err != nil {
		slog.Warn("generation failed", "mode", string(mode), "err", err,
			"trace_id", trace.FromContext(ctx))
		return nil
	}

	lines := splitLines(raw)
	if len(lines) == 0 {
		return nil
	}
	lines = c.clampCount(lines)
	for i, line := range lines {
		lines[i] = truncate(line, c.cfg.MaxLineChars)
	}

	if crowd && !anyOrderMarker(c.lex, lines) && c.lex.Calming != "" {
		lines = append([]string{c.lex.Calming}, lines...)
	}

	if len(c.lex.Irony) > 0 && c.cfg.SelfIronyChance > 0 && c.rng.Float64() < c.cfg.SelfIronyChance {
		lines = append(lines, c.lex.Irony[c.rng.IntN(len(c.lex.Irony))])
	}

	return lines
}

// splitLines breaks a completion into clean lines. A single long block is
// re-split on sentence boundaries so the terse line budget still has
// something to choose from.
func splitLines(raw string) []string {
	var lines []string
	for _, l := range strings.Split(raw, "\n") {
		if t := strings.TrimSpace(l); t != "" {
			lines = append(lines, t)
		}
	}
	if len(lines) == 1 && len(lines[0]) > 160 {
		lines = splitSentences(lines[0])
	}
	return lines
}

func splitSentences(block string) []string {
	var out []string
	start := 0
	for i, r := range block {
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(block[start : i+1]); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(block[start:]); s != "" {
		out = append(out, s)
	}
	if len(out) == 0 {
		return []string{block}
	}
	return out
}

// clampCount draws a terse-biased line budget: one line is most likely, the
// configured maximum least. The persona should feel laconic even when the
// model rambles.
func (c *Composer) clampCount(lines []string) []string {
	max := c.cfg.MaxLines
	if len(lines) < max {
		max = len(lines)
	}
	if max <= 1 {
		return lines[:1]
	}
	// Weight line count n by (max-n+1): for max=3 the draw is 3:2:1 in favor
	// of shorter answers.
	total := max * (max + 1) / 2
	draw := c.rng.IntN(total)
	n := 1
	for acc := max; draw >= acc && n < max; n++ {
		draw -= acc
		acc--
	}
	return lines[:n]
}

// truncate caps a line at limit characters, not bytes: slicing by byte index
// would cut multi-byte runes in half and miscount non-ASCII text. The cut
// prefers a word boundary in the back half of the line.
func truncate(line string, limit int) string {
	runes := []rune(line)
	if len(runes) <= limit {
		return line
	}
	cut := runes[:limit]
	space := -1
	for i := len(cut) - 1; i >= 0; i-- {
		if cut[i] == ' ' {
			space = i
			break
		}
	}
	if space > limit/2 {
		cut = cut[:space]
	}
	return string(cut) + "…"
}

func anyOrderMarker(lex *lexicon.Set, lines []string) bool {
	for _, l := range lines {
		if lex.HasOrderMarker(l) {
			return true
		}
	}
	return false
}
