package engine

import (
	"testing"
	"time"
)

func TestSettingsZeroValueSelectsDefaults(t *testing.T) {
	s := Settings{}.withDefaults()

	if s.ReplyChance != 0.04 {
		t.Errorf("expected default ReplyChance 0.04, got %v", s.ReplyChance)
	}
	if s.SendCooldown != 45*time.Second {
		t.Errorf("expected default SendCooldown 45s, got %v", s.SendCooldown)
	}
	if s.NudgeHourStart != 10 || s.NudgeHourEnd != 23 {
		t.Errorf("expected default nudge hours 10-23, got %d-%d", s.NudgeHourStart, s.NudgeHourEnd)
	}
	if s.InterLineDelayMax != 1200*time.Millisecond {
		t.Errorf("expected default inter-line delay 1200ms, got %v", s.InterLineDelayMax)
	}
}

func TestSettingsNegativeMeansExplicitZero(t *testing.T) {
	s := Settings{
		ReplyChance:              -1,
		NudgeChance:              -1,
		MorningGreetChance:       -1,
		DialogExitChance:         -1,
		DefensiveModeratorChance: -1,
		NudgeHourStart:           -1,
	}.withDefaults()

	if s.ReplyChance != 0 {
		t.Errorf("expected negative ReplyChance to disable interjections, got %v", s.ReplyChance)
	}
	if s.NudgeChance != 0 {
		t.Errorf("expected negative NudgeChance to disable nudges, got %v", s.NudgeChance)
	}
	if s.MorningGreetChance != 0 {
		t.Errorf("expected negative MorningGreetChance resolved to 0, got %v", s.MorningGreetChance)
	}
	if s.DialogExitChance != 0 {
		t.Errorf("expected negative DialogExitChance resolved to 0, got %v", s.DialogExitChance)
	}
	if s.DefensiveModeratorChance != 0 {
		t.Errorf("expected negative DefensiveModeratorChance resolved to 0, got %v", s.DefensiveModeratorChance)
	}
	if s.NudgeHourStart != 0 {
		t.Errorf("expected negative NudgeHourStart to mean midnight, got %d", s.NudgeHourStart)
	}
}
