package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultPolicyValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}
}

func TestTierForScore(t *testing.T) {
	p := Default().Scoring

	cases := []struct {
		score int
		want  Tier
	}{
		{100, TierHot},
		{80, TierHot},
		{79, TierWarm},
		{60, TierWarm},
		{59, TierCool},
		{50, TierCool},
		{49, TierCold},
		{40, TierCold},
		{39, TierUnqualified},
		{0, TierUnqualified},
	}

	for _, tc := range cases {
		if got := p.TierForScore(tc.score); got != tc.want {
			t.Fatalf("TierForScore(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestChannelForAttemptIsMonotonic(t *testing.T) {
	cadence, err := Default().CadenceFor(TierHot)
	if err != nil {
		t.Fatalf("CadenceFor(HOT): %v", err)
	}

	want := map[int]Channel{
		1: ChannelEmail,
		2: ChannelEmail,
		3: ChannelSMS,
		4: ChannelSMS,
		5: ChannelCall,
		6: ChannelCall,
	}
	for attempt, channel := range want {
		if got := cadence.ChannelForAttempt(attempt); got != channel {
			t.Fatalf("attempt %d: got %s, want %s", attempt, got, channel)
		}
	}
}

func TestCadenceForMissingTier(t *testing.T) {
	p := Default()
	delete(p.Cadences, TierCold)

	if _, err := p.CadenceFor(TierCold); err == nil {
		t.Fatalf("expected error for missing cadence row")
	}
}

func TestEngageable(t *testing.T) {
	p := Default()

	for _, tier := range []Tier{TierHot, TierWarm, TierCool, TierCold} {
		if !p.Engageable(tier) {
			t.Fatalf("expected %s to be engageable", tier)
		}
	}
	if p.Engageable(TierUnqualified) {
		t.Fatalf("expected UNQUALIFIED to not be engageable")
	}
}

func TestLoadOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	content := `
scoring:
  hotThreshold: 85
cadences:
  HOT:
    interval: 2h
    maxAttempts: 6
    ladder:
      - channel: email
        upToAttempt: 3
      - channel: call
conflictWindow: 30m
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write policy file: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if p.Scoring.HotThreshold != 85 {
		t.Fatalf("hot threshold = %d, want 85", p.Scoring.HotThreshold)
	}
	// Untouched sections keep defaults.
	if p.Scoring.WarmThreshold != 60 {
		t.Fatalf("warm threshold = %d, want default 60", p.Scoring.WarmThreshold)
	}

	hot, err := p.CadenceFor(TierHot)
	if err != nil {
		t.Fatalf("CadenceFor(HOT): %v", err)
	}
	if hot.Interval != 2*time.Hour || hot.MaxAttempts != 6 {
		t.Fatalf("hot cadence = %+v, want 2h/6", hot)
	}
	if got := hot.ChannelForAttempt(4); got != ChannelCall {
		t.Fatalf("attempt 4 channel = %s, want call", got)
	}
	if p.ConflictWindow != 30*time.Minute {
		t.Fatalf("conflict window = %s, want 30m", p.ConflictWindow)
	}
}

func TestLoadRejectsPartialCadence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	content := `
cadences:
  WARM:
    interval: 12h
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write policy file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for partial cadence override")
	}
}
