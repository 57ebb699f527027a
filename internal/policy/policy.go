// Package policy holds the immutable engagement policy: scoring tables, tier
// thresholds, follow-up cadences and the campaign conflict window. The policy
// is plain configuration handed to the scoring engine, state machine and
// orchestrator at construction time; nothing in here performs I/O after Load.
package policy

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Tier is the discrete qualification bucket derived from a lead score.
type Tier string

const (
	TierHot         Tier = "HOT"
	TierWarm        Tier = "WARM"
	TierCool        Tier = "COOL"
	TierCold        Tier = "COLD"
	TierUnqualified Tier = "UNQUALIFIED"
)

// Channel identifies an outreach channel, ordered by cost/intrusiveness.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelCall  Channel = "call"
)

// ChannelRung is one step of the escalation ladder: the channel used up to
// and including UpToAttempt. The last rung may leave UpToAttempt at 0,
// meaning "all remaining attempts".
type ChannelRung struct {
	Channel     Channel `yaml:"channel"`
	UpToAttempt int     `yaml:"upToAttempt"`
}

// Cadence is the per-tier follow-up schedule.
type Cadence struct {
	Interval    time.Duration `yaml:"-"`
	MaxAttempts int           `yaml:"maxAttempts"`
	Ladder      []ChannelRung `yaml:"ladder"`

	// IntervalRaw is the YAML-facing duration string ("4h", "30m").
	IntervalRaw string `yaml:"interval"`
}

// ChannelForAttempt returns the channel for the given 1-based attempt.
// The ladder is consulted in order; selection is monotonic by construction.
func (c Cadence) ChannelForAttempt(attempt int) Channel {
	for _, rung := range c.Ladder {
		if rung.UpToAttempt == 0 || attempt <= rung.UpToAttempt {
			return rung.Channel
		}
	}
	if len(c.Ladder) > 0 {
		return c.Ladder[len(c.Ladder)-1].Channel
	}
	return ChannelEmail
}

// ScoringPolicy holds the bucket tables and thresholds for the scoring engine.
type ScoringPolicy struct {
	OrgSizePoints    map[string]int `yaml:"orgSizePoints"`    // bounded 0-20
	VolumePoints     map[string]int `yaml:"volumePoints"`     // bounded 0-20
	IndustryPoints   map[string]int `yaml:"industryPoints"`   // bounded 0-15
	IndustryDefault  int            `yaml:"industryDefault"`  // neutral when no signal
	CompletePoints   int            `yaml:"completePoints"`   // full intake form
	PartialPoints    int            `yaml:"partialPoints"`    // abandoned form
	MeetingPoints    int            `yaml:"meetingPoints"`    // booked a call
	FirmographicEach int            `yaml:"firmographicEach"` // per enrichment field
	FirmographicCap  int            `yaml:"firmographicCap"`

	HotThreshold  int `yaml:"hotThreshold"`
	WarmThreshold int `yaml:"warmThreshold"`
	CoolThreshold int `yaml:"coolThreshold"`
	ColdThreshold int `yaml:"coldThreshold"`
}

// TierForScore maps a 0-100 score to its tier.
func (p ScoringPolicy) TierForScore(score int) Tier {
	switch {
	case score >= p.HotThreshold:
		return TierHot
	case score >= p.WarmThreshold:
		return TierWarm
	case score >= p.CoolThreshold:
		return TierCool
	case score >= p.ColdThreshold:
		return TierCold
	default:
		return TierUnqualified
	}
}

// Policy is the full engagement configuration.
type Policy struct {
	Scoring        ScoringPolicy    `yaml:"scoring"`
	Cadences       map[Tier]Cadence `yaml:"cadences"`
	ConflictWindow time.Duration    `yaml:"-"`

	ConflictWindowRaw string `yaml:"conflictWindow"`
}

// Engageable reports whether a tier warrants an automated campaign.
func (p *Policy) Engageable(tier Tier) bool {
	_, ok := p.Cadences[tier]
	return ok && tier != TierUnqualified
}

// CadenceFor returns the cadence row for a tier. A missing row is a
// configuration error; callers treat it as fatal for that campaign only.
func (p *Policy) CadenceFor(tier Tier) (Cadence, error) {
	cadence, ok := p.Cadences[tier]
	if !ok {
		return Cadence{}, fmt.Errorf("no cadence configured for tier %s", tier)
	}
	return cadence, nil
}

// Default returns the built-in policy.
func Default() *Policy {
	return &Policy{
		Scoring: ScoringPolicy{
			OrgSizePoints: map[string]int{
				"enterprise": 20,
				"large":      20,
				"medium":     14,
				"small":      8,
				"micro":      3,
			},
			VolumePoints: map[string]int{
				"300+":    20,
				"100-299": 15,
				"30-99":   10,
				"10-29":   5,
				"<10":     2,
			},
			IndustryPoints: map[string]int{
				"strong":  15,
				"good":    12,
				"neutral": 8,
				"weak":    3,
			},
			// A missing enrichment signal is not a negative: leads without
			// industry data keep full industry credit so the intake answers
			// alone can reach the HOT threshold.
			IndustryDefault:  15,
			CompletePoints:   15,
			PartialPoints:    5,
			MeetingPoints:    10,
			FirmographicEach: 5,
			FirmographicCap:  10,
			HotThreshold:     80,
			WarmThreshold:    60,
			CoolThreshold:    50,
			ColdThreshold:    40,
		},
		Cadences: map[Tier]Cadence{
			TierHot: {
				Interval:    4 * time.Hour,
				MaxAttempts: 5,
				Ladder: []ChannelRung{
					{Channel: ChannelEmail, UpToAttempt: 2},
					{Channel: ChannelSMS, UpToAttempt: 4},
					{Channel: ChannelCall},
				},
			},
			TierWarm: {
				Interval:    24 * time.Hour,
				MaxAttempts: 3,
				Ladder: []ChannelRung{
					{Channel: ChannelEmail, UpToAttempt: 2},
					{Channel: ChannelSMS},
				},
			},
			TierCool: {
				Interval:    48 * time.Hour,
				MaxAttempts: 2,
				Ladder: []ChannelRung{
					{Channel: ChannelEmail},
				},
			},
			TierCold: {
				Interval:    48 * time.Hour,
				MaxAttempts: 2,
				Ladder: []ChannelRung{
					{Channel: ChannelEmail},
				},
			},
		},
		ConflictWindow: time.Hour,
	}
}

// Load returns the default policy, overridden by the YAML file at path when
// path is non-empty. The file may override any subset; zero-valued sections
// keep their defaults.
func Load(path string) (*Policy, error) {
	p := Default()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	var override Policy
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	merge(p, &override)
	if err := resolveDurations(p, &override); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func merge(base, override *Policy) {
	s := &override.Scoring
	if len(s.OrgSizePoints) > 0 {
		base.Scoring.OrgSizePoints = s.OrgSizePoints
	}
	if len(s.VolumePoints) > 0 {
		base.Scoring.VolumePoints = s.VolumePoints
	}
	if len(s.IndustryPoints) > 0 {
		base.Scoring.IndustryPoints = s.IndustryPoints
	}
	if s.IndustryDefault > 0 {
		base.Scoring.IndustryDefault = s.IndustryDefault
	}
	if s.CompletePoints > 0 {
		base.Scoring.CompletePoints = s.CompletePoints
	}
	if s.PartialPoints > 0 {
		base.Scoring.PartialPoints = s.PartialPoints
	}
	if s.MeetingPoints > 0 {
		base.Scoring.MeetingPoints = s.MeetingPoints
	}
	if s.FirmographicEach > 0 {
		base.Scoring.FirmographicEach = s.FirmographicEach
	}
	if s.FirmographicCap > 0 {
		base.Scoring.FirmographicCap = s.FirmographicCap
	}
	if s.HotThreshold > 0 {
		base.Scoring.HotThreshold = s.HotThreshold
	}
	if s.WarmThreshold > 0 {
		base.Scoring.WarmThreshold = s.WarmThreshold
	}
	if s.CoolThreshold > 0 {
		base.Scoring.CoolThreshold = s.CoolThreshold
	}
	if s.ColdThreshold > 0 {
		base.Scoring.ColdThreshold = s.ColdThreshold
	}
}

func resolveDurations(base, override *Policy) error {
	for tier, cadence := range override.Cadences {
		resolved := cadence
		if cadence.IntervalRaw != "" {
			interval, err := time.ParseDuration(cadence.IntervalRaw)
			if err != nil {
				return fmt.Errorf("cadence interval for %s: %w", tier, err)
			}
			resolved.Interval = interval
		}
		if resolved.MaxAttempts == 0 || len(resolved.Ladder) == 0 {
			// Partial cadence overrides are not supported; a tier row
			// replaces the default wholesale to keep the table readable.
			return fmt.Errorf("cadence for %s must set interval, maxAttempts and ladder", tier)
		}
		base.Cadences[tier] = resolved
	}

	if override.ConflictWindowRaw != "" {
		window, err := time.ParseDuration(override.ConflictWindowRaw)
		if err != nil {
			return fmt.Errorf("conflict window: %w", err)
		}
		base.ConflictWindow = window
	}
	return nil
}

// Validate checks internal consistency of the policy.
func (p *Policy) Validate() error {
	s := p.Scoring
	if !(s.HotThreshold > s.WarmThreshold && s.WarmThreshold > s.CoolThreshold && s.CoolThreshold > s.ColdThreshold) {
		return fmt.Errorf("tier thresholds must be strictly descending")
	}
	for tier, cadence := range p.Cadences {
		if cadence.Interval <= 0 {
			return fmt.Errorf("cadence for %s: interval must be positive", tier)
		}
		if cadence.MaxAttempts < 1 {
			return fmt.Errorf("cadence for %s: maxAttempts must be at least 1", tier)
		}
		if len(cadence.Ladder) == 0 {
			return fmt.Errorf("cadence for %s: channel ladder is empty", tier)
		}
	}
	if p.ConflictWindow <= 0 {
		return fmt.Errorf("conflict window must be positive")
	}
	return nil
}
