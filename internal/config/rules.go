package config

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/moonrise/moonrise/internal/domain/deck"
)

// Timing holds phase deadlines and pauses.
type Timing struct {
	NightAction time.Duration `yaml:"night_action"`
	LoversAck   time.Duration `yaml:"lovers_ack"`
	Seer        time.Duration `yaml:"seer"`
	Wolves      time.Duration `yaml:"wolves"`
	Witch       time.Duration `yaml:"witch"`
	MorningAck  time.Duration `yaml:"morning_ack"`
	Vote        time.Duration `yaml:"vote"`
	VoteAck     time.Duration `yaml:"vote_ack"`
	HunterShot  time.Duration `yaml:"hunter_shot"`
	PacingMin   time.Duration `yaml:"pacing_min"`
	PacingMax   time.Duration `yaml:"pacing_max"`
	RevoteDelay time.Duration `yaml:"revote_delay"`
}

// Rules is a snapshot of the tunable game rules.
type Rules struct {
	Timing Timing      `yaml:"timing"`
	Deck   deck.Config `yaml:"deck"`
}

// DefaultRules returns the built-in rules.
func DefaultRules() *Rules {
	return &Rules{
		Timing: Timing{
			NightAction: 30 * time.Second,
			LoversAck:   15 * time.Second,
			Seer:        30 * time.Second,
			Wolves:      60 * time.Second,
			Witch:       30 * time.Second,
			MorningAck:  60 * time.Second,
			Vote:        120 * time.Second,
			VoteAck:     30 * time.Second,
			HunterShot:  30 * time.Second,
			PacingMin:   2 * time.Second,
			PacingMax:   5 * time.Second,
			RevoteDelay: 3 * time.Second,
		},
		Deck: deck.DefaultConfig(),
	}
}

// Validate rejects rules the engine cannot run with.
func (r *Rules) Validate() error {
	t := r.Timing
	for name, d := range map[string]time.Duration{
		"night_action": t.NightAction,
		"lovers_ack":   t.LoversAck,
		"seer":         t.Seer,
		"wolves":       t.Wolves,
		"witch":        t.Witch,
		"morning_ack":  t.MorningAck,
		"vote":         t.Vote,
		"vote_ack":     t.VoteAck,
		"hunter_shot":  t.HunterShot,
	} {
		if d <= 0 {
			return fmt.Errorf("timing.%s must be positive", name)
		}
	}
	if t.PacingMin < 0 || t.PacingMax < t.PacingMin {
		return fmt.Errorf("timing.pacing_min/pacing_max out of range")
	}
	if t.RevoteDelay < 0 {
		return fmt.Errorf("timing.revote_delay must not be negative")
	}
	return r.Deck.Validate()
}

// ParseRules decodes YAML over the defaults, so a file may override only some fields.
func ParseRules(data []byte) (*Rules, error) {
	r := DefaultRules()
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadRules reads a rules file. An empty path yields the defaults.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	return ParseRules(data)
}

// RulesHolder owns the current rules snapshot. Readers get an immutable
// snapshot; a reload swaps the pointer.
type RulesHolder struct {
	path    string
	current atomic.Pointer[Rules]
}

// NewRulesHolder loads path (or defaults) into a new holder.
func NewRulesHolder(path string) (*RulesHolder, error) {
	r, err := LoadRules(path)
	if err != nil {
		return nil, err
	}
	h := &RulesHolder{path: path}
	h.current.Store(r)
	return h, nil
}

// StaticRules wraps a fixed snapshot.
func StaticRules(r *Rules) *RulesHolder {
	h := &RulesHolder{}
	h.current.Store(r)
	return h
}

// Current returns the active snapshot.
func (h *RulesHolder) Current() *Rules {
	return h.current.Load()
}

// Swap replaces the snapshot after validating it.
func (h *RulesHolder) Swap(r *Rules) error {
	if err := r.Validate(); err != nil {
		return err
	}
	h.current.Store(r)
	return nil
}

// Reload re-reads the backing file. On error the previous snapshot stays.
func (h *RulesHolder) Reload() error {
	if h.path == "" {
		return nil
	}
	r, err := LoadRules(h.path)
	if err != nil {
		return err
	}
	h.current.Store(r)
	return nil
}
