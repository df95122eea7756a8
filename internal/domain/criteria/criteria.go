// Package criteria evaluates priority-ordered match-and-act rules against a
// beatmap and applies the actions of the rules that matched.
//
// Rules are matched on exact equality of every present match field. A rule
// without any match field matches nothing. All actions of all matched rules
// are loaded before the first one is applied, so a storage failure never
// leaves a beatmap half-updated.
package criteria

import (
	"context"
	"fmt"
	"sort"

	"github.com/okian/lets/internal/domain/beatmap"
	"github.com/okian/lets/pkg/logger"
)

// Rule is a stored criteria row.
type Rule struct {
	ID        int64
	Priority  int
	Active    bool
	Match     map[MatchField]int64
	StopOnHit bool
}

// RuleSource loads rules and their actions.
type RuleSource interface {
	// ActiveRules returns active rules, ideally ordered priority DESC, id ASC.
	ActiveRules(ctx context.Context) ([]Rule, error)
	// Actions returns the stored actions of each requested rule in stored order.
	Actions(ctx context.Context, criteriaIDs []int64) (map[int64][]Action, error)
}

// Engine applies criteria rules to beatmaps.
type Engine struct {
	rules   RuleSource
	actions ActionTable
	logger  logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithActions replaces the action table.
func WithActions(table ActionTable) Option {
	return func(e *Engine) {
		if table != nil {
			e.actions = table
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine builds an Engine reading rules from rules.
func NewEngine(rules RuleSource, opts ...Option) *Engine {
	e := &Engine{
		rules:   rules,
		actions: DefaultActions(),
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Match returns the IDs of the rules matching bm in evaluation order.
func (e *Engine) Match(ctx context.Context, bm beatmap.Beatmap) ([]int64, error) {
	rules, err := e.rules.ActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load criteria rules: %w", err)
	}

	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})

	var matched []int64
	for _, r := range rules {
		if err := validateRule(r); err != nil {
			return nil, err
		}
		if !r.Active || len(r.Match) == 0 {
			continue
		}
		if !r.matches(bm) {
			continue
		}
		matched = append(matched, r.ID)
		if r.StopOnHit {
			break
		}
	}
	return matched, nil
}

// Apply matches bm against the active rules and applies every action of the
// matching rules in order. It returns the matched rule IDs. bm is left
// untouched when an error is returned.
func (e *Engine) Apply(ctx context.Context, bm *beatmap.Beatmap) ([]int64, error) {
	matched, err := e.Match(ctx, *bm)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, nil
	}

	actions, err := e.rules.Actions(ctx, matched)
	if err != nil {
		return nil, fmt.Errorf("load criteria actions: %w", err)
	}
	for id := range actions {
		if !containsID(matched, id) {
			return nil, fmt.Errorf("%w: actions returned for unrequested criteria %d", beatmap.ErrDataIntegrity, id)
		}
	}

	next := *bm
	for _, id := range matched {
		for _, act := range actions[id] {
			fn, ok := e.actions[act.Type]
			if !ok {
				continue
			}
			next = fn(next, act.IntValue, act.StrValue)
		}
	}

	e.logger.Debug(ctx, "criteria applied",
		logger.Int64("beatmap_id", bm.BeatmapID),
		logger.Any("criteria_ids", matched),
		logger.Bool("changed", next != *bm),
	)
	*bm = next
	return matched, nil
}

func (r Rule) matches(bm beatmap.Beatmap) bool {
	for f, want := range r.Match {
		if f.value(bm) != want {
			return false
		}
	}
	return true
}

func validateRule(r Rule) error {
	if r.ID <= 0 {
		return fmt.Errorf("%w: criteria rule with id %d", beatmap.ErrDataIntegrity, r.ID)
	}
	for f := range r.Match {
		if !f.Valid() {
			return fmt.Errorf("%w: criteria %d uses unknown match field %d", beatmap.ErrDataIntegrity, r.ID, f)
		}
	}
	return nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
