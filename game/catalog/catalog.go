package catalog

import (
	"fmt"
	"sort"
	"time"

	"github.com/thomaswakin/SystemAdept-sub000/game/timewin"
)

// Window is an (amount, unit) time window as written in catalog documents.
type Window struct {
	Amount float64      `json:"amount"`
	Unit   timewin.Unit `json:"unit"`
}

// Duration converts the window into a duration.
func (w Window) Duration() time.Duration {
	return timewin.ToDuration(w.Amount, w.Unit)
}

// QuestDef is an immutable quest definition. Overrides, when nil, inherit the
// owning system's defaults.
type QuestDef struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Rank           int      `json:"rank"`
	Prompt         string   `json:"prompt"`
	Aura           float64  `json:"aura"`
	EventCount     int      `json:"event_count"` // display metadata only
	EventUnit      string   `json:"event_unit"`
	TimeToComplete *Window  `json:"time_to_complete,omitempty"`
	Cooldown       *Window  `json:"cooldown,omitempty"`
	DebuffFactor   *float64 `json:"debuff_factor,omitempty"`
}

// SystemDef is an immutable quest system definition: a named group of quests
// sharing default timing and debuff rules.
type SystemDef struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	TimeToComplete *Window    `json:"time_to_complete,omitempty"`
	Cooldown       *Window    `json:"cooldown,omitempty"`
	DebuffFactor   *float64   `json:"debuff_factor,omitempty"`
	Quests         []QuestDef `json:"quests"`
}

type questEntry struct {
	quest  *QuestDef
	system *SystemDef
}

// Catalog is a read-only lookup of quest and system definitions.
type Catalog struct {
	systems    map[string]*SystemDef
	quests     map[string]*questEntry
	order      []string // system IDs in ingestion order
	defaultTTL time.Duration
}

// New builds a Catalog from already-parsed system definitions. defaultTTL is
// the time-to-complete used when neither quest nor system define one.
func New(systems []*SystemDef, defaultTTL time.Duration) (*Catalog, error) {
	c := &Catalog{
		systems:    make(map[string]*SystemDef),
		quests:     make(map[string]*questEntry),
		defaultTTL: defaultTTL,
	}
	for _, s := range systems {
		if err := validateSystem(s); err != nil {
			return nil, err
		}
		if _, dup := c.systems[s.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate system id %q", s.ID)
		}
		c.systems[s.ID] = s
		c.order = append(c.order, s.ID)
		for i := range s.Quests {
			q := &s.Quests[i]
			if _, dup := c.quests[q.ID]; dup {
				return nil, fmt.Errorf("catalog: duplicate quest id %q", q.ID)
			}
			c.quests[q.ID] = &questEntry{quest: q, system: s}
		}
	}
	return c, nil
}

func validateSystem(s *SystemDef) error {
	if s.ID == "" {
		return fmt.Errorf("catalog: system missing id")
	}
	if s.Name == "" {
		return fmt.Errorf("catalog: system %q missing name", s.ID)
	}
	for i := range s.Quests {
		q := &s.Quests[i]
		if q.ID == "" {
			return fmt.Errorf("catalog: system %q quest[%d] missing id", s.ID, i)
		}
		if q.Name == "" {
			return fmt.Errorf("catalog: quest %q missing name", q.ID)
		}
		if q.Rank < 1 {
			return fmt.Errorf("catalog: quest %q has rank %d, want >= 1", q.ID, q.Rank)
		}
		if q.Aura < 0 {
			return fmt.Errorf("catalog: quest %q has negative aura", q.ID)
		}
		if q.DebuffFactor != nil && *q.DebuffFactor <= 0 {
			return fmt.Errorf("catalog: quest %q debuff_factor must be > 0", q.ID)
		}
	}
	if s.DebuffFactor != nil && *s.DebuffFactor <= 0 {
		return fmt.Errorf("catalog: system %q debuff_factor must be > 0", s.ID)
	}
	return nil
}

// System returns the system definition for the given ID, or nil.
func (c *Catalog) System(id string) *SystemDef {
	return c.systems[id]
}

// Systems returns all system definitions in ingestion order.
func (c *Catalog) Systems() []*SystemDef {
	out := make([]*SystemDef, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.systems[id])
	}
	return out
}

// Quest returns the quest definition and its owning system, or nils.
func (c *Catalog) Quest(id string) (*QuestDef, *SystemDef) {
	e, ok := c.quests[id]
	if !ok {
		return nil, nil
	}
	return e.quest, e.system
}

// EffectiveTTL resolves the time-to-complete for a quest: quest override,
// else system default, else the catalog-wide default.
func (c *Catalog) EffectiveTTL(questID string) time.Duration {
	e, ok := c.quests[questID]
	if !ok {
		return c.defaultTTL
	}
	if e.quest.TimeToComplete != nil {
		return e.quest.TimeToComplete.Duration()
	}
	if e.system.TimeToComplete != nil {
		return e.system.TimeToComplete.Duration()
	}
	return c.defaultTTL
}

// EffectiveCooldown resolves the cooldown before the next rank unlocks.
// Zero when neither quest nor system define one.
func (c *Catalog) EffectiveCooldown(questID string) time.Duration {
	e, ok := c.quests[questID]
	if !ok {
		return 0
	}
	if e.quest.Cooldown != nil {
		return e.quest.Cooldown.Duration()
	}
	if e.system.Cooldown != nil {
		return e.system.Cooldown.Duration()
	}
	return 0
}

// EffectiveDebuff resolves the repeat-failure debuff factor: quest override,
// else system default, else 1.0 (no decay).
func (c *Catalog) EffectiveDebuff(questID string) float64 {
	e, ok := c.quests[questID]
	if !ok {
		return 1.0
	}
	if e.quest.DebuffFactor != nil {
		return *e.quest.DebuffFactor
	}
	if e.system.DebuffFactor != nil {
		return *e.system.DebuffFactor
	}
	return 1.0
}

// QuestsAtRank returns the system's quests at the given rank, in definition order.
func (c *Catalog) QuestsAtRank(systemID string, rank int) []*QuestDef {
	s, ok := c.systems[systemID]
	if !ok {
		return nil
	}
	var out []*QuestDef
	for i := range s.Quests {
		if s.Quests[i].Rank == rank {
			out = append(out, &s.Quests[i])
		}
	}
	return out
}

// Ranks returns the distinct ranks of a system in ascending order.
func (c *Catalog) Ranks(systemID string) []int {
	s, ok := c.systems[systemID]
	if !ok {
		return nil
	}
	seen := make(map[int]struct{})
	var ranks []int
	for i := range s.Quests {
		r := s.Quests[i].Rank
		if _, ok := seen[r]; !ok {
			seen[r] = struct{}{}
			ranks = append(ranks, r)
		}
	}
	sort.Ints(ranks)
	return ranks
}
