package missions

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Category groups missions; Order fixes the auto-chain sequence between
// categories so that "next eligible mission" never depends on map
// iteration order.
type Category struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Order int    `yaml:"order"`
}

// Registry holds the loaded mission definitions. Immutable after New.
type Registry struct {
	missions   map[string]*Mission
	categories map[string]*Category
	ordered    []*Mission // category order, then sequence, then id
}

// NewRegistry validates the definitions and builds the ordered index.
func NewRegistry(categories []Category, missions []Mission) (*Registry, error) {
	r := &Registry{
		missions:   make(map[string]*Mission, len(missions)),
		categories: make(map[string]*Category, len(categories)),
	}
	for i := range categories {
		c := &categories[i]
		if c.ID == "" {
			return nil, fmt.Errorf("category %d: missing id", i)
		}
		if _, dup := r.categories[c.ID]; dup {
			return nil, fmt.Errorf("duplicate category id %q", c.ID)
		}
		r.categories[c.ID] = c
	}
	for i := range missions {
		m := &missions[i]
		if m.ID == "" {
			return nil, fmt.Errorf("mission %d: missing id", i)
		}
		if _, dup := r.missions[m.ID]; dup {
			return nil, fmt.Errorf("duplicate mission id %q", m.ID)
		}
		if _, ok := r.categories[m.Category]; !ok {
			return nil, fmt.Errorf("mission %q: unknown category %q", m.ID, m.Category)
		}
		if len(m.Tasks) == 0 {
			return nil, fmt.Errorf("mission %q: no tasks", m.ID)
		}
		seen := make(map[string]bool, len(m.Tasks))
		for _, t := range m.Tasks {
			if t.ID == "" {
				return nil, fmt.Errorf("mission %q: task with missing id", m.ID)
			}
			if seen[t.ID] {
				return nil, fmt.Errorf("mission %q: duplicate task id %q", m.ID, t.ID)
			}
			seen[t.ID] = true
			if err := t.Match.Validate(); err != nil {
				return nil, fmt.Errorf("mission %q task %q: %w", m.ID, t.ID, err)
			}
		}
		r.missions[m.ID] = m
	}
	for _, m := range r.missions {
		for _, pre := range m.Prerequisites {
			if _, ok := r.missions[pre]; !ok {
				return nil, fmt.Errorf("mission %q: unknown prerequisite %q", m.ID, pre)
			}
		}
	}
	if err := r.checkPrereqCycles(); err != nil {
		return nil, err
	}

	r.ordered = make([]*Mission, 0, len(r.missions))
	for _, m := range r.missions {
		r.ordered = append(r.ordered, m)
	}
	sort.Slice(r.ordered, func(i, j int) bool {
		a, b := r.ordered[i], r.ordered[j]
		if a.Category != b.Category {
			return r.categories[a.Category].Order < r.categories[b.Category].Order
		}
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		return a.ID < b.ID
	})
	return r, nil
}

// checkPrereqCycles rejects content where missions can never unlock.
func (r *Registry) checkPrereqCycles() error {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(r.missions))
	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case grey:
			return fmt.Errorf("prerequisite cycle involving mission %q", id)
		case black:
			return nil
		}
		color[id] = grey
		for _, pre := range r.missions[id].Prerequisites {
			if err := visit(pre); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}
	ids := make([]string, 0, len(r.missions))
	for id := range r.missions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a mission definition, nil if unknown.
func (r *Registry) Get(id string) *Mission {
	return r.missions[id]
}

// All returns missions in deterministic chain order.
func (r *Registry) All() []*Mission {
	return r.ordered
}

// Category returns a category definition, nil if unknown.
func (r *Registry) Category(id string) *Category {
	return r.categories[id]
}

// NextEligible returns the first mission in chain order that is not yet
// completed and whose prerequisites are all in completed. Empty string if
// none qualifies.
func (r *Registry) NextEligible(completed map[string]bool) string {
	for _, m := range r.ordered {
		if completed[m.ID] {
			continue
		}
		ok := true
		for _, pre := range m.Prerequisites {
			if !completed[pre] {
				ok = false
				break
			}
		}
		if ok {
			return m.ID
		}
	}
	return ""
}

// CategoryComplete reports whether every mission in the category is in
// completed.
func (r *Registry) CategoryComplete(category string, completed map[string]bool) bool {
	any := false
	for _, m := range r.ordered {
		if m.Category != category {
			continue
		}
		any = true
		if !completed[m.ID] {
			return false
		}
	}
	return any
}

// ContentFile is the YAML document shape for mission content.
type ContentFile struct {
	Categories []Category `yaml:"categories"`
	Missions   []Mission  `yaml:"missions"`
}

// LoadFile reads mission content YAML and builds a registry.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mission content: %w", err)
	}
	return LoadBytes(data)
}

// LoadBytes builds a registry from raw YAML.
func LoadBytes(data []byte) (*Registry, error) {
	var cf ContentFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse mission content: %w", err)
	}
	return NewRegistry(cf.Categories, cf.Missions)
}
