// Package permission ranks a caller's privilege from a configured ladder of
// named levels, each guarded by a pure predicate over the caller context.
package permission

import (
	"sort"
	"strings"
)

// Baseline is the level returned when no configured check matches.
const Baseline = 0

// Check reports whether a caller qualifies for a level. It must not perform I/O.
type Check func(c *Caller) bool

// Level is one rung of the permission ladder.
type Level struct {
	Level int
	Name  string
	Check Check
}

// Resolver evaluates the ladder from the highest level down.
// It is read-only after construction and safe for concurrent use.
type Resolver struct {
	levels []Level
}

// NewResolver copies levels and orders them by descending level.
// Levels sharing a value keep their configured order.
func NewResolver(levels []Level) *Resolver {
	ordered := make([]Level, len(levels))
	copy(ordered, levels)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Level > ordered[j].Level
	})
	return &Resolver{levels: ordered}
}

// Resolve returns the level of the first matching check, or Baseline.
func (r *Resolver) Resolve(c *Caller) int {
	if r == nil || c == nil {
		return Baseline
	}
	for _, l := range r.levels {
		if l.Check != nil && l.Check(c) {
			return l.Level
		}
	}
	return Baseline
}

// Name returns the name of the given level, or an empty string.
func (r *Resolver) Name(level int) string {
	if r == nil {
		return ""
	}
	for _, l := range r.levels {
		if l.Level == level {
			return l.Name
		}
	}
	return ""
}

// LevelOf looks a level up by its name, case-insensitively.
func (r *Resolver) LevelOf(name string) (int, bool) {
	if r == nil {
		return Baseline, false
	}
	for _, l := range r.levels {
		if strings.EqualFold(l.Name, name) {
			return l.Level, true
		}
	}
	return Baseline, false
}

// Levels returns the ladder in evaluation order.
func (r *Resolver) Levels() []Level {
	if r == nil {
		return nil
	}
	out := make([]Level, len(r.levels))
	copy(out, r.levels)
	return out
}
