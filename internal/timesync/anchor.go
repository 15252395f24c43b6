// Package timesync aligns the combat log time base with the structure stream of the same match.
package timesync

import (
	"fmt"
	"strings"

	"replay-analyzer/internal/matchlog"

	"github.com/tidwall/gjson"
)

// CombatAnchor is the tick at which a death event first targets an anchor structure
type CombatAnchor struct {
	Tick   int64
	Target string
	Found  bool
	Reason string
}

// Structure is a fort-type record of the structure stream
type Structure struct {
	ID          string
	Type        string
	Team        int64
	DestroyedAt int64
	Destroyed   bool
}

// StructureFalls lists the anchor structures of the structure stream in discovery order
type StructureFalls struct {
	Structures []Structure
	Reason     string
}

// End returns the first structure to fall, which marks the end of the match.
// Ties keep discovery order.
func (f StructureFalls) End() (Structure, bool) {
	var end Structure
	found := false
	for _, s := range f.Structures {
		if !s.Destroyed {
			continue
		}
		if !found || s.DestroyedAt < end.DestroyedAt {
			end, found = s, true
		}
	}
	return end, found
}

// FindCombatEnd scans the combat log in tick order for the first death event whose
// target is one of the schema's anchor targets.
func FindCombatEnd(l *matchlog.Log, schema matchlog.Schema) CombatAnchor {
	if _, ok := l.Section(schema.CombatSection); !ok {
		return CombatAnchor{Reason: fmt.Sprintf("combat section %q not found", schema.CombatSection)}
	}

	targets := make(map[string]bool, len(schema.AnchorTargets))
	for _, t := range schema.AnchorTargets {
		targets[t] = true
	}

	ticks, _ := l.Ticks(schema.CombatSection)
	for _, entry := range ticks {
		deaths, ok := matchlog.Child(entry.Value, schema.DeathCategory)
		if !ok || !deaths.IsArray() {
			continue
		}

		var hit string
		deaths.ForEach(func(_, event gjson.Result) bool {
			target, ok := matchlog.String(event, schema.DeathTargetField)
			if ok && targets[target] {
				hit = target
				return false
			}
			return true
		})
		if hit != "" {
			return CombatAnchor{Tick: entry.Tick, Target: hit, Found: true}
		}
	}

	return CombatAnchor{Reason: fmt.Sprintf("no %s event targets %s in section %q",
		schema.DeathCategory, strings.Join(schema.AnchorTargets, " or "), schema.CombatSection)}
}

// FindStructureFalls locates the anchor structures and the earliest tick each one
// is marked destroyed. Classification and destruction may sit in different ticks,
// so the id set is closed in a first pass before destruction ticks are read.
func FindStructureFalls(l *matchlog.Log, schema matchlog.Schema) StructureFalls {
	if _, ok := l.Section(schema.StructureSection); !ok {
		return StructureFalls{Reason: fmt.Sprintf("structure section %q not found", schema.StructureSection)}
	}

	ticks, _ := l.Ticks(schema.StructureSection)

	// Pass one: which ids are anchor structures
	index := make(map[string]int)
	var structures []Structure
	for _, entry := range ticks {
		if !entry.Value.IsObject() {
			continue
		}
		entry.Value.ForEach(func(id, record gjson.Result) bool {
			kind, ok := matchlog.String(record, schema.StructureTypeField)
			if !ok || !strings.HasPrefix(kind, schema.StructureTypePrefix) {
				return true
			}
			if _, seen := index[id.String()]; !seen {
				index[id.String()] = len(structures)
				structures = append(structures, Structure{ID: id.String(), Type: kind})
			}
			return true
		})
	}

	// Pass two: earliest destruction tick and team of each
	for _, entry := range ticks {
		if !entry.Value.IsObject() {
			continue
		}
		entry.Value.ForEach(func(id, record gjson.Result) bool {
			i, ok := index[id.String()]
			if !ok {
				return true
			}
			s := &structures[i]
			if team, ok := matchlog.Int(record, schema.StructureTeamField); ok && s.Team == 0 {
				s.Team = team
			}
			if matchlog.IsTrue(record, schema.StructureDestroyedField) && (!s.Destroyed || entry.Tick < s.DestroyedAt) {
				s.DestroyedAt = entry.Tick
				s.Destroyed = true
			}
			return true
		})
	}

	falls := StructureFalls{Structures: structures}
	switch {
	case len(structures) == 0:
		falls.Reason = fmt.Sprintf("no %q record with type prefix %q", schema.StructureSection, schema.StructureTypePrefix)
	default:
		if _, ok := falls.End(); !ok {
			falls.Reason = fmt.Sprintf("no %s structure is marked %q", schema.StructureTypePrefix, schema.StructureDestroyedField)
		}
	}
	return falls
}
