package timeline

import (
	"fmt"

	"replay-analyzer/internal/matchlog"

	"github.com/tidwall/gjson"
)

// ResolveStats describes what the roster pass saw
type ResolveStats struct {
	Entries      int
	MissingOwner []string // roster labels without an owner id
	Duplicates   []string // roster labels whose owner id was already registered
	Reason       string   // why the registry is empty, if it is
}

// ResolveRegistry builds the entity registry from the roster tick. A missing
// roster section or tick yields an empty registry and a Reason, not an error.
func ResolveRegistry(l *matchlog.Log, schema matchlog.Schema) (*Registry, ResolveStats) {
	reg := NewRegistry()
	var stats ResolveStats

	section, ok := l.Section(schema.RosterSection)
	if !ok || !section.IsObject() {
		stats.Reason = fmt.Sprintf("roster section %q not found", schema.RosterSection)
		return reg, stats
	}

	roster, ok := matchlog.Child(section, schema.RosterTick)
	if !ok || !roster.IsObject() {
		stats.Reason = fmt.Sprintf("roster tick %q not found in section %q", schema.RosterTick, schema.RosterSection)
		return reg, stats
	}

	roster.ForEach(func(key, info gjson.Result) bool {
		stats.Entries++
		label := key.String()

		owner, ok := matchlog.Int(info, schema.RosterOwnerField)
		if !ok {
			stats.MissingOwner = append(stats.MissingOwner, label)
			return true
		}

		team, _ := matchlog.Int(info, schema.RosterTeamField)
		if !reg.add(Entity{ID: EntityID(owner), Label: label, Team: team}) {
			stats.Duplicates = append(stats.Duplicates, label)
		}
		return true
	})

	if reg.Len() == 0 && stats.Reason == "" {
		stats.Reason = fmt.Sprintf("roster tick %q has no entry with field %q", schema.RosterTick, schema.RosterOwnerField)
	}
	return reg, stats
}
