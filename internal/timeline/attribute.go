package timeline

import (
	"replay-analyzer/internal/matchlog"

	"github.com/tidwall/gjson"
)

// AttributionStats counts what happened to the events of the items section
type AttributionStats struct {
	Ticks          int
	Events         int
	Attributed     int
	Created        int
	UnknownOwner   int // owner id not in the registry (observers, neutrals)
	MissingOwner   int // no usable owner id field
	Malformed      int // event is not an object
	MalformedTicks []string
}

// Dropped is the number of events that were not attributed
func (s AttributionStats) Dropped() int {
	return s.UnknownOwner + s.MissingOwner + s.Malformed
}

// Attribute walks the items section tick by tick and appends a status event to
// the owning entity's object for every event whose owner is registered.
func Attribute(l *matchlog.Log, schema matchlog.Schema, reg *Registry) AttributionStats {
	var stats AttributionStats

	ticks, malformed := l.Ticks(schema.ItemsSection)
	stats.MalformedTicks = malformed

	for _, entry := range ticks {
		stats.Ticks++
		if !entry.Value.IsObject() {
			continue
		}

		entry.Value.ForEach(func(objectID, info gjson.Result) bool {
			stats.Events++
			if !info.IsObject() {
				stats.Malformed++
				return true
			}

			owner, ok := matchlog.Int(info, schema.ItemOwnerField)
			if !ok {
				stats.MissingOwner++
				return true
			}
			if _, known := reg.Entity(EntityID(owner)); !known {
				stats.UnknownOwner++
				return true
			}

			name, ok := matchlog.String(info, schema.ItemNameField)
			if !ok {
				name = schema.UnknownItemName
			}

			key := ObjectKey{Owner: EntityID(owner), ObjectID: objectID.String()}
			obj, created := reg.Objects().Upsert(key, name)
			if created {
				stats.Created++
			}

			obj.History = append(obj.History, StatusEvent{
				Tick:   entry.Tick,
				Status: statusOf(info, schema),
			})
			stats.Attributed++
			return true
		})
	}

	return stats
}

// statusOf classifies an event: the presence of the deletion marker means deleted
func statusOf(info gjson.Result, schema matchlog.Schema) Status {
	if matchlog.Has(info, schema.ItemDeletedField) {
		return StatusDeleted
	}
	return StatusPurchased
}
