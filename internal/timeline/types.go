// Package timeline reconstructs per-player item ownership histories from a match log.
package timeline

// EntityID is the persistent identity of a participant (the player id)
type EntityID int64

// Status is the state an owned object moved into at a tick
type Status string

const (
	StatusPurchased Status = "purchased"
	StatusDeleted   Status = "deleted"
)

// StatusEvent is one observed transition of an owned object
type StatusEvent struct {
	Tick   int64  `json:"tick"`
	Status Status `json:"status"`
}

// ObjectKey identifies an owned object. Object ids are only unique per owner.
type ObjectKey struct {
	Owner    EntityID
	ObjectID string
}

// OwnedObject is an item attributed to exactly one entity.
// History is in log order until normalized.
type OwnedObject struct {
	Key     ObjectKey
	Name    string
	History []StatusEvent
}

// Entity is a roster participant
type Entity struct {
	ID    EntityID
	Label string
	Team  int64
}

// ObjectTable stores owned objects keyed by (owner, object id)
type ObjectTable struct {
	rows    map[ObjectKey]*OwnedObject
	byOwner map[EntityID][]*OwnedObject
}

// NewObjectTable creates an empty table
func NewObjectTable() *ObjectTable {
	return &ObjectTable{
		rows:    make(map[ObjectKey]*OwnedObject),
		byOwner: make(map[EntityID][]*OwnedObject),
	}
}

// Upsert returns the object for key, creating it with name on first sight.
// The name of an existing object is never replaced.
func (t *ObjectTable) Upsert(key ObjectKey, name string) (obj *OwnedObject, created bool) {
	if existing, ok := t.rows[key]; ok {
		return existing, false
	}

	obj = &OwnedObject{Key: key, Name: name}
	t.rows[key] = obj
	t.byOwner[key.Owner] = append(t.byOwner[key.Owner], obj)
	return obj, true
}

// Get looks up an object
func (t *ObjectTable) Get(key ObjectKey) (*OwnedObject, bool) {
	obj, ok := t.rows[key]
	return obj, ok
}

// Owned returns an owner's objects in first-seen order
func (t *ObjectTable) Owned(owner EntityID) []*OwnedObject {
	return t.byOwner[owner]
}

// Len returns the number of objects across all owners
func (t *ObjectTable) Len() int {
	return len(t.rows)
}

// Registry is the resolved roster plus the objects attributed to it
type Registry struct {
	entities map[EntityID]*Entity
	order    []EntityID
	objects  *ObjectTable
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[EntityID]*Entity),
		objects:  NewObjectTable(),
	}
}

// add registers an entity. It reports false when the id is already taken.
func (r *Registry) add(e Entity) bool {
	if _, exists := r.entities[e.ID]; exists {
		return false
	}
	r.entities[e.ID] = &e
	r.order = append(r.order, e.ID)
	return true
}

// Len returns the number of entities
func (r *Registry) Len() int {
	return len(r.order)
}

// Entity looks up an entity by id
func (r *Registry) Entity(id EntityID) (*Entity, bool) {
	e, ok := r.entities[id]
	return e, ok
}

// Entities returns the entities in roster order
func (r *Registry) Entities() []*Entity {
	out := make([]*Entity, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entities[id])
	}
	return out
}

// Objects exposes the owned-object table
func (r *Registry) Objects() *ObjectTable {
	return r.objects
}
