package timeline

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// Markers written in place of empty containers
const (
	NoItemsMarker   = "No items purchased"
	NoHistoryMarker = "No history recorded"
)

// History is a chronologically ordered event list. Missing marks an object
// that exists but has no recorded transitions; it serializes as NoHistoryMarker.
type History struct {
	Events  []StatusEvent
	Missing bool
}

func (h History) MarshalJSON() ([]byte, error) {
	if h.Missing {
		return json.Marshal(NoHistoryMarker)
	}
	if h.Events == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h.Events)
}

func (h *History) UnmarshalJSON(data []byte) error {
	var marker string
	if err := json.Unmarshal(data, &marker); err == nil {
		if marker != NoHistoryMarker {
			return fmt.Errorf("unexpected history marker %q", marker)
		}
		*h = History{Missing: true}
		return nil
	}

	var events []StatusEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return err
	}
	*h = History{Events: events}
	return nil
}

// ObjectTimeline is a normalized owned object
type ObjectTimeline struct {
	ID      string  `json:"-"`
	Name    string  `json:"name"`
	History History `json:"history"`
}

// Items is an entity's objects in first-seen order. None marks an entity with
// no objects; it serializes as NoItemsMarker.
type Items struct {
	Objects []ObjectTimeline
	None    bool
}

func (it Items) MarshalJSON() ([]byte, error) {
	if it.None {
		return json.Marshal(NoItemsMarker)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, obj := range it.Objects {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(obj.ID)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(obj)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (it *Items) UnmarshalJSON(data []byte) error {
	parsed := gjson.ParseBytes(data)
	switch {
	case parsed.Type == gjson.String:
		if parsed.Str != NoItemsMarker {
			return fmt.Errorf("unexpected items marker %q", parsed.Str)
		}
		*it = Items{None: true}
		return nil
	case !parsed.IsObject():
		return fmt.Errorf("items must be an object or %q", NoItemsMarker)
	}

	var out Items
	var err error
	parsed.ForEach(func(key, value gjson.Result) bool {
		obj := ObjectTimeline{ID: key.String()}
		if err = json.Unmarshal([]byte(value.Raw), &obj); err != nil {
			return false
		}
		out.Objects = append(out.Objects, obj)
		return true
	})
	if err != nil {
		return err
	}
	*it = out
	return nil
}

// EntityTimeline is one participant's normalized item timeline
type EntityTimeline struct {
	ID       EntityID `json:"-"`
	HeroName string   `json:"hero_name"`
	Team     int64    `json:"team,omitempty"`
	Items    Items    `json:"items"`
}

// Timeline is the attributed, ordered result for one match, in roster order.
// It serializes as an object keyed by entity id.
type Timeline struct {
	Entities []EntityTimeline
}

// Entity looks up an entity's timeline
func (t Timeline) Entity(id EntityID) (EntityTimeline, bool) {
	for _, e := range t.Entities {
		if e.ID == id {
			return e, true
		}
	}
	return EntityTimeline{}, false
}

func (t Timeline) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range t.Entities {
		if i > 0 {
			buf.WriteByte(',')
		}
		value, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		buf.WriteString(strconv.Quote(strconv.FormatInt(int64(e.ID), 10)))
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (t *Timeline) UnmarshalJSON(data []byte) error {
	parsed := gjson.ParseBytes(data)
	if !parsed.IsObject() {
		return fmt.Errorf("timeline must be an object")
	}

	var out Timeline
	var err error
	parsed.ForEach(func(key, value gjson.Result) bool {
		var id int64
		id, err = strconv.ParseInt(key.String(), 10, 64)
		if err != nil {
			err = fmt.Errorf("invalid entity id %q: %w", key.String(), err)
			return false
		}
		e := EntityTimeline{ID: EntityID(id)}
		if err = json.Unmarshal([]byte(value.Raw), &e); err != nil {
			return false
		}
		out.Entities = append(out.Entities, e)
		return true
	})
	if err != nil {
		return err
	}
	*t = out
	return nil
}

// NormalizeHistory sorts events by tick. Events sharing a tick keep their input
// order. The input slice is not modified.
func NormalizeHistory(events []StatusEvent) History {
	if len(events) == 0 {
		return History{Missing: true}
	}

	sorted := make([]StatusEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Tick < sorted[j].Tick
	})
	return History{Events: sorted}
}

// Normalize renders the registry as a Timeline with ordered histories and
// explicit markers for entities without objects and objects without events.
func Normalize(reg *Registry) Timeline {
	var t Timeline
	for _, e := range reg.Entities() {
		et := EntityTimeline{ID: e.ID, HeroName: e.Label, Team: e.Team}

		owned := reg.Objects().Owned(e.ID)
		if len(owned) == 0 {
			et.Items = Items{None: true}
		}
		for _, obj := range owned {
			et.Items.Objects = append(et.Items.Objects, ObjectTimeline{
				ID:      obj.Key.ObjectID,
				Name:    obj.Name,
				History: NormalizeHistory(obj.History),
			})
		}

		t.Entities = append(t.Entities, et)
	}
	return t
}
