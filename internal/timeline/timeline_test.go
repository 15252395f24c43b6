package timeline

import (
	"testing"

	"replay-analyzer/internal/matchlog"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, doc string) *matchlog.Log {
	t.Helper()
	l, err := matchlog.Parse([]byte(doc))
	require.NoError(t, err)
	return l
}

func build(t *testing.T, doc string) (*Registry, AttributionStats) {
	t.Helper()
	l := mustParse(t, doc)
	schema := matchlog.DefaultSchema()
	reg, _ := ResolveRegistry(l, schema)
	stats := Attribute(l, schema, reg)
	return reg, stats
}

func TestResolveRegistry_MissingRoster(t *testing.T) {
	schema := matchlog.DefaultSchema()

	reg, stats := ResolveRegistry(mustParse(t, `{"items": {}}`), schema)
	assert.Equal(t, 0, reg.Len())
	assert.Contains(t, stats.Reason, `"heroes"`)

	reg, stats = ResolveRegistry(mustParse(t, `{"heroes": {"100": {}}}`), schema)
	assert.Equal(t, 0, reg.Len())
	assert.Contains(t, stats.Reason, `"-1"`)
}

func TestResolveRegistry_SkipsNoiseAndDuplicates(t *testing.T) {
	l := mustParse(t, `{"heroes": {"-1": {
		"Hero_A": {"playerID": 5, "teamNum": 2},
		"Hero_B": {"teamNum": 3},
		"Hero_C": {"playerID": 7, "teamNum": 3},
		"Hero_D": {"playerID": 5}
	}}}`)

	reg, stats := ResolveRegistry(l, matchlog.DefaultSchema())
	require.Equal(t, 2, reg.Len())
	assert.Equal(t, 4, stats.Entries)
	assert.Equal(t, []string{"Hero_B"}, stats.MissingOwner)
	assert.Equal(t, []string{"Hero_D"}, stats.Duplicates)
	assert.Empty(t, stats.Reason)

	a, ok := reg.Entity(5)
	require.True(t, ok)
	assert.Equal(t, "Hero_A", a.Label, "first roster entry keeps the identity")
	assert.EqualValues(t, 2, a.Team)

	entities := reg.Entities()
	assert.Equal(t, EntityID(5), entities[0].ID)
	assert.Equal(t, EntityID(7), entities[1].ID)
}

func TestAttribute_BootsScenario(t *testing.T) {
	reg, stats := build(t, `{
		"heroes": {"-1": {"Hero_A": {"playerID": 5}}},
		"items": {
			"100": {"1": {"playerOwnerID": 5, "name": "Boots"}},
			"200": {"1": {"playerOwnerID": 5, "deleted": true}}
		}
	}`)

	assert.Equal(t, 2, stats.Attributed)
	assert.Equal(t, 1, stats.Created)

	tl := Normalize(reg)
	e, ok := tl.Entity(5)
	require.True(t, ok)
	require.Len(t, e.Items.Objects, 1)

	obj := e.Items.Objects[0]
	assert.Equal(t, "1", obj.ID)
	assert.Equal(t, "Boots", obj.Name)
	assert.Equal(t, []StatusEvent{
		{Tick: 100, Status: StatusPurchased},
		{Tick: 200, Status: StatusDeleted},
	}, obj.History.Events)
}

func TestAttribute_DropsUnknownAndMalformed(t *testing.T) {
	reg, stats := build(t, `{
		"heroes": {"-1": {"Hero_A": {"playerID": 5}}},
		"items": {
			"10": {
				"1": {"playerOwnerID": 99, "name": "Ward"},
				"2": {"name": "Orphan"},
				"3": {"playerOwnerID": "5", "name": "Stringly"},
				"4": 17
			},
			"oops": {"5": {"playerOwnerID": 5, "name": "Lost"}}
		}
	}`)

	assert.Equal(t, 4, stats.Events)
	assert.Equal(t, 0, stats.Attributed)
	assert.Equal(t, 1, stats.UnknownOwner)
	assert.Equal(t, 2, stats.MissingOwner)
	assert.Equal(t, 1, stats.Malformed)
	assert.Equal(t, 4, stats.Dropped())
	assert.Equal(t, []string{"oops"}, stats.MalformedTicks)
	assert.Equal(t, 0, reg.Objects().Len())
}

func TestAttribute_UnknownNameSentinel(t *testing.T) {
	reg, _ := build(t, `{
		"heroes": {"-1": {"Hero_A": {"playerID": 5}}},
		"items": {
			"50": {"9": {"playerOwnerID": 5, "deleted": true}},
			"60": {"9": {"playerOwnerID": 5, "name": "Late Name"}}
		}
	}`)

	obj, ok := reg.Objects().Get(ObjectKey{Owner: 5, ObjectID: "9"})
	require.True(t, ok)
	assert.Equal(t, matchlog.DefaultSchema().UnknownItemName, obj.Name, "the first event decides the name")
	assert.Len(t, obj.History, 2)
}

func TestAttribute_NoCrossOwnerBleed(t *testing.T) {
	reg, _ := build(t, `{
		"heroes": {"-1": {
			"Hero_A": {"playerID": 1},
			"Hero_B": {"playerID": 2}
		}},
		"items": {
			"10": {"7": {"playerOwnerID": 1, "name": "Blink"}},
			"20": {"7": {"playerOwnerID": 2, "name": "Dagon"}},
			"30": {"7": {"playerOwnerID": 1, "deleted": true}}
		}
	}`)

	a, ok := reg.Objects().Get(ObjectKey{Owner: 1, ObjectID: "7"})
	require.True(t, ok)
	b, ok := reg.Objects().Get(ObjectKey{Owner: 2, ObjectID: "7"})
	require.True(t, ok)

	assert.Equal(t, "Blink", a.Name)
	assert.Equal(t, []StatusEvent{{10, StatusPurchased}, {30, StatusDeleted}}, a.History)
	assert.Equal(t, "Dagon", b.Name)
	assert.Equal(t, []StatusEvent{{20, StatusPurchased}}, b.History)
}

func TestAttribute_RepeatedStatusesAreKept(t *testing.T) {
	reg, _ := build(t, `{
		"heroes": {"-1": {"Hero_A": {"playerID": 1}}},
		"items": {
			"10": {"3": {"playerOwnerID": 1, "name": "Tango"}},
			"11": {"3": {"playerOwnerID": 1, "name": "Tango"}},
			"12": {"3": {"playerOwnerID": 1, "name": "Tango"}}
		}
	}`)

	obj, _ := reg.Objects().Get(ObjectKey{Owner: 1, ObjectID: "3"})
	assert.Len(t, obj.History, 3)
}

func TestNormalizeHistory_SortsStablyAndIsIdempotent(t *testing.T) {
	raw := []StatusEvent{
		{Tick: 300, Status: StatusPurchased},
		{Tick: 100, Status: StatusDeleted},
		{Tick: 100, Status: StatusPurchased},
		{Tick: 50, Status: StatusPurchased},
	}

	once := NormalizeHistory(raw)
	assert.Equal(t, []StatusEvent{
		{Tick: 50, Status: StatusPurchased},
		{Tick: 100, Status: StatusDeleted},
		{Tick: 100, Status: StatusPurchased},
		{Tick: 300, Status: StatusPurchased},
	}, once.Events)
	assert.EqualValues(t, 300, raw[0].Tick, "input is not reordered")

	twice := NormalizeHistory(once.Events)
	a, err := json.Marshal(once)
	require.NoError(t, err)
	b, err := json.Marshal(twice)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestNormalize_Markers(t *testing.T) {
	assert.True(t, NormalizeHistory(nil).Missing)

	reg, _ := build(t, `{"heroes": {"-1": {"Hero_A": {"playerID": 3}}}, "items": {}}`)
	tl := Normalize(reg)
	require.Len(t, tl.Entities, 1)
	assert.True(t, tl.Entities[0].Items.None)

	data, err := json.Marshal(tl)
	require.NoError(t, err)
	assert.JSONEq(t, `{"3": {"hero_name": "Hero_A", "items": "No items purchased"}}`, string(data))

	missing, err := json.Marshal(ObjectTimeline{Name: "x", History: History{Missing: true}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name": "x", "history": "No history recorded"}`, string(missing))

	empty, err := json.Marshal(ObjectTimeline{Name: "x", History: History{Events: []StatusEvent{}}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name": "x", "history": []}`, string(empty))
}

func TestTimeline_JSONKeepsRosterOrder(t *testing.T) {
	reg, _ := build(t, `{
		"heroes": {"-1": {
			"Hero_Z": {"playerID": 9, "teamNum": 3},
			"Hero_Y": {"playerID": 10, "teamNum": 2}
		}},
		"items": {
			"5": {"1": {"playerOwnerID": 10, "name": "Boots"}, "2": {"playerOwnerID": 10, "name": "Aegis"}}
		}
	}`)

	tl := Normalize(reg)
	data, err := json.Marshal(tl)
	require.NoError(t, err)

	var decoded Timeline
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Entities, 2)
	assert.Equal(t, EntityID(9), decoded.Entities[0].ID)
	assert.True(t, decoded.Entities[0].Items.None)
	assert.Equal(t, EntityID(10), decoded.Entities[1].ID)
	require.Len(t, decoded.Entities[1].Items.Objects, 2)
	assert.Equal(t, "1", decoded.Entities[1].Items.Objects[0].ID)
	assert.Equal(t, "Aegis", decoded.Entities[1].Items.Objects[1].Name)
	assert.Equal(t, tl, decoded)
}
