package analyzer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"replay-analyzer/internal/itemization"
	"replay-analyzer/internal/matchlog"
	"replay-analyzer/internal/timesync"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const match = `{
 "heroes": {"-1": {
  "CDOTA_Unit_Hero_Axe": {"playerID": 0, "teamNum": 2},
  "CDOTA_Unit_Hero_Lina": {"playerID": 1, "teamNum": 3},
  "CDOTA_Unit_Hero_Pudge": {"teamNum": 3}
 }},
 "items": {
  "30": {"1": {"playerOwnerID": 0, "name": "CDOTA_Item_Tango"}},
  "70": {"2": {"playerOwnerID": 0, "name": "CDOTA_Item_Boots"}, "3": {"playerOwnerID": 7, "name": "CDOTA_Item_Ward"}},
  "95": {"1": {"playerOwnerID": 0, "deleted": true}}
 },
 "combatLog": {
  "500": {"DOTA_COMBATLOG_DEATH": [{"target": "npc_dota_badguys_fort"}]}
 },
 "buildings": {
  "1": {"20": {"buildingType": "CDOTA_BaseNPC_Fort", "teamNum": 3}},
  "800": {"20": {"deleted": true}}
 }
}`

var fixed = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func parse(t *testing.T, doc string) *matchlog.Log {
	t.Helper()
	l, err := matchlog.Parse([]byte(doc))
	require.NoError(t, err)
	return l
}

func TestAnalyze(t *testing.T) {
	report, err := Analyze(parse(t, match), matchlog.DefaultSchema(), Options{
		MatchID: "8182713861",
		Now:     func() time.Time { return fixed },
	})
	require.NoError(t, err)

	assert.Equal(t, "8182713861", report.MatchID)
	assert.Equal(t, fixed, report.ProcessedAt)
	assert.Equal(t, timesync.StatusAligned, report.Status)
	assert.EqualValues(t, 300, report.Offset)
	require.NotNil(t, report.Aligned)

	require.NotNil(t, report.End)
	assert.EqualValues(t, 800, report.End.Tick)
	assert.EqualValues(t, 500, report.End.CombatTick)
	assert.EqualValues(t, 3, report.End.LosingTeam)

	assert.Equal(t, Stats{
		Entities:      2,
		RosterSkipped: 1,
		Objects:       2,
		Events:        4,
		Attributed:    3,
		Dropped:       1,
	}, report.Stats)

	require.Len(t, report.Summary, 1)
	assert.Equal(t, "Axe", report.Summary[0].Hero)
	require.Len(t, report.Summary[0].Items, 2)
	assert.Equal(t, []string{"Tango"}, report.Summary[0].Items[0].Items)
	assert.Equal(t, []string{"Boots"}, report.Summary[0].Items[1].Items)

	require.Len(t, report.BuildPaths, 1)
	assert.Equal(t, itemization.HeroPath{Hero: "Axe", Path: []itemization.Purchase{
		{Tick: 30, Item: "Tango"},
		{Tick: 70, Item: "Boots"},
	}}, report.BuildPaths[0])

	lina, ok := report.Timeline.Entity(1)
	require.True(t, ok)
	assert.True(t, lina.Items.None)
}

func TestAnalyze_CannotAlignStillAttributes(t *testing.T) {
	report, err := Analyze(parse(t, `{
		"heroes": {"-1": {"Hero_A": {"playerID": 4}}},
		"items": {"10": {"1": {"playerOwnerID": 4, "name": "Boots"}}}
	}`), matchlog.DefaultSchema(), Options{})
	require.NoError(t, err)

	assert.Equal(t, timesync.StatusCannotAlign, report.Status)
	assert.Contains(t, report.Reason, "combatLog")
	assert.Nil(t, report.End)
	assert.Nil(t, report.Aligned)
	assert.Equal(t, 1, report.Stats.Attributed)
}

func TestAnalyze_StrictViolation(t *testing.T) {
	schema := matchlog.DefaultSchema()
	schema.MaxOffset = 10

	report, err := Analyze(parse(t, match), schema, Options{MatchID: "m", Strict: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, timesync.ErrOffsetOutOfRange)
	require.NotNil(t, report)
	assert.Equal(t, timesync.StatusCannotAlign, report.Status)

	report, err = Analyze(parse(t, match), schema, Options{MatchID: "m"})
	require.NoError(t, err)
	assert.Equal(t, timesync.StatusCannotAlign, report.Status)
	assert.Contains(t, report.Reason, "offset")
	assert.Equal(t, 3, report.Stats.Attributed)
}

func TestAnalyze_NilLog(t *testing.T) {
	_, err := Analyze(nil, matchlog.DefaultSchema(), Options{})
	assert.ErrorIs(t, err, ErrNoLog)
}

func TestAnalyzeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "42_combined_log.json")
	require.NoError(t, os.WriteFile(path, []byte(match), 0644))

	report, err := AnalyzeFile(path, matchlog.DefaultSchema(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "42", report.MatchID)
	assert.Equal(t, timesync.StatusAligned, report.Status)
}

func TestWriteOutputs(t *testing.T) {
	report, err := Analyze(parse(t, match), matchlog.DefaultSchema(), Options{MatchID: "77"})
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "out")
	written, err := WriteOutputs(dir, report)
	require.NoError(t, err)
	assert.Len(t, written, 5)

	text, err := os.ReadFile(filepath.Join(dir, ItemizationTextFile))
	require.NoError(t, err)
	assert.Equal(t, "\n Axe: \n min 0 > Tango \n min 1 > Boots\n", string(text))

	aligned, err := matchlog.Load(filepath.Join(dir, "77_updated_log.json"))
	require.NoError(t, err)
	_, ok := aligned.Section("combatLog")
	assert.True(t, ok)

	data, err := os.ReadFile(filepath.Join(dir, TimelineFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n \"0\": {")

	paths, err := os.ReadFile(filepath.Join(dir, BuildPathFile))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"hero": "Axe", "path": [{"tick": 30, "item": "Tango"}, {"tick": 70, "item": "Boots"}]}]`, string(paths))
}

func TestWriteOutputs_NoAlignedLog(t *testing.T) {
	report, err := Analyze(parse(t, `{"heroes": {"-1": {"Hero_A": {"playerID": 4}}}}`), matchlog.DefaultSchema(), Options{MatchID: "9"})
	require.NoError(t, err)

	dir := t.TempDir()
	written, err := WriteOutputs(dir, report)
	require.NoError(t, err)
	assert.Len(t, written, 4)

	summary, err := os.ReadFile(filepath.Join(dir, ItemizationJSONFile))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(summary))

	paths, err := os.ReadFile(filepath.Join(dir, BuildPathFile))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(paths))
}
