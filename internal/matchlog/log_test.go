package matchlog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `{
 "heroes": {"-1": {"CDOTA_Unit_Hero_Axe": {"playerID": 5, "teamNum": 2}}},
 "combatLog": {"30": {"x": 1}, "10": {"x": 2}, "bogus": {}, "20": {"x": 3}},
 "buildings": {}
}`

func TestParse_Rejects(t *testing.T) {
	_, err := Parse([]byte("   "))
	assert.ErrorIs(t, err, ErrEmptyLog)

	_, err = Parse([]byte(`{"heroes": `))
	assert.ErrorIs(t, err, ErrInvalidJSON)

	_, err = Parse([]byte(`[1, 2]`))
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestTicks_OrderedAndMalformedReported(t *testing.T) {
	l, err := Parse([]byte(sampleLog))
	require.NoError(t, err)

	entries, malformed := l.Ticks("combatLog")
	require.Len(t, entries, 3)
	assert.Equal(t, []int64{10, 20, 30}, []int64{entries[0].Tick, entries[1].Tick, entries[2].Tick})
	assert.Equal(t, []string{"bogus"}, malformed)

	entries, malformed = l.Ticks("missing")
	assert.Empty(t, entries)
	assert.Empty(t, malformed)
}

func TestTicks_StableForEqualTicks(t *testing.T) {
	// "007" and "7" parse to the same tick; document order decides
	l, err := Parse([]byte(`{"s": {"7": {"n": "a"}, "007": {"n": "b"}, "3": {"n": "c"}}}`))
	require.NoError(t, err)

	entries, _ := l.Ticks("s")
	require.Len(t, entries, 3)
	assert.Equal(t, "3", entries[0].Key)
	assert.Equal(t, "7", entries[1].Key)
	assert.Equal(t, "007", entries[2].Key)
}

func TestFieldReaders(t *testing.T) {
	l, err := Parse([]byte(`{"r": {"i": 5, "f": 1.5, "s": "x", "t": true, "n": null, "q": "7"}}`))
	require.NoError(t, err)
	r, ok := l.Section("r")
	require.True(t, ok)

	v, ok := Int(r, "i")
	assert.True(t, ok)
	assert.EqualValues(t, 5, v)

	_, ok = Int(r, "f")
	assert.False(t, ok, "fractions are not ids")
	_, ok = Int(r, "q")
	assert.False(t, ok, "numeric strings are not ids")

	s, ok := String(r, "s")
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	assert.True(t, IsTrue(r, "t"))
	assert.False(t, IsTrue(r, "s"))
	assert.True(t, Has(r, "n"))
	assert.False(t, Has(r, "zzz"))
}

func TestWithSection_LeavesOriginalUntouched(t *testing.T) {
	l, err := Parse([]byte(sampleLog))
	require.NoError(t, err)
	before := string(l.Bytes())

	updated, err := l.WithSection("combatLog", []byte(`{"99": {"x": 9}}`))
	require.NoError(t, err)

	assert.Equal(t, before, string(l.Bytes()))
	assert.Equal(t, l.SectionNames(), updated.SectionNames())

	entries, _ := updated.Ticks("combatLog")
	require.Len(t, entries, 1)
	assert.EqualValues(t, 99, entries[0].Tick)

	heroesBefore, _ := l.Section("heroes")
	heroesAfter, _ := updated.Section("heroes")
	assert.Equal(t, heroesBefore.Raw, heroesAfter.Raw)

	_, err = l.WithSection("combatLog", []byte(`{"broken"`))
	assert.True(t, errors.Is(err, ErrInvalidJSON))
}

func TestLoad_PlainAndGzip(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "1_2_combined_log.json")
	require.NoError(t, os.WriteFile(plain, []byte(sampleLog), 0644))

	gzPath := filepath.Join(dir, "3_4_combined_log.json.gz")
	f, err := os.Create(gzPath)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(sampleLog))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	for _, path := range []string{plain, gzPath} {
		l, err := Load(path)
		require.NoError(t, err, path)
		_, ok := l.Section("heroes")
		assert.True(t, ok, path)
	}

	_, err = Load(filepath.Join(dir, "nope.json"))
	assert.Error(t, err)
}

func TestWrite_RoundTrip(t *testing.T) {
	l, err := Parse([]byte(sampleLog))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, Write(path, l))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, l.SectionNames(), reloaded.SectionNames())
}

func TestMatchIDFromPath(t *testing.T) {
	cases := map[string]string{
		"8182713861_1523041035_combined_log.json":    "8182713861_1523041035",
		"/tmp/8182713861_1523041035_updated_log.json": "8182713861_1523041035",
		"warm/42_combined_log.json.gz":               "42",
		"match.json":                                 "match",
	}
	for in, want := range cases {
		assert.Equal(t, want, MatchIDFromPath(in), in)
	}
}

func TestParseSchema(t *testing.T) {
	schema, err := ParseSchema([]byte("items_section: inventory\nanchor_targets: [a, b, c]\n"))
	require.NoError(t, err)
	assert.Equal(t, "inventory", schema.ItemsSection)
	assert.Equal(t, []string{"a", "b", "c"}, schema.AnchorTargets)
	assert.Equal(t, "heroes", schema.RosterSection, "untouched keys keep defaults")
	assert.False(t, schema.RejectNegativeOffset)

	schema, err = ParseSchema([]byte("reject_negative_offset: true\n"))
	require.NoError(t, err)
	assert.True(t, schema.RejectNegativeOffset)

	_, err = ParseSchema([]byte("roster_section: \"\"\n"))
	assert.Error(t, err)

	_, err = ParseSchema([]byte("max_offset: -1\n"))
	assert.Error(t, err)
}
