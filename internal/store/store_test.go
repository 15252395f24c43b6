package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"replay-analyzer/internal/analyzer"
	"replay-analyzer/internal/timeline"
	"replay-analyzer/internal/timesync"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "matches.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.CreateTables(context.Background()))
	return s
}

func sampleReport(id string, at time.Time) *analyzer.Report {
	return &analyzer.Report{
		MatchID:     id,
		ProcessedAt: at,
		Status:      timesync.StatusAligned,
		Offset:      300,
		End:         &analyzer.MatchEnd{Tick: 800, LosingTeam: 3},
		Stats:       analyzer.Stats{Entities: 2, Attributed: 2},
		Timeline: timeline.Timeline{Entities: []timeline.EntityTimeline{
			{ID: 5, HeroName: "Hero_A", Team: 2, Items: timeline.Items{Objects: []timeline.ObjectTimeline{
				{ID: "1", Name: "Boots", History: timeline.History{Events: []timeline.StatusEvent{
					{Tick: 100, Status: timeline.StatusPurchased},
					{Tick: 200, Status: timeline.StatusDeleted},
				}}},
			}}},
			{ID: 6, HeroName: "Hero_B", Items: timeline.Items{None: true}},
		}},
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	report := sampleReport("m1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, s.SaveReport(ctx, report))
	// saving again replaces rather than duplicates
	require.NoError(t, s.SaveReport(ctx, report))

	tl, err := s.LoadTimeline(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, report.Timeline, tl)

	count, err := s.ItemEventCount(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMatchExists(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	exists, err := s.MatchExists(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.SaveReport(ctx, sampleReport("m1", time.Now().UTC())))
	exists, err = s.MatchExists(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLoadTimeline_NotFound(t *testing.T) {
	s := openTemp(t)
	_, err := s.LoadTimeline(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListMatches(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveReport(ctx, sampleReport("old", base)))
	require.NoError(t, s.SaveReport(ctx, sampleReport("new", base.Add(time.Hour))))

	matches, err := s.ListMatches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "new", matches[0].MatchID)
	assert.Equal(t, "aligned", matches[0].Status)
	assert.EqualValues(t, 300, matches[0].Offset)
	assert.EqualValues(t, 3, matches[0].LosingTeam)
	assert.Equal(t, base.Add(time.Hour), matches[0].ProcessedAt)

	limited, err := s.ListMatches(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
