package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/Dosada05/league-standings/models"
	"github.com/Dosada05/league-standings/testdb"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchResultRepository(t *testing.T) {
	db := testdb.Open(t)
	tables := NewStandingsTableRepository(db)
	repo := NewMatchResultRepository(db)
	ctx := context.Background()

	table := newTable(models.StandingsScope{DivisionID: "div-1", Season: strPtr("2024")})
	require.NoError(t, tables.Create(ctx, nil, table))

	base := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)
	second := &models.AppliedMatchResult{
		MatchID: "m-2", StandingsTableID: table.ID, HomeTeam: "Tigers", AwayTeam: "Lions",
		HomeScore: 2, AwayScore: 2, AppliedAt: base.Add(time.Hour),
	}
	first := &models.AppliedMatchResult{
		MatchID: "m-1", StandingsTableID: table.ID, HomeTeam: "Lions", AwayTeam: "Tigers",
		HomeScore: 3, AwayScore: 1, AppliedAt: base,
	}

	t.Run("create", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, nil, second))
		require.NoError(t, repo.Create(ctx, nil, first))
	})

	t.Run("duplicate match id", func(t *testing.T) {
		dup := *first
		dup.HomeScore = 0
		assert.ErrorIs(t, repo.Create(ctx, nil, &dup), ErrMatchResultAlreadyApplied)
	})

	t.Run("unknown table", func(t *testing.T) {
		err := repo.Create(ctx, nil, &models.AppliedMatchResult{
			MatchID: "m-3", StandingsTableID: uuid.NewString(), HomeTeam: "A", AwayTeam: "B",
		})
		assert.ErrorIs(t, err, ErrStandingsTableNotFound)
	})

	t.Run("exists", func(t *testing.T) {
		exists, err := repo.Exists(ctx, nil, "m-1")
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = repo.Exists(ctx, nil, "m-404")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("list in applied order", func(t *testing.T) {
		results, err := repo.ListByTable(ctx, nil, table.ID)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "m-1", results[0].MatchID)
		assert.Equal(t, "m-2", results[1].MatchID)
		assert.Equal(t, 3, results[0].HomeScore)
		assert.True(t, base.Equal(results[0].AppliedAt))
	})

	t.Run("list empty table", func(t *testing.T) {
		results, err := repo.ListByTable(ctx, nil, uuid.NewString())
		require.NoError(t, err)
		assert.NotNil(t, results)
		assert.Empty(t, results)
	})
}
