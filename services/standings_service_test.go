package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/league-standings/models"
	"github.com/Dosada05/league-standings/realtime"
	"github.com/Dosada05/league-standings/repositories"
	"github.com/Dosada05/league-standings/standings"
	"github.com/Dosada05/league-standings/storage"
	"github.com/Dosada05/league-standings/testdb"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type memoryUploader struct {
	mu        sync.Mutex
	objects   map[string][]byte
	failAfter int
	uploads   int
}

func newMemoryUploader() *memoryUploader {
	return &memoryUploader{objects: make(map[string][]byte), failAfter: -1}
}

func (u *memoryUploader) Upload(_ context.Context, key string, _ string, reader io.Reader) (*storage.UploadResult, error) {
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failAfter >= 0 && u.uploads >= u.failAfter {
		return nil, errors.New("bucket unavailable")
	}
	u.uploads++
	u.objects[key] = body
	return &storage.UploadResult{Key: key, Location: u.GetPublicURL(key)}, nil
}

func (u *memoryUploader) Delete(_ context.Context, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.objects, key)
	return nil
}

func (u *memoryUploader) GetPublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

func (u *memoryUploader) object(key string) ([]byte, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	body, ok := u.objects[key]
	return body, ok
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []realtime.Message
	rooms    []string
}

func (n *recordingNotifier) BroadcastToRoom(roomID string, message interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rooms = append(n.rooms, roomID)
	if m, ok := message.(realtime.Message); ok {
		n.messages = append(n.messages, m)
	}
}

type serviceFixture struct {
	db       *sqlx.DB
	svc      StandingsService
	uploader *memoryUploader
	notifier *recordingNotifier
}

func setupService(t *testing.T, withUploader bool) serviceFixture {
	t.Helper()
	db := testdb.Open(t)

	f := serviceFixture{db: db, notifier: &recordingNotifier{}}
	var uploader storage.FileUploader
	if withUploader {
		f.uploader = newMemoryUploader()
		uploader = f.uploader
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewStandingsService(
		db,
		repositories.NewStandingsTableRepository(db),
		repositories.NewMatchResultRepository(db),
		uploader,
		f.notifier,
		logger,
	)
	return f
}

func strPtr(s string) *string { return &s }

func createSeasonTable(t *testing.T, svc StandingsService, season string, teams ...string) *models.StandingsTable {
	t.Helper()
	table, err := svc.CreateTable(context.Background(), CreateStandingsTableInput{
		DivisionID: "div-1",
		Season:     strPtr(season),
		Teams:      teams,
	})
	require.NoError(t, err)
	return table
}

func TestStandingsService_CreateTable(t *testing.T) {
	f := setupService(t, false)
	ctx := context.Background()

	table, err := f.svc.CreateTable(ctx, CreateStandingsTableInput{
		DivisionID: "  div-1 ",
		Season:     strPtr("2024"),
		Teams:      []string{"Zeta", "alpha", "Mid"},
	})
	require.NoError(t, err)

	_, err = uuid.Parse(table.ID)
	assert.NoError(t, err)
	assert.Equal(t, "div-1", table.DivisionID)
	assert.Equal(t, models.ScopeDivision, table.Kind())
	require.Len(t, table.Standings, 3)
	assert.Equal(t, "alpha", table.Standings[0].TeamName)
	assert.Equal(t, "Mid", table.Standings[1].TeamName)
	assert.Equal(t, "Zeta", table.Standings[2].TeamName)

	fetched, err := f.svc.GetTable(ctx, table.ID)
	require.NoError(t, err)
	assert.Equal(t, table.Standings, fetched.Standings)
	assert.Nil(t, fetched.SnapshotURL)
}

func TestStandingsService_CreateTable_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input CreateStandingsTableInput
		is    []error
	}{
		{
			name:  "missing division",
			input: CreateStandingsTableInput{DivisionID: " ", Season: strPtr("2024")},
			is:    []error{ErrValidationFailed, models.ErrScopeDivisionRequired},
		},
		{
			name:  "tournament and cup",
			input: CreateStandingsTableInput{DivisionID: "div-1", TournamentID: strPtr("t-1"), CupID: strPtr("c-1")},
			is:    []error{ErrValidationFailed, models.ErrScopeAmbiguous},
		},
		{
			name:  "season table without season",
			input: CreateStandingsTableInput{DivisionID: "div-1", Season: strPtr("  ")},
			is:    []error{ErrValidationFailed, models.ErrScopeSeasonRequired},
		},
		{
			name:  "duplicate teams",
			input: CreateStandingsTableInput{DivisionID: "div-1", CupID: strPtr("c-1"), Teams: []string{"Lions", "LIONS"}},
			is:    []error{ErrValidationFailed, standings.ErrInvalidInput},
		},
		{
			name:  "blank team",
			input: CreateStandingsTableInput{DivisionID: "div-1", CupID: strPtr("c-1"), Teams: []string{"Lions", " "}},
			is:    []error{ErrValidationFailed, standings.ErrInvalidInput},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupService(t, false)
			_, err := f.svc.CreateTable(context.Background(), tt.input)
			require.Error(t, err)
			for _, target := range tt.is {
				assert.ErrorIs(t, err, target)
			}
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestStandingsService_CreateTable_Conflict(t *testing.T) {
	f := setupService(t, false)
	ctx := context.Background()

	input := CreateStandingsTableInput{DivisionID: "div-1", TournamentID: strPtr("t-1")}
	_, err := f.svc.CreateTable(ctx, input)
	require.NoError(t, err)

	_, err = f.svc.CreateTable(ctx, input)
	assert.ErrorIs(t, err, ErrStandingsTableConflict)
}

func TestStandingsService_GetTable_NotFound(t *testing.T) {
	f := setupService(t, false)
	_, err := f.svc.GetTable(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrStandingsTableNotFound)
}

func TestStandingsService_ListTables(t *testing.T) {
	f := setupService(t, false)
	ctx := context.Background()

	for _, season := range []string{"2021", "2022", "2023"} {
		createSeasonTable(t, f.svc, season)
	}
	_, err := f.svc.CreateTable(ctx, CreateStandingsTableInput{DivisionID: "div-2", CupID: strPtr("c-1")})
	require.NoError(t, err)

	all, err := f.svc.ListTables(ctx, ListStandingsTablesFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	division, err := f.svc.ListTables(ctx, ListStandingsTablesFilter{DivisionID: strPtr("div-1"), Limit: 2})
	require.NoError(t, err)
	assert.Len(t, division, 2)

	blankFilter, err := f.svc.ListTables(ctx, ListStandingsTablesFilter{DivisionID: strPtr(" "), Offset: -5, Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, blankFilter, 4)

	cup, err := f.svc.ListTables(ctx, ListStandingsTablesFilter{CupID: strPtr("c-1")})
	require.NoError(t, err)
	require.Len(t, cup, 1)
	assert.Equal(t, "div-2", cup[0].DivisionID)
}

func TestStandingsService_RecordMatchResult(t *testing.T) {
	f := setupService(t, false)
	ctx := context.Background()
	table := createSeasonTable(t, f.svc, "2024")

	updated, err := f.svc.RecordMatchResult(ctx, table.ID, RecordMatchResultInput{
		MatchID: "m-1", HomeTeam: "Lions", AwayTeam: "Tigers", HomeScore: 3, AwayScore: 1,
	})
	require.NoError(t, err)
	require.Len(t, updated.Standings, 2)
	assert.Equal(t, models.StandingEntry{
		TeamName: "Lions", Played: 1, Won: 1, GoalsFor: 3, GoalsAgainst: 1, GoalDifference: 2, Points: 3,
	}, updated.Standings[0])
	assert.Equal(t, models.StandingEntry{
		TeamName: "Tigers", Played: 1, Lost: 1, GoalsFor: 1, GoalsAgainst: 3, GoalDifference: -2,
	}, updated.Standings[1])

	_, err = f.svc.RecordMatchResult(ctx, table.ID, RecordMatchResultInput{
		MatchID: "m-2", HomeTeam: "tigers", AwayTeam: "lions", HomeScore: 2, AwayScore: 2,
	})
	require.NoError(t, err)

	stored, err := f.svc.GetTable(ctx, table.ID)
	require.NoError(t, err)
	require.Len(t, stored.Standings, 2)
	assert.Equal(t, "Lions", stored.Standings[0].TeamName)
	assert.Equal(t, 4, stored.Standings[0].Points)
	assert.Equal(t, 2, stored.Standings[0].Played)
	assert.Equal(t, 1, stored.Standings[1].Points)
	assert.True(t, stored.UpdatedAt.After(table.UpdatedAt) || stored.UpdatedAt.Equal(table.UpdatedAt))

	results, err := f.svc.ListMatchResults(ctx, table.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "m-1", results[0].MatchID)
	assert.Equal(t, "m-2", results[1].MatchID)

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	require.Len(t, f.notifier.messages, 2)
	assert.Equal(t, realtime.MessageStandingsUpdated, f.notifier.messages[0].Type)
	assert.Equal(t, realtime.StandingsRoom(table.ID), f.notifier.rooms[0])
	assert.Equal(t, realtime.StandingsRoom(table.ID), f.notifier.messages[1].RoomID)
}

func TestStandingsService_ConcurrentWritesAreSerialized(t *testing.T) {
	f := setupService(t, false)
	ctx := context.Background()
	table := createSeasonTable(t, f.svc, "2024", "Lions", "Ghosts")

	const matches = 40
	var g errgroup.Group
	for i := 0; i < matches; i++ {
		g.Go(func() error {
			_, err := f.svc.RecordMatchResult(ctx, table.ID, RecordMatchResultInput{
				MatchID:   fmt.Sprintf("m-%d", i),
				HomeTeam:  "Lions",
				AwayTeam:  fmt.Sprintf("Opponent %d", i),
				HomeScore: 1,
				AwayScore: 0,
			})
			return err
		})
	}
	g.Go(func() error {
		_, err := f.svc.RemoveTeam(ctx, table.ID, "ghosts")
		return err
	})
	require.NoError(t, g.Wait())

	lions, err := f.svc.GetStanding(ctx, table.ID, "Lions")
	require.NoError(t, err)
	assert.Equal(t, matches, lions.Played)
	assert.Equal(t, matches, lions.Won)
	assert.Equal(t, matches*standings.PointsForWin, lions.Points)

	_, err = f.svc.GetStanding(ctx, table.ID, "Ghosts")
	assert.ErrorIs(t, err, ErrTeamNotInTable)

	stored, err := f.svc.GetTable(ctx, table.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Standings, matches+1)

	results, err := f.svc.ListMatchResults(ctx, table.ID)
	require.NoError(t, err)
	assert.Len(t, results, matches)
}

func TestStandingsService_MalformedStoredTable(t *testing.T) {
	f := setupService(t, false)
	ctx := context.Background()
	table := createSeasonTable(t, f.svc, "2024", "Lions")

	_, err := f.db.ExecContext(ctx, `UPDATE standings_tables SET standings = ? WHERE id = ?`, `{"teamName":"Lions"}`, table.ID)
	require.NoError(t, err)

	_, err = f.svc.RecordMatchResult(ctx, table.ID, RecordMatchResultInput{
		MatchID: "m-1", HomeTeam: "Lions", AwayTeam: "Tigers", HomeScore: 1, AwayScore: 0,
	})
	assert.ErrorIs(t, err, standings.ErrInvalidInput)
	assert.True(t, IsValidationError(err))

	_, err = f.svc.GetLeaderboard(ctx, table.ID, 10)
	assert.ErrorIs(t, err, standings.ErrInvalidInput)

	results, err := f.svc.ListMatchResults(ctx, table.ID)
	require.Error(t, err)
	assert.Nil(t, results)
}

func TestStandingsService_RecordMatchResult_Rejections(t *testing.T) {
	f := setupService(t, false)
	ctx := context.Background()
	table := createSeasonTable(t, f.svc, "2024", "Lions", "Tigers")

	_, err := f.svc.RecordMatchResult(ctx, table.ID, RecordMatchResultInput{
		MatchID: "m-1", HomeTeam: "Lions", AwayTeam: "Tigers", HomeScore: 1, AwayScore: 0,
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		tableID string
		input   RecordMatchResultInput
		is      []error
	}{
		{
			name:    "replayed match id",
			tableID: table.ID,
			input:   RecordMatchResultInput{MatchID: "m-1", HomeTeam: "Lions", AwayTeam: "Tigers", HomeScore: 1, AwayScore: 0},
			is:      []error{ErrMatchAlreadyApplied},
		},
		{
			name:    "missing match id",
			tableID: table.ID,
			input:   RecordMatchResultInput{MatchID: "  ", HomeTeam: "Lions", AwayTeam: "Tigers"},
			is:      []error{ErrValidationFailed, ErrMatchIDRequired},
		},
		{
			name:    "team plays itself",
			tableID: table.ID,
			input:   RecordMatchResultInput{MatchID: "m-2", HomeTeam: "Lions", AwayTeam: "LIONS", HomeScore: 1},
			is:      []error{ErrValidationFailed, standings.ErrInvalidInput},
		},
		{
			name:    "negative score",
			tableID: table.ID,
			input:   RecordMatchResultInput{MatchID: "m-3", HomeTeam: "Lions", AwayTeam: "Tigers", AwayScore: -1},
			is:      []error{ErrValidationFailed, standings.ErrInvalidInput},
		},
		{
			name:    "score above the storable maximum",
			tableID: table.ID,
			input:   RecordMatchResultInput{MatchID: "m-5", HomeTeam: "Lions", AwayTeam: "Tigers", HomeScore: standings.MaxScore + 1},
			is:      []error{ErrValidationFailed, standings.ErrInvalidInput},
		},
		{
			name:    "unknown table",
			tableID: uuid.NewString(),
			input:   RecordMatchResultInput{MatchID: "m-4", HomeTeam: "Lions", AwayTeam: "Tigers"},
			is:      []error{ErrStandingsTableNotFound},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RecordMatchResult(ctx, tt.tableID, tt.input)
			require.Error(t, err)
			for _, target := range tt.is {
				assert.ErrorIs(t, err, target)
			}
		})
	}

	stored, err := f.svc.GetTable(ctx, table.ID)
	require.NoError(t, err)
	lions, ok := standings.GetStanding(stored.Standings, "Lions")
	require.True(t, ok)
	assert.Equal(t, 1, lions.Played, "rejected results must not change the table")

	results, err := f.svc.ListMatchResults(ctx, table.ID)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestStandingsService_GetStandingAndLeaderboard(t *testing.T) {
	f := setupService(t, false)
	ctx := context.Background()
	table := createSeasonTable(t, f.svc, "2024", "Alpha", "Beta", "Gamma")

	_, err := f.svc.RecordMatchResult(ctx, table.ID, RecordMatchResultInput{
		MatchID: "m-1", HomeTeam: "Gamma", AwayTeam: "Beta", HomeScore: 2, AwayScore: 0,
	})
	require.NoError(t, err)

	entry, err := f.svc.GetStanding(ctx, table.ID, "gamma")
	require.NoError(t, err)
	assert.Equal(t, "Gamma", entry.TeamName)
	assert.Equal(t, 3, entry.Points)

	_, err = f.svc.GetStanding(ctx, table.ID, "Delta")
	assert.ErrorIs(t, err, ErrTeamNotInTable)

	_, err = f.svc.GetStanding(ctx, uuid.NewString(), "Gamma")
	assert.ErrorIs(t, err, ErrStandingsTableNotFound)

	top, err := f.svc.GetLeaderboard(ctx, table.ID, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "Gamma", top[0].TeamName)
	assert.Equal(t, "Alpha", top[1].TeamName)

	none, err := f.svc.GetLeaderboard(ctx, table.ID, 0)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	all, err := f.svc.GetLeaderboard(ctx, table.ID, 50)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStandingsService_RemoveTeam(t *testing.T) {
	f := setupService(t, false)
	ctx := context.Background()
	table := createSeasonTable(t, f.svc, "2024")

	_, err := f.svc.RecordMatchResult(ctx, table.ID, RecordMatchResultInput{
		MatchID: "m-1", HomeTeam: "Lions", AwayTeam: "Tigers", HomeScore: 0, AwayScore: 4,
	})
	require.NoError(t, err)

	removed, err := f.svc.RemoveTeam(ctx, table.ID, "TIGERS")
	require.NoError(t, err)
	assert.True(t, removed)

	stored, err := f.svc.GetTable(ctx, table.ID)
	require.NoError(t, err)
	require.Len(t, stored.Standings, 1)
	assert.Equal(t, "Lions", stored.Standings[0].TeamName)
	assert.Equal(t, 1, stored.Standings[0].Lost, "opponents keep their results")

	removed, err = f.svc.RemoveTeam(ctx, table.ID, "Tigers")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = f.svc.RemoveTeam(ctx, table.ID, " ")
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = f.svc.RemoveTeam(ctx, uuid.NewString(), "Lions")
	assert.ErrorIs(t, err, ErrStandingsTableNotFound)

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	assert.Len(t, f.notifier.messages, 2, "one update for the match, one for the removal")
}

func TestStandingsService_PublishSnapshot(t *testing.T) {
	f := setupService(t, true)
	ctx := context.Background()
	table := createSeasonTable(t, f.svc, "2024", "Lions", "Tigers")

	published, err := f.svc.PublishSnapshot(ctx, table.ID)
	require.NoError(t, err)
	require.NotNil(t, published.SnapshotURL)
	assert.Equal(t, "https://cdn.example.com/standings/"+table.ID+".json", *published.SnapshotURL)

	body, ok := f.uploader.object("standings/" + table.ID + ".json")
	require.True(t, ok)

	var snapshot StandingsSnapshot
	require.NoError(t, json.Unmarshal(body, &snapshot))
	assert.Equal(t, table.ID, snapshot.TableID)
	assert.Equal(t, "div-1", snapshot.Scope.DivisionID)
	assert.Len(t, snapshot.Standings, 2)
	assert.False(t, snapshot.PublishedAt.IsZero())

	fetched, err := f.svc.GetTable(ctx, table.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched.SnapshotURL)
	assert.Equal(t, *published.SnapshotURL, *fetched.SnapshotURL)

	_, err = f.svc.PublishSnapshot(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrStandingsTableNotFound)
}

func TestStandingsService_PublishSnapshot_Disabled(t *testing.T) {
	f := setupService(t, false)
	table := createSeasonTable(t, f.svc, "2024")

	_, err := f.svc.PublishSnapshot(context.Background(), table.ID)
	assert.ErrorIs(t, err, ErrSnapshotsDisabled)

	_, err = f.svc.PublishStaleSnapshots(context.Background(), time.Time{})
	assert.ErrorIs(t, err, ErrSnapshotsDisabled)
}

func TestStandingsService_PublishStaleSnapshots(t *testing.T) {
	f := setupService(t, true)
	ctx := context.Background()

	quiet := createSeasonTable(t, f.svc, "2021")
	busy := []*models.StandingsTable{
		createSeasonTable(t, f.svc, "2022"),
		createSeasonTable(t, f.svc, "2023"),
		createSeasonTable(t, f.svc, "2024"),
	}

	since := time.Now().UTC()
	time.Sleep(5 * time.Millisecond)
	for i, table := range busy {
		_, err := f.svc.RecordMatchResult(ctx, table.ID, RecordMatchResultInput{
			MatchID: "m-" + table.ID, HomeTeam: "Lions", AwayTeam: "Tigers", HomeScore: i, AwayScore: 1,
		})
		require.NoError(t, err)
	}

	count, err := f.svc.PublishStaleSnapshots(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, len(busy), count)

	for _, table := range busy {
		_, ok := f.uploader.object("standings/" + table.ID + ".json")
		assert.True(t, ok, "snapshot for %s", table.ID)
	}
	_, ok := f.uploader.object("standings/" + quiet.ID + ".json")
	assert.False(t, ok)
}

func TestStandingsService_PublishStaleSnapshots_UploadFailure(t *testing.T) {
	f := setupService(t, true)
	f.uploader.failAfter = 0
	ctx := context.Background()

	since := time.Now().UTC().Add(-time.Hour)
	createSeasonTable(t, f.svc, "2024")

	count, err := f.svc.PublishStaleSnapshots(ctx, since)
	assert.Error(t, err)
	assert.Equal(t, 0, count)
}

func TestStandingsService_DeleteTable(t *testing.T) {
	f := setupService(t, true)
	ctx := context.Background()
	table := createSeasonTable(t, f.svc, "2024", "Lions")

	_, err := f.svc.PublishSnapshot(ctx, table.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteTable(ctx, table.ID))

	_, err = f.svc.GetTable(ctx, table.ID)
	assert.ErrorIs(t, err, ErrStandingsTableNotFound)

	_, ok := f.uploader.object("standings/" + table.ID + ".json")
	assert.False(t, ok, "snapshot object should be removed with its table")

	_, err = f.svc.ListMatchResults(ctx, table.ID)
	assert.ErrorIs(t, err, ErrStandingsTableNotFound)

	assert.ErrorIs(t, f.svc.DeleteTable(ctx, table.ID), ErrStandingsTableNotFound)

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	require.NotEmpty(t, f.notifier.messages)
	assert.Equal(t, realtime.MessageStandingsDeleted, f.notifier.messages[len(f.notifier.messages)-1].Type)
}
