package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tibia-housing-crawler/internal/housing"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.ErrorContains(t, err, "db.dsn")

	_, err = NewWithPool(nil)
	require.Error(t, err)
}

func TestUpsertServerReturnsRowID(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	server := housing.Server{
		ID:       housing.ServerID("Antica"),
		Name:     "Antica",
		Location: housing.LocationEurope,
		PvPType:  housing.PvPOpen,
		BattlEye: true,
	}

	mock.ExpectQuery("INSERT INTO servers").
		WithArgs(server.ID, "Antica", "Europe", "Open PvP", true, false).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := store.UpsertServer(context.Background(), server)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertTown(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("INSERT INTO towns").
		WithArgs("Thais").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectQuery("INSERT INTO towns").
		WithArgs("Carlin").
		WillReturnError(errors.New("conn reset"))

	id, err := store.UpsertTown(context.Background(), "Thais")
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)

	_, err = store.UpsertTown(context.Background(), "Carlin")
	require.ErrorContains(t, err, "upsert town Carlin")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertListingPicksFamilyTable(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	bid := int64(12345)
	end := time.Date(2024, time.December, 15, 14, 30, 0, 0, time.UTC)
	house := housing.Listing{
		ID: 10102, Name: "Harbour Place 2", Size: 1204, Rent: 2500,
		Status: housing.StatusAuctioned, CurrentBid: &bid, AuctionEnd: &end,
		URL: "https://www.tibia.com/community/?subtopic=houses&page=view&houseid=10102&world=Antica",
	}
	guild := housing.Listing{ID: 55, Name: "Warriors' Guildhall", Size: 300, Rent: 0, Status: housing.StatusRented, Guildhall: true}

	mock.ExpectExec(`INSERT INTO houses \(house_id,`).
		WithArgs(int64(10102), "Harbour Place 2", int64(7), int64(3), int64(1204), int64(2500), "auctioned", &bid, &end, house.URL).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO guildhalls \(guildhall_id,`).
		WithArgs(int64(55), "Warriors' Guildhall", int64(7), int64(4), int64(300), int64(0), "rented", (*int64)(nil), (*time.Time)(nil), "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertListing(context.Background(), house, 7, 3))
	require.NoError(t, store.UpsertListing(context.Background(), guild, 7, 4))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertListingError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO houses").WillReturnError(errors.New("fk violation"))

	err := store.UpsertListing(context.Background(), housing.Listing{ID: 1, Name: "x"}, 1, 1)
	require.ErrorContains(t, err, "upsert house 1")
}

func TestUpsertServerStats(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	stats := housing.ServerStats{
		Houses:     housing.FamilyStats{Total: 3, Rented: 1, Auctioned: 1, Available: 1, AvgRent: 200},
		Guildhalls: housing.FamilyStats{Total: 1, Rented: 1, AvgRent: 5000},
	}
	mock.ExpectExec("INSERT INTO server_stats").
		WithArgs(int64(7), 3, 1, 1, 1, 1, 1, 0, 0, 200.0, 5000.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertServerStats(context.Background(), 7, stats))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	started := time.Unix(1700000000, 0).UTC()
	finished := started.Add(time.Hour)
	msg := "retry budget exhausted"

	mock.ExpectQuery("INSERT INTO scraping_runs").
		WithArgs(started, "running").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectExec("UPDATE scraping_runs").
		WithArgs(finished, 10, 2, 1, "failed", &msg, int64(11)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE scraping_runs").
		WithArgs(finished, 0, 0, 0, "completed", (*string)(nil), int64(99)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	id, err := store.StartRun(context.Background(), started)
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)

	err = store.FinishRun(context.Background(), id, finished, housing.RunStats{Houses: 10, Guildhalls: 2, Servers: 1}, housing.RunFailed, &msg)
	require.NoError(t, err)

	err = store.FinishRun(context.Background(), 99, finished, housing.RunStats{}, housing.RunCompleted, nil)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	started := time.Unix(1700000000, 0).UTC()
	finished := started.Add(time.Minute)
	rows := pgxmock.NewRows([]string{"id", "started_at", "completed_at", "total_houses", "total_guildhalls", "total_servers", "status", "error_message"}).
		AddRow(int64(2), started, &finished, 10, 2, 1, "completed", (*string)(nil)).
		AddRow(int64(1), started.Add(-time.Hour), (*time.Time)(nil), 0, 0, 0, "running", (*string)(nil))
	mock.ExpectQuery("SELECT id, started_at").WithArgs(5).WillReturnRows(rows)

	runs, err := store.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, housing.RunCompleted, runs[0].Status)
	assert.Equal(t, housing.RunStats{Houses: 10, Guildhalls: 2, Servers: 1}, runs[0].Stats)
	require.NotNil(t, runs[0].FinishedAt)
	assert.Nil(t, runs[1].FinishedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateUnderAdvisoryLock(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS servers").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCommit()

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err := store.Migrate(context.Background())
	require.ErrorContains(t, err, "apply schema")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mock.Close()
	store, err := NewWithPool(mock)
	require.NoError(t, err)
	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("refused"))

	require.NoError(t, store.Ping(context.Background()))
	require.ErrorContains(t, store.Ping(context.Background()), "ping postgres")
	require.NoError(t, mock.ExpectationsWereMet())
}
