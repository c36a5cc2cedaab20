//go:build integration

package postgres

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/shiftsync/internal/domain"
)

func TestRepositoryEnforcesSingleActiveShift(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t, ctx)

	trainerID := uuid.NewString()
	first := newShift(trainerID)
	require.NoError(t, repo.Create(ctx, first))

	// The partial unique index backstops the service-level check: a second
	// open shift for the same trainer must come back as a rejection.
	second := newShift(trainerID)
	err := repo.Create(ctx, second)
	require.Error(t, err)
	require.True(t, domain.IsRejection(err))

	active, err := repo.ActiveByTrainer(ctx, trainerID)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, first.ID, active.ID)
}

func TestRepositoryCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t, ctx)

	trainerID := uuid.NewString()
	shift := newShift(trainerID)
	require.NoError(t, repo.Create(ctx, shift))

	end := time.Now().UTC()
	shift.EndTime = &end
	shift.UpdatedAt = end
	require.NoError(t, repo.Close(ctx, shift))

	// A replayed close finds no open row and is rejected, not applied.
	err := repo.Close(ctx, shift)
	require.Error(t, err)
	require.True(t, domain.IsRejection(err))

	active, err := repo.ActiveByTrainer(ctx, trainerID)
	require.NoError(t, err)
	require.Nil(t, active)

	// Closing a trainer's shift frees them to start the next one.
	require.NoError(t, repo.Create(ctx, newShift(trainerID)))
}

func TestRepositoryWritesOutboxEvents(t *testing.T) {
	ctx := context.Background()
	repo, pool := setupRepository(t, ctx)

	shift := newShift(uuid.NewString())
	require.NoError(t, repo.Create(ctx, shift))

	end := time.Now().UTC()
	shift.EndTime = &end
	shift.UpdatedAt = end
	shift.AutoEnded = true
	shift.FlaggedForReview = true
	require.NoError(t, repo.Close(ctx, shift))

	rows, err := pool.Query(ctx,
		`SELECT event_type FROM outbox WHERE aggregate_id=$1 ORDER BY event_id`, shift.ID)
	require.NoError(t, err)
	defer rows.Close()

	var types []string
	for rows.Next() {
		var eventType string
		require.NoError(t, rows.Scan(&eventType))
		types = append(types, eventType)
	}
	require.Equal(t, []string{"shift.opened", "shift.auto_ended"}, types)
}

func newShift(trainerID string) domain.Shift {
	now := time.Now().UTC()
	return domain.Shift{
		ID:          uuid.NewString(),
		TrainerID:   trainerID,
		TrainerName: "Integration Trainer",
		StartTime:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func setupRepository(t *testing.T, ctx context.Context) (*Repository, *pgxpool.Pool) {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("shifts"),
		postgrescontainer.WithUsername("platform"),
		postgrescontainer.WithPassword("platform"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, waitForDatabase(ctx, connStr))
	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return NewRepository(pool), pool
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	files := []string{
		"../../../db/postgres/migrations/0001_init.up.sql",
		"../../../db/postgres/migrations/0002_outbox_dlq.up.sql",
	}

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	for _, rel := range files {
		path := resolvePath(t, rel)
		contents, readErr := os.ReadFile(path)
		require.NoError(t, readErr)

		_, execErr := pool.Exec(ctx, string(contents))
		require.NoError(t, execErr)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
