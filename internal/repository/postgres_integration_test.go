//go:build integration

package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.opentelemetry.io/otel/trace/noop"

	"newsletter/internal/database"
	"newsletter/internal/models"
)

func setupPostgres(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("newsletter"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("password"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = database.Migrate(ctx, db.DB)
	require.NoError(t, err)
	return db
}

func TestPostgresIntegration(t *testing.T) {
	db := setupPostgres(t)
	repo := NewPostgresSubscriberRepository(db, noop.NewTracerProvider())
	ctx := context.Background()

	t.Run("migrations are idempotent", func(t *testing.T) {
		applied, err := database.Migrate(ctx, db.DB)
		require.NoError(t, err)
		assert.Empty(t, applied)
	})

	t.Run("round trip", func(t *testing.T) {
		created, err := repo.Create(ctx, models.NewSubscriber("ursula_le_guin@gmail.com", "le guin"))
		require.NoError(t, err)

		got, err := repo.GetByEmail(ctx, "ursula_le_guin@gmail.com")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "le guin", got.Username)
		assert.False(t, got.SubscribedAt.IsZero())

		email, err := repo.Delete(ctx, got.ID)
		require.NoError(t, err)
		assert.Equal(t, "ursula_le_guin@gmail.com", email)
		_, err = repo.GetByEmail(ctx, "ursula_le_guin@gmail.com")
		assert.True(t, errors.Is(err, models.ErrUserNotFound))

		email, err = repo.Delete(ctx, got.ID)
		assert.NoError(t, err, "second delete is a no-op")
		assert.Empty(t, email)
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := repo.Create(ctx, models.NewSubscriber("dup@example.com", "first"))
		require.NoError(t, err)

		_, err = repo.Create(ctx, models.NewSubscriber("dup@example.com", "second"))
		assert.True(t, errors.Is(err, models.ErrEmailAlreadyExists))
	})

	t.Run("invalid email rejected by schema", func(t *testing.T) {
		_, err := repo.Create(ctx, models.NewSubscriber("not-an-email", "nobody"))
		assert.True(t, errors.Is(err, models.ErrDatabase))
	})

	t.Run("concurrent inserts of one email", func(t *testing.T) {
		const workers = 16
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			kinds = map[models.Kind]int{}
			ok    int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := repo.Create(ctx, models.NewSubscriber("race@example.com", fmt.Sprintf("user %d", i)))
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					ok++
					return
				}
				kinds[models.KindOf(err)]++
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, ok)
		assert.Equal(t, workers-1, kinds[models.KindEmailAlreadyExists])
	})

	t.Run("delete unknown id", func(t *testing.T) {
		_, err := repo.Delete(ctx, uuid.New())
		assert.NoError(t, err)
	})
}
