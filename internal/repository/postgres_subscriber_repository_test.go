package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"newsletter/internal/models"
)

const (
	insertPattern = `(?s)^\s*INSERT\s+INTO\s+subscribers\s*\(id,\s*email,\s*username,\s*subscribed_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4\)\s*RETURNING\s+id,\s*email,\s*username,\s*subscribed_at\s*$`
	selectPattern = `(?s)^\s*SELECT\s+id,\s*email,\s*username,\s*subscribed_at\s+FROM\s+subscribers\s+WHERE\s+email\s*=\s*\$1\s*$`
	deletePattern = `(?s)^\s*DELETE\s+FROM\s+subscribers\s+WHERE\s+id\s*=\s*\$1\s+RETURNING\s+email\s*$`
)

var subscriberColumns = []string{"id", "email", "username", "subscribed_at"}

func newRepoWithMock(t *testing.T) (*PostgresSubscriberRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewPostgresSubscriberRepository(sqlx.NewDb(db, "pgx"), noop.NewTracerProvider()), mock
}

func TestPostgresCreate_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	s := models.NewSubscriber("ursula_le_guin@gmail.com", "le guin")

	mock.ExpectQuery(insertPattern).
		WithArgs(s.ID, s.Email, s.Username, s.SubscribedAt).
		WillReturnRows(sqlmock.NewRows(subscriberColumns).
			AddRow(s.ID.String(), s.Email, s.Username, s.SubscribedAt))

	got, err := repo.Create(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, "ursula_le_guin@gmail.com", got.Email)
	assert.Equal(t, "le guin", got.Username)
	assert.True(t, s.SubscribedAt.Equal(got.SubscribedAt))
}

func TestPostgresCreate_DuplicateEmail(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	s := models.NewSubscriber("dup@example.com", "dup")

	mock.ExpectQuery(insertPattern).
		WithArgs(s.ID, s.Email, s.Username, s.SubscribedAt).
		WillReturnError(&pgconn.PgError{
			Code:           "23505",
			ConstraintName: EmailIndexName,
			Message:        `duplicate key value violates unique constraint "subscribers_email_index"`,
		})

	_, err := repo.Create(context.Background(), s)
	assert.True(t, errors.Is(err, models.ErrEmailAlreadyExists))
}

func TestPostgresCreate_NoRowReturned(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	s := models.NewSubscriber("ghost@example.com", "ghost")

	mock.ExpectQuery(insertPattern).
		WithArgs(s.ID, s.Email, s.Username, s.SubscribedAt).
		WillReturnRows(sqlmock.NewRows(subscriberColumns))

	_, err := repo.Create(context.Background(), s)
	assert.True(t, errors.Is(err, models.ErrDatabase))
}

func TestPostgresCreate_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	s := models.NewSubscriber("down@example.com", "down")

	mock.ExpectQuery(insertPattern).
		WithArgs(s.ID, s.Email, s.Username, s.SubscribedAt).
		WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), s)
	assert.True(t, errors.Is(err, models.ErrDatabase))
	assert.ErrorContains(t, err, "db down")
}

func TestPostgresGetByEmail_Found(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	s := models.NewSubscriber("found@example.com", "found")
	s.SubscribedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(selectPattern).
		WithArgs("found@example.com").
		WillReturnRows(sqlmock.NewRows(subscriberColumns).
			AddRow(s.ID.String(), s.Email, s.Username, s.SubscribedAt))

	got, err := repo.GetByEmail(context.Background(), "found@example.com")
	require.NoError(t, err)
	assert.Equal(t, *s, *got)
}

func TestPostgresGetByEmail_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(selectPattern).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows(subscriberColumns))

	_, err := repo.GetByEmail(context.Background(), "nobody@example.com")
	assert.True(t, errors.Is(err, models.ErrUserNotFound))
}

func TestPostgresGetByEmail_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(selectPattern).
		WithArgs("x@example.com").
		WillReturnError(errors.New("db err"))

	_, err := repo.GetByEmail(context.Background(), "x@example.com")
	assert.True(t, errors.Is(err, models.ErrDatabase))
}

func TestPostgresDelete(t *testing.T) {
	t.Run("removes row and returns stored email", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		s := models.NewSubscriber("del@example.com", "del")
		mock.ExpectQuery(deletePattern).WithArgs(s.ID).
			WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("del@example.com"))

		email, err := repo.Delete(context.Background(), s.ID)
		require.NoError(t, err)
		assert.Equal(t, "del@example.com", email)
	})

	t.Run("absent id is not an error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		s := models.NewSubscriber("del@example.com", "del")
		mock.ExpectQuery(deletePattern).WithArgs(s.ID).WillReturnRows(sqlmock.NewRows([]string{"email"}))

		email, err := repo.Delete(context.Background(), s.ID)
		require.NoError(t, err)
		assert.Empty(t, email)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		s := models.NewSubscriber("del@example.com", "del")
		mock.ExpectQuery(deletePattern).WithArgs(s.ID).WillReturnError(errors.New("db err"))

		_, err := repo.Delete(context.Background(), s.ID)
		assert.True(t, errors.Is(err, models.ErrDatabase))
	})
}
