package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"newsletter/internal/models"
)

const (
	insertSubscriberQuery = `
		INSERT INTO subscribers (id, email, username, subscribed_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, username, subscribed_at`

	selectSubscriberByEmailQuery = `
		SELECT id, email, username, subscribed_at
		FROM subscribers
		WHERE email = $1`

	deleteSubscriberQuery = `DELETE FROM subscribers WHERE id = $1 RETURNING email`
)

// PostgresSubscriberRepository relies on subscribers_email_index for
// uniqueness; it never checks for an existing email before inserting.
type PostgresSubscriberRepository struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

func NewPostgresSubscriberRepository(db *sqlx.DB, tp trace.TracerProvider) *PostgresSubscriberRepository {
	return &PostgresSubscriberRepository{
		db:     db,
		tracer: tp.Tracer("subscriber-repository"),
	}
}

func (r *PostgresSubscriberRepository) Create(ctx context.Context, subscriber *models.Subscriber) (*models.Subscriber, error) {
	ctx, span := r.tracer.Start(ctx, "subscriber.repository.create",
		trace.WithAttributes(
			attribute.String("subscriber.id", subscriber.ID.String()),
			attribute.String("subscriber.email", subscriber.Email),
			attribute.String("operation", "database.write"),
			attribute.String("db.system", "postgresql"),
		))
	defer span.End()

	var stored models.Subscriber
	err := r.db.QueryRowxContext(ctx, insertSubscriberQuery,
		subscriber.ID, subscriber.Email, subscriber.Username, subscriber.SubscribedAt,
	).StructScan(&stored)
	if err != nil {
		return nil, recordError(span, classifyCreateError(err))
	}

	span.SetAttributes(attribute.Bool("success", true))
	return &stored, nil
}

func (r *PostgresSubscriberRepository) GetByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	ctx, span := r.tracer.Start(ctx, "subscriber.repository.get_by_email",
		trace.WithAttributes(
			attribute.String("subscriber.email", email),
			attribute.String("operation", "database.read"),
			attribute.String("db.system", "postgresql"),
		))
	defer span.End()

	var subscriber models.Subscriber
	if err := r.db.GetContext(ctx, &subscriber, selectSubscriberByEmailQuery, email); err != nil {
		classified := classifyLookupError(err)
		if models.KindOf(classified) == models.KindUserNotFound {
			span.SetAttributes(attribute.Bool("found", false))
			return nil, classified
		}
		return nil, recordError(span, classified)
	}

	span.SetAttributes(
		attribute.Bool("found", true),
		attribute.String("subscriber.id", subscriber.ID.String()),
	)
	return &subscriber, nil
}

func (r *PostgresSubscriberRepository) Delete(ctx context.Context, id uuid.UUID) (string, error) {
	ctx, span := r.tracer.Start(ctx, "subscriber.repository.delete",
		trace.WithAttributes(
			attribute.String("subscriber.id", id.String()),
			attribute.String("operation", "database.write"),
			attribute.String("db.system", "postgresql"),
		))
	defer span.End()

	var email string
	err := r.db.QueryRowxContext(ctx, deleteSubscriberQuery, id).Scan(&email)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		span.SetAttributes(attribute.Bool("found", false))
	case err != nil:
		return "", recordError(span, classifyDeleteError(err))
	default:
		span.SetAttributes(attribute.Bool("found", true))
	}

	span.SetAttributes(attribute.Bool("success", true))
	return email, nil
}
