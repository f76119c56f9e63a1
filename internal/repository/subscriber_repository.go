package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"newsletter/internal/models"
)

// SubscriberRepository is the only path to subscriber storage. Errors it
// returns are already classified as *models.Error.
type SubscriberRepository interface {
	// Create inserts s. The uniqueness check on email and the insert are one
	// atomic step inside the store.
	Create(ctx context.Context, subscriber *models.Subscriber) (*models.Subscriber, error)
	GetByEmail(ctx context.Context, email string) (*models.Subscriber, error)
	// Delete removes the record with id and returns the email it was stored
	// under. Deleting an absent id succeeds with an empty email.
	Delete(ctx context.Context, id uuid.UUID) (string, error)
}

type InMemorySubscriberRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*models.Subscriber
	byEmail map[string]uuid.UUID
	tracer  trace.Tracer
}

func NewInMemorySubscriberRepository(tp trace.TracerProvider) *InMemorySubscriberRepository {
	return &InMemorySubscriberRepository{
		byID:    make(map[uuid.UUID]*models.Subscriber),
		byEmail: make(map[string]uuid.UUID),
		tracer:  tp.Tracer("subscriber-repository"),
	}
}

func (r *InMemorySubscriberRepository) Create(ctx context.Context, subscriber *models.Subscriber) (*models.Subscriber, error) {
	_, span := r.tracer.Start(ctx, "subscriber.repository.create",
		trace.WithAttributes(
			attribute.String("subscriber.id", subscriber.ID.String()),
			attribute.String("subscriber.email", subscriber.Email),
			attribute.String("operation", "database.write"),
		))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, recordError(span, models.NewError(models.KindDatabase, opCreate, err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[subscriber.Email]; exists {
		return nil, recordError(span, models.NewError(models.KindEmailAlreadyExists, opCreate, nil))
	}
	if _, exists := r.byID[subscriber.ID]; exists {
		return nil, recordError(span, models.NewError(models.KindDatabase, opCreate, errors.New("duplicate primary key")))
	}

	stored := *subscriber
	r.byID[stored.ID] = &stored
	r.byEmail[stored.Email] = stored.ID

	span.SetAttributes(attribute.Bool("success", true))
	out := stored
	return &out, nil
}

func (r *InMemorySubscriberRepository) GetByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	_, span := r.tracer.Start(ctx, "subscriber.repository.get_by_email",
		trace.WithAttributes(
			attribute.String("subscriber.email", email),
			attribute.String("operation", "database.read"),
		))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, recordError(span, models.NewError(models.KindDatabase, opGetByEmail, err))
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byEmail[email]
	if !exists {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, models.NewError(models.KindUserNotFound, opGetByEmail, nil)
	}

	out := *r.byID[id]
	span.SetAttributes(
		attribute.Bool("found", true),
		attribute.String("subscriber.id", out.ID.String()),
	)
	return &out, nil
}

func (r *InMemorySubscriberRepository) Delete(ctx context.Context, id uuid.UUID) (string, error) {
	_, span := r.tracer.Start(ctx, "subscriber.repository.delete",
		trace.WithAttributes(
			attribute.String("subscriber.id", id.String()),
			attribute.String("operation", "database.write"),
		))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return "", recordError(span, models.NewError(models.KindDatabase, opDelete, err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var email string
	if existing, ok := r.byID[id]; ok {
		email = existing.Email
		delete(r.byEmail, existing.Email)
		delete(r.byID, id)
	}

	span.SetAttributes(
		attribute.Bool("found", email != ""),
		attribute.Bool("success", true),
	)
	return email, nil
}

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
