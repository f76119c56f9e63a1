package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"newsletter/internal/cache"
	"newsletter/internal/email"
	"newsletter/internal/logging"
	"newsletter/internal/metrics"
	"newsletter/internal/models"
	"newsletter/internal/repository"
	"newsletter/internal/validation"
)

const (
	opAddSubscriber = "service.add_subscriber"

	confirmationSubject = "Welcome to our newsletter!"
)

type Options struct {
	Repository     repository.SubscriberRepository
	Cache          cache.Cache
	CacheTTL       time.Duration
	EmailSender    email.Sender
	Logger         *logging.ContextLogger
	TracerProvider trace.TracerProvider
	Metrics        *metrics.Metrics
}

// SubscriberService owns the subscription pipeline: validate, persist,
// cache, notify. Cache and EmailSender are optional.
type SubscriberService struct {
	repo     repository.SubscriberRepository
	cache    cache.Cache
	cacheTTL time.Duration
	sender   email.Sender
	logger   *logging.ContextLogger
	tracer   trace.Tracer
	metrics  *metrics.Metrics

	// fillMu orders cache fills against deletes. A fill is dropped when a
	// delete completed after the fill's store read began.
	fillMu  sync.Mutex
	deletes uint64
}

func NewSubscriberService(opts Options) *SubscriberService {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SubscriberService{
		repo:     opts.Repository,
		cache:    opts.Cache,
		cacheTTL: ttl,
		sender:   opts.EmailSender,
		logger:   opts.Logger,
		tracer:   opts.TracerProvider.Tracer("subscriber-service"),
		metrics:  opts.Metrics,
	}
}

func (s *SubscriberService) AddSubscriber(ctx context.Context, req models.SubscriptionRequest) (*models.Subscriber, error) {
	ctx, span := s.tracer.Start(ctx, "subscriber.service.add",
		trace.WithAttributes(
			attribute.String("subscriber.email", req.Email),
			attribute.String("subscriber.name", req.Name),
		))
	defer span.End()

	s.logger.InfoWithTracing(ctx, "Adding a new subscriber", logrus.Fields{
		"email": req.Email,
		"name":  req.Name,
	})

	if !validation.ValidName(req.Name) {
		err := models.NewError(models.KindInvalidName, opAddSubscriber, nil)
		s.logger.WarnWithTracing(ctx, "Rejected subscriber name", logrus.Fields{
			"name": req.Name,
		})
		s.countAttempt(metrics.OutcomeInvalidName)
		return nil, fail(span, err)
	}

	subscriber := models.NewSubscriber(req.Email, req.Name)

	epoch := s.cacheEpoch()
	started := time.Now()
	saved, err := s.repo.Create(ctx, subscriber)
	s.observeStore("create", started)
	if err != nil {
		if errors.Is(err, models.ErrEmailAlreadyExists) {
			s.logger.WarnWithTracing(ctx, "Email is already subscribed", logrus.Fields{
				"email": req.Email,
			})
			s.countAttempt(metrics.OutcomeDuplicate)
		} else {
			s.logger.ErrorWithTracing(ctx, "Failed to save new subscriber", err, logrus.Fields{
				"subscriber_id": subscriber.ID.String(),
				"email":         req.Email,
			})
			s.countAttempt(metrics.OutcomeDatabaseError)
		}
		return nil, fail(span, err)
	}

	s.fillCache(ctx, saved, epoch)
	s.countAttempt(metrics.OutcomeCreated)
	s.sendConfirmation(ctx, saved)

	s.logger.InfoWithTracing(ctx, "New subscriber has been saved", logrus.Fields{
		"subscriber_id": saved.ID.String(),
		"email":         saved.Email,
	})
	span.SetAttributes(
		attribute.String("subscriber.id", saved.ID.String()),
		attribute.Bool("success", true),
	)

	return saved, nil
}

func (s *SubscriberService) GetSubscriberByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	ctx, span := s.tracer.Start(ctx, "subscriber.service.get_by_email",
		trace.WithAttributes(attribute.String("subscriber.email", email)))
	defer span.End()

	if s.cache != nil {
		if subscriber, err := s.cache.Get(ctx, cache.GenerateCacheKey(email)); err == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return subscriber, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.WarnWithTracing(ctx, "Cache lookup failed", logrus.Fields{
				"email": email,
				"error": err.Error(),
			})
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	epoch := s.cacheEpoch()
	started := time.Now()
	subscriber, err := s.repo.GetByEmail(ctx, email)
	s.observeStore("get_by_email", started)
	if err != nil {
		if !errors.Is(err, models.ErrUserNotFound) {
			s.logger.ErrorWithTracing(ctx, "Failed to look up subscriber", err, logrus.Fields{
				"email": email,
			})
		}
		return nil, fail(span, err)
	}

	s.fillCache(ctx, subscriber, epoch)
	span.SetAttributes(attribute.String("subscriber.id", subscriber.ID.String()))
	return subscriber, nil
}

// DeleteSubscriber removes the record by id. An id that is not stored is not
// an error.
func (s *SubscriberService) DeleteSubscriber(ctx context.Context, subscriber *models.Subscriber) error {
	ctx, span := s.tracer.Start(ctx, "subscriber.service.delete",
		trace.WithAttributes(
			attribute.String("subscriber.id", subscriber.ID.String()),
			attribute.String("subscriber.email", subscriber.Email),
		))
	defer span.End()

	started := time.Now()
	storedEmail, err := s.repo.Delete(ctx, subscriber.ID)
	s.observeStore("delete", started)
	if err != nil {
		s.logger.ErrorWithTracing(ctx, "Failed to delete subscriber", err, logrus.Fields{
			"subscriber_id": subscriber.ID.String(),
		})
		return fail(span, err)
	}

	s.invalidate(ctx, subscriber.ID.String(), storedEmail, subscriber.Email)

	s.logger.InfoWithTracing(ctx, "Subscriber deleted", logrus.Fields{
		"subscriber_id": subscriber.ID.String(),
	})
	span.SetAttributes(attribute.Bool("success", true))
	return nil
}

func (s *SubscriberService) cacheEpoch() uint64 {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	return s.deletes
}

// fillCache stores subscriber unless a delete finished since epoch was taken.
func (s *SubscriberService) fillCache(ctx context.Context, subscriber *models.Subscriber, epoch uint64) {
	if s.cache == nil {
		return
	}
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	if s.deletes != epoch {
		return
	}
	s.setCache(ctx, subscriber)
}

// invalidate drops the cache entries for every non-empty email. The stored
// email comes from the repository; the caller's copy may be stale or blank.
func (s *SubscriberService) invalidate(ctx context.Context, subscriberID string, emails ...string) {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	s.deletes++

	if s.cache == nil {
		return
	}
	seen := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		if email == "" {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		if err := s.cache.Delete(ctx, cache.GenerateCacheKey(email)); err != nil {
			s.logger.WarnWithTracing(ctx, "Failed to remove from cache", logrus.Fields{
				"subscriber_id": subscriberID,
				"error":         err.Error(),
			})
		}
	}
}

func (s *SubscriberService) setCache(ctx context.Context, subscriber *models.Subscriber) {
	if err := s.cache.Set(ctx, cache.GenerateCacheKey(subscriber.Email), subscriber, s.cacheTTL); err != nil {
		s.logger.WarnWithTracing(ctx, "Failed to cache subscriber", logrus.Fields{
			"subscriber_id": subscriber.ID.String(),
			"error":         err.Error(),
		})
	}
}

// sendConfirmation never fails the subscription; the row is already committed.
func (s *SubscriberService) sendConfirmation(ctx context.Context, subscriber *models.Subscriber) {
	if s.sender == nil {
		return
	}

	html, text := confirmationBody(subscriber.Username)
	err := s.sender.SendEmail(ctx, subscriber.Email, confirmationSubject, html, text)
	if s.metrics != nil {
		s.metrics.IncConfirmationEmail(err == nil)
	}
	if err != nil {
		s.logger.ErrorWithTracing(ctx, "Failed to send confirmation email", err, logrus.Fields{
			"subscriber_id": subscriber.ID.String(),
			"email":         subscriber.Email,
		})
		return
	}
	s.logger.InfoWithTracing(ctx, "Confirmation email sent", logrus.Fields{
		"subscriber_id": subscriber.ID.String(),
	})
}

func confirmationBody(name string) (html, text string) {
	html = fmt.Sprintf("<p>Hello %s,</p><p>Thanks for subscribing to our newsletter!</p>", name)
	text = fmt.Sprintf("Hello %s,\nThanks for subscribing to our newsletter!", name)
	return html, text
}

func (s *SubscriberService) countAttempt(outcome string) {
	if s.metrics != nil {
		s.metrics.IncSubscriptionAttempt(outcome)
	}
}

func (s *SubscriberService) observeStore(operation string, started time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveStoreOperation(operation, started)
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
