package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"newsletter/internal/logging"
	"newsletter/internal/models"
	"newsletter/internal/service"
)

type SubscriberHandler struct {
	service *service.SubscriberService
	logger  *logging.ContextLogger
	tracer  trace.Tracer
}

func NewSubscriberHandler(service *service.SubscriberService, logger *logging.ContextLogger, tp trace.TracerProvider) *SubscriberHandler {
	return &SubscriberHandler{
		service: service,
		logger:  logger,
		tracer:  tp.Tracer("subscriber-handler"),
	}
}

// Subscribe handles POST /subscriptions with a url-encoded name and email.
func (h *SubscriberHandler) Subscribe(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "subscriber.handler.subscribe")
	defer span.End()

	req, missing := decodeSubscription(c)
	if missing != "" {
		h.logger.WarnWithTracing(ctx, "Incomplete subscription form", logrus.Fields{
			"missing":  missing,
			"endpoint": "POST /subscriptions",
		})
		span.SetStatus(codes.Error, "missing form field")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "missing form field: " + missing})
		return
	}

	h.logger.InfoWithTracing(ctx, "Received subscription request", logrus.Fields{
		"email":    req.Email,
		"name":     req.Name,
		"endpoint": "POST /subscriptions",
	})

	subscriber, err := h.service.AddSubscriber(ctx, req)
	if err != nil {
		kind := models.KindOf(err)
		status := statusFor(kind)
		span.RecordError(err)
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= http.StatusInternalServerError {
			h.logger.ErrorWithTracing(ctx, "Subscription failed", err, logrus.Fields{
				"email":    req.Email,
				"endpoint": "POST /subscriptions",
			})
		}
		c.JSON(status, gin.H{"error": kind.String()})
		return
	}

	span.SetAttributes(
		attribute.String("subscriber.id", subscriber.ID.String()),
		attribute.Bool("success", true),
	)
	c.JSON(http.StatusOK, subscriber)
}

func (h *SubscriberHandler) HealthCheck(c *gin.Context) {
	c.Status(http.StatusOK)
}

// decodeSubscription returns the name of the first absent field, if any. An
// unparseable body has no fields at all.
func decodeSubscription(c *gin.Context) (models.SubscriptionRequest, string) {
	var req models.SubscriptionRequest
	var ok bool

	if req.Name, ok = c.GetPostForm("name"); !ok {
		return req, "name"
	}
	if req.Email, ok = c.GetPostForm("email"); !ok {
		return req, "email"
	}
	return req, ""
}

func statusFor(kind models.Kind) int {
	switch kind {
	case models.KindInvalidName, models.KindInvalidEmail, models.KindEmailAlreadyExists, models.KindUserNotFound:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
