package subscription

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-comment-suggestions/internal/api"
	"github.com/FACorreiaa/go-comment-suggestions/internal/api/auth"
	"github.com/FACorreiaa/go-comment-suggestions/internal/types"
)

type SubscriptionHandler struct {
	service  SubscriptionService
	webhooks WebhookService
	logger   *slog.Logger
}

func NewSubscriptionHandler(service SubscriptionService, webhooks WebhookService, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		service:  service,
		webhooks: webhooks,
		logger:   logger,
	}
}

// CreateSubscription godoc
// @Summary      Start a subscription
// @Tags         subscription
// @Accept       json
// @Produce      json
// @Param        body body types.CreateSubscriptionRequest true "Plan and billing cycle"
// @Param        Idempotency-Key header string false "Client retry key"
// @Success      201 {object} types.CreateSubscriptionResponse
// @Failure      400 {object} api.ErrorBody
// @Failure      409 {object} api.ErrorBody
// @Failure      502 {object} api.ErrorBody
// @Router       /subscription [post]
func (h *SubscriptionHandler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("SubscriptionHandler").Start(r.Context(), "CreateSubscription", trace.WithAttributes(
		attribute.String("http.method", r.Method),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "CreateSubscription"))

	session, ok := auth.SessionFromContext(ctx)
	if !ok {
		span.SetStatus(codes.Error, "unauthenticated")
		api.WriteError(w, r, l, api.ErrUnauthorized)
		return
	}

	var req types.CreateSubscriptionRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		span.SetStatus(codes.Error, "bad body")
		api.WriteError(w, r, l, err)
		return
	}
	req.IdempotencyKey = r.Header.Get("Idempotency-Key")

	resp, err := h.service.Create(ctx, session, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		api.WriteError(w, r, l, err)
		return
	}

	span.SetStatus(codes.Ok, "subscription created")
	api.WriteJSONResponse(w, r, http.StatusCreated, resp)
}

// ManageSubscription godoc
// @Summary      Cancel, upgrade or downgrade the subscription
// @Tags         subscription
// @Accept       json
// @Produce      json
// @Param        body body types.ManageSubscriptionRequest true "Action"
// @Success      200 {object} types.ManageSubscriptionResponse
// @Failure      400 {object} api.ErrorBody
// @Failure      502 {object} api.ErrorBody
// @Router       /subscription/manage [post]
func (h *SubscriptionHandler) ManageSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("SubscriptionHandler").Start(r.Context(), "ManageSubscription", trace.WithAttributes(
		attribute.String("http.method", r.Method),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "ManageSubscription"))

	session, ok := auth.SessionFromContext(ctx)
	if !ok {
		span.SetStatus(codes.Error, "unauthenticated")
		api.WriteError(w, r, l, api.ErrUnauthorized)
		return
	}

	var req types.ManageSubscriptionRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		span.SetStatus(codes.Error, "bad body")
		api.WriteError(w, r, l, err)
		return
	}

	resp, err := h.service.Manage(ctx, session.UserID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "manage failed")
		api.WriteError(w, r, l, err)
		return
	}

	span.SetStatus(codes.Ok, "subscription managed")
	api.WriteJSONResponse(w, r, http.StatusOK, resp)
}

// GetSubscription godoc
// @Summary      Current subscription and entitlement
// @Tags         subscription
// @Produce      json
// @Success      200 {object} types.SubscriptionView
// @Failure      401 {object} api.ErrorBody
// @Router       /subscription [get]
func (h *SubscriptionHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("SubscriptionHandler").Start(r.Context(), "GetSubscription")
	defer span.End()

	l := h.logger.With(slog.String("handler", "GetSubscription"))

	session, ok := auth.SessionFromContext(ctx)
	if !ok {
		api.WriteError(w, r, l, api.ErrUnauthorized)
		return
	}

	view, err := h.service.Get(ctx, session.UserID)
	if err != nil {
		span.RecordError(err)
		api.WriteError(w, r, l, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, view)
}

// GetBillingHistory godoc
// @Summary      Payment history
// @Tags         subscription
// @Produce      json
// @Success      200 {array} types.BillingHistoryEntry
// @Failure      401 {object} api.ErrorBody
// @Router       /billing/history [get]
func (h *SubscriptionHandler) GetBillingHistory(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("SubscriptionHandler").Start(r.Context(), "GetBillingHistory")
	defer span.End()

	l := h.logger.With(slog.String("handler", "GetBillingHistory"))

	session, ok := auth.SessionFromContext(ctx)
	if !ok {
		api.WriteError(w, r, l, api.ErrUnauthorized)
		return
	}

	entries, err := h.service.BillingHistory(ctx, session.UserID)
	if err != nil {
		span.RecordError(err)
		api.WriteError(w, r, l, err)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, entries)
}

// StripeWebhook godoc
// @Summary      Payment processor webhook
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature header string true "Processor signature"
// @Success      200
// @Failure      400 {object} api.ErrorBody
// @Router       /webhooks/stripe [post]
func (h *SubscriptionHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("SubscriptionHandler").Start(r.Context(), "StripeWebhook")
	defer span.End()

	l := h.logger.With(slog.String("handler", "StripeWebhook"))

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.ErrorResponse(w, r, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}
		api.WriteError(w, r, l, api.NewValidationError("body", "could not be read"))
		return
	}

	outcome, err := h.webhooks.HandleEvent(ctx, payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook failed")
		api.WriteError(w, r, l, err)
		return
	}

	span.SetStatus(codes.Ok, string(outcome))
	api.WriteJSONResponse(w, r, http.StatusOK, map[string]string{"status": string(outcome)})
}
