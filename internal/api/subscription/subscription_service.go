package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/FACorreiaa/go-comment-suggestions/config"
	"github.com/FACorreiaa/go-comment-suggestions/internal/api"
	eventLog "github.com/FACorreiaa/go-comment-suggestions/internal/api/event_log"
	"github.com/FACorreiaa/go-comment-suggestions/internal/types"
)

const (
	billingHistoryLimit   = 50
	maxIdempotencyKeyLen  = 64
	customerLookupTimeout = 30 * time.Second
	eventualMessage       = "Changes may take a moment to reflect."
)

var _ SubscriptionService = (*SubscriptionServiceImpl)(nil)

type SubscriptionService interface {
	Create(ctx context.Context, session types.Session, req types.CreateSubscriptionRequest) (*types.CreateSubscriptionResponse, error)
	Manage(ctx context.Context, userID uuid.UUID, req types.ManageSubscriptionRequest) (*types.ManageSubscriptionResponse, error)
	Get(ctx context.Context, userID uuid.UUID) (*types.SubscriptionView, error)
	BillingHistory(ctx context.Context, userID uuid.UUID) ([]types.BillingHistoryEntry, error)
}

type SubscriptionServiceImpl struct {
	logger    *slog.Logger
	repo      SubscriptionRepository
	processor Processor
	events    eventLog.Recorder
	prices    config.StripePrices
	validate  *validator.Validate
	customers singleflight.Group
}

func NewSubscriptionService(repo SubscriptionRepository, processor Processor, events eventLog.Recorder, prices config.StripePrices, logger *slog.Logger) *SubscriptionServiceImpl {
	return &SubscriptionServiceImpl{
		logger:    logger,
		repo:      repo,
		processor: processor,
		events:    events,
		prices:    prices,
		validate:  api.NewValidator(),
	}
}

func (s *SubscriptionServiceImpl) Create(ctx context.Context, session types.Session, req types.CreateSubscriptionRequest) (*types.CreateSubscriptionResponse, error) {
	ctx, span := otel.Tracer("SubscriptionService").Start(ctx, "Create", trace.WithAttributes(
		attribute.String("user.id", session.UserID.String()),
		attribute.String("subscription.plan", string(req.PlanType)),
		attribute.String("subscription.cycle", string(req.BillingCycle)),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "Create"), slog.String("userID", session.UserID.String()))

	if err := api.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}
	if !req.PlanType.Valid() {
		return nil, api.NewValidationError("planType", "unsupported plan")
	}
	if !req.BillingCycle.Valid() {
		return nil, api.NewValidationError("billingCycle", "unsupported billing cycle")
	}
	if len(req.IdempotencyKey) > maxIdempotencyKeyLen {
		return nil, api.NewValidationError("Idempotency-Key", fmt.Sprintf("must be at most %d characters", maxIdempotencyKeyLen))
	}
	priceID := s.prices.PriceFor(string(req.PlanType), string(req.BillingCycle))
	if priceID == "" {
		l.ErrorContext(ctx, "No price configured", slog.String("plan", string(req.PlanType)), slog.String("cycle", string(req.BillingCycle)))
		return nil, api.NewValidationError("planType", "plan is not available for this billing cycle")
	}

	current, err := s.repo.GetSubscription(ctx, session.UserID)
	switch {
	case err == nil && hasLiveSubscription(current):
		span.SetStatus(codes.Error, "already subscribed")
		return nil, fmt.Errorf("%w: user already has a %s subscription", api.ErrConflict, current.Status)
	case err == nil && paidThrough(current, time.Now()):
		span.SetStatus(codes.Error, "canceled but paid through")
		return nil, fmt.Errorf("%w: canceled subscription stays active until %s",
			api.ErrConflict, current.CurrentPeriodEnd.UTC().Format(time.DateOnly))
	case errors.Is(err, api.ErrNotFound):
		current = nil
	case err != nil:
		span.RecordError(err)
		return nil, err
	}

	customerID, err := s.ensureCustomer(ctx, session)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "customer failed")
		return nil, err
	}

	ps, err := s.processor.CreateSubscription(ctx, customerID, priceID,
		subscriptionIdempotencyKey(customerID, priceID, req.IdempotencyKey, current))
	if err != nil {
		l.ErrorContext(ctx, "Processor subscription create failed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "processor failed")
		return nil, err
	}

	row, err := s.repo.UpsertIntent(ctx, types.Subscription{
		UserID:                  session.UserID,
		PlanType:                req.PlanType,
		BillingCycle:            req.BillingCycle,
		Status:                  types.NormalizeStatus(ps.Status),
		ProcessorCustomerID:     customerID,
		ProcessorSubscriptionID: ps.ID,
		CurrentPeriodStart:      ps.CurrentPeriodStart,
		CurrentPeriodEnd:        ps.CurrentPeriodEnd,
		CancelAtPeriodEnd:       ps.CancelAtPeriodEnd,
	})
	if err != nil {
		l.ErrorContext(ctx, "Subscription created at processor but mirror write failed",
			slog.String("subscriptionID", ps.ID), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "mirror write failed")
		return nil, err
	}

	s.record(ctx, l, session.UserID, types.EventSubscriptionCreate, map[string]any{
		"plan_type":       string(req.PlanType),
		"billing_cycle":   string(req.BillingCycle),
		"subscription_id": ps.ID,
	})

	l.InfoContext(ctx, "Subscription created", slog.String("subscriptionID", ps.ID), slog.String("status", string(row.Status)))
	span.SetStatus(codes.Ok, "created")
	return &types.CreateSubscriptionResponse{
		SubscriptionID: ps.ID,
		Status:         row.Status,
		ClientSecret:   ps.ClientSecret,
		CheckoutURL:    ps.HostedInvoiceURL,
	}, nil
}

// ensureCustomer resolves the processor customer: local cache, then search by
// email, then create. The id is cached before any subscription call so a
// retry reuses it. Concurrent calls for one user share a single lookup.
func (s *SubscriptionServiceImpl) ensureCustomer(ctx context.Context, session types.Session) (string, error) {
	v, err, _ := s.customers.Do(session.UserID.String(), func() (any, error) {
		// Other callers wait on this lookup, so it must not end with the first one.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), customerLookupTimeout)
		defer cancel()

		id, err := s.repo.GetCustomerID(ctx, session.UserID)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, api.ErrNotFound) {
			return "", err
		}

		id, found, err := s.processor.FindCustomerByEmail(ctx, session.Email)
		if err != nil {
			return "", err
		}
		if !found {
			if id, err = s.processor.CreateCustomer(ctx, session.Email, session.UserID); err != nil {
				return "", err
			}
		}
		if err := s.repo.SaveCustomer(ctx, session.UserID, session.Email, id); err != nil {
			return "", err
		}
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *SubscriptionServiceImpl) Manage(ctx context.Context, userID uuid.UUID, req types.ManageSubscriptionRequest) (*types.ManageSubscriptionResponse, error) {
	ctx, span := otel.Tracer("SubscriptionService").Start(ctx, "Manage", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
		attribute.String("subscription.action", string(req.Action)),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "Manage"), slog.String("userID", userID.String()), slog.String("action", string(req.Action)))

	if err := api.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}

	current, err := s.repo.GetSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return nil, api.NewValidationError("action", "no subscription to manage")
		}
		return nil, err
	}
	if current.Status.IsTerminal() {
		return nil, api.NewValidationError("action", "subscription is already canceled")
	}

	var row *types.Subscription
	switch req.Action {
	case types.ActionCancel:
		if _, err := s.processor.CancelAtPeriodEnd(ctx, current.ProcessorSubscriptionID); err != nil {
			l.ErrorContext(ctx, "Processor cancel failed", slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "processor failed")
			return nil, err
		}
		row, err = s.repo.MarkCanceled(ctx, userID, current.ProcessorSubscriptionID)

	case types.ActionUpgrade, types.ActionDowngrade:
		plan, cycle, verr := targetPlan(current, req)
		if verr != nil {
			return nil, verr
		}
		priceID := s.prices.PriceFor(string(plan), string(cycle))
		if priceID == "" {
			return nil, api.NewValidationError("newPlanType", "plan is not available for this billing cycle")
		}
		ps, perr := s.processor.GetSubscription(ctx, current.ProcessorSubscriptionID)
		if perr != nil {
			span.RecordError(perr)
			span.SetStatus(codes.Error, "processor failed")
			return nil, perr
		}
		if ps.ItemID == "" {
			return nil, api.NewProviderError("subscription has no items to change", errors.New("empty subscription items"))
		}
		if _, err := s.processor.ChangeSubscriptionPrice(ctx, ps.ID, ps.ItemID, priceID); err != nil {
			l.ErrorContext(ctx, "Processor price change failed", slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "processor failed")
			return nil, err
		}
		row, err = s.repo.UpdatePlan(ctx, userID, current.ProcessorSubscriptionID, plan, cycle)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mirror write failed")
		return nil, err
	}

	meta := map[string]any{"action": string(req.Action), "subscription_id": current.ProcessorSubscriptionID}
	if req.Action != types.ActionCancel {
		meta["plan_type"] = string(row.PlanType)
		meta["billing_cycle"] = string(row.BillingCycle)
	}
	s.record(ctx, l, userID, types.EventSubscriptionManage, meta)

	span.SetStatus(codes.Ok, "managed")
	return &types.ManageSubscriptionResponse{
		Success:      true,
		Subscription: row,
		Message:      eventualMessage,
	}, nil
}

// targetPlan validates the requested plan change against the current one.
func targetPlan(current *types.Subscription, req types.ManageSubscriptionRequest) (types.PlanType, types.BillingCycle, error) {
	if req.NewPlanType == nil {
		return "", "", api.NewValidationError("newPlanType", "is required")
	}
	plan := *req.NewPlanType
	if !plan.Valid() {
		return "", "", api.NewValidationError("newPlanType", "unsupported plan")
	}
	cycle := current.BillingCycle
	if req.NewBillingCycle != nil {
		cycle = *req.NewBillingCycle
		if !cycle.Valid() {
			return "", "", api.NewValidationError("newBillingCycle", "unsupported billing cycle")
		}
	}
	if plan == current.PlanType && cycle == current.BillingCycle {
		return "", "", api.NewValidationError("newPlanType", "already on this plan")
	}
	switch req.Action {
	case types.ActionUpgrade:
		if plan.Rank() < current.PlanType.Rank() {
			return "", "", api.NewValidationError("newPlanType", "an upgrade cannot lower the plan")
		}
	case types.ActionDowngrade:
		if plan.Rank() > current.PlanType.Rank() {
			return "", "", api.NewValidationError("newPlanType", "a downgrade cannot raise the plan")
		}
	}
	return plan, cycle, nil
}

func hasLiveSubscription(s *types.Subscription) bool {
	return s != nil && (s.Status.IsEntitled() || s.Status == types.StatusPastDue)
}

// paidThrough reports a canceled subscription the processor keeps running
// until its period ends.
func paidThrough(s *types.Subscription, now time.Time) bool {
	return s != nil && s.Status == types.StatusCanceled && s.CancelAtPeriodEnd &&
		s.CurrentPeriodEnd != nil && s.CurrentPeriodEnd.After(now)
}

// subscriptionIdempotencyKey scopes a processor create to the customer, price
// and attempt. Without a client key the attempt is the subscription being
// replaced: a retry after a failed mirror write gets the same processor
// subscription back, and a later resubscribe gets a new one.
func subscriptionIdempotencyKey(customerID, priceID, clientKey string, replaced *types.Subscription) string {
	attempt := clientKey
	if attempt == "" {
		attempt = "first"
		if replaced != nil && replaced.ProcessorSubscriptionID != "" {
			attempt = replaced.ProcessorSubscriptionID
		}
	}
	return "subscription-" + customerID + "-" + priceID + "-" + attempt
}

func (s *SubscriptionServiceImpl) Get(ctx context.Context, userID uuid.UUID) (*types.SubscriptionView, error) {
	sub, err := s.repo.GetSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return &types.SubscriptionView{}, nil
		}
		return nil, err
	}
	view := &types.SubscriptionView{Subscription: sub, Entitled: sub.Status.IsEntitled()}
	if view.Entitled {
		view.Plan = sub.PlanType
	}
	return view, nil
}

func (s *SubscriptionServiceImpl) BillingHistory(ctx context.Context, userID uuid.UUID) ([]types.BillingHistoryEntry, error) {
	return s.repo.ListBillingHistory(ctx, userID, billingHistoryLimit)
}

func (s *SubscriptionServiceImpl) record(ctx context.Context, l *slog.Logger, userID uuid.UUID, eventType string, meta map[string]any) {
	if err := s.events.Record(ctx, types.EventLog{UserID: userID, EventType: eventType, Metadata: meta}); err != nil {
		l.WarnContext(ctx, "Audit event not recorded", slog.Any("error", err))
	}
}
