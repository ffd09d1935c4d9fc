package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/FACorreiaa/go-comment-suggestions/app/observability/metrics"
	"github.com/FACorreiaa/go-comment-suggestions/config"
	"github.com/FACorreiaa/go-comment-suggestions/internal/api"
	"github.com/FACorreiaa/go-comment-suggestions/internal/types"
)

// MaxWebhookBodyBytes caps the webhook request body.
const MaxWebhookBodyBytes = 64 << 10

const (
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventInvoicePaid         = "invoice.paid"
	EventPaymentSucceeded    = "invoice.payment_succeeded"
	EventPaymentFailed       = "invoice.payment_failed"
)

// ApplyOutcome is what happened to a verified event.
type ApplyOutcome string

const (
	OutcomeApplied   ApplyOutcome = "applied"
	OutcomeDuplicate ApplyOutcome = "duplicate"
	OutcomeDiscarded ApplyOutcome = "discarded"
	OutcomeIgnored   ApplyOutcome = "ignored"
)

// WebhookEvent identifies a processor event. CreatedAt is the processor's own
// timestamp and orders events for the same subscription.
type WebhookEvent struct {
	ID        string
	Type      string
	CreatedAt time.Time
}

// WebhookChange carries exactly one of its fields.
type WebhookChange struct {
	Subscription *SubscriptionChange
	Payment      *PaymentChange
}

// SubscriptionChange is an authoritative snapshot of a processor subscription.
// PlanType and BillingCycle are empty when the price is not configured.
type SubscriptionChange struct {
	ProcessorSubscriptionID string
	CustomerID              string
	Status                  types.SubscriptionStatus
	PriceID                 string
	PlanType                types.PlanType
	BillingCycle            types.BillingCycle
	CurrentPeriodStart      *time.Time
	CurrentPeriodEnd        *time.Time
	CancelAtPeriodEnd       bool
}

// PaymentChange is one invoice payment attempt, amount in major units.
type PaymentChange struct {
	CustomerID              string
	ProcessorSubscriptionID string
	InvoiceID               string
	Amount                  float64
	Currency                string
	Status                  types.PaymentStatus
	Description             string
}

type mirrorState struct {
	Status      types.SubscriptionStatus
	LastEventAt *time.Time
}

// shouldApply decides whether a subscription event may overwrite the mirror.
// Older events are dropped. At the same timestamp a move back into
// incomplete is dropped, since incomplete is only ever an entry state.
func shouldApply(current *mirrorState, incoming types.SubscriptionStatus, eventAt time.Time) bool {
	if current == nil || current.LastEventAt == nil {
		return true
	}
	last := *current.LastEventAt
	switch {
	case eventAt.Before(last):
		return false
	case eventAt.Equal(last):
		return !(incoming == types.StatusIncomplete && current.Status != types.StatusIncomplete)
	default:
		return true
	}
}

// Currencies whose smallest unit is the major unit, and those with three
// decimals, per the processor's currency table.
var (
	zeroDecimalCurrencies = map[string]bool{
		"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
		"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
		"vuv": true, "xaf": true, "xof": true, "xpf": true,
	}
	threeDecimalCurrencies = map[string]bool{
		"bhd": true, "jod": true, "kwd": true, "omr": true, "tnd": true,
	}
)

// minorToMajor converts a processor amount to major units, e.g. 2000 usd
// cents to 20.00.
func minorToMajor(amount int64, currency string) float64 {
	c := strings.ToLower(currency)
	switch {
	case zeroDecimalCurrencies[c]:
		return float64(amount)
	case threeDecimalCurrencies[c]:
		return float64(amount) / 1000
	default:
		return float64(amount) / 100
	}
}

// WebhookService verifies and reconciles processor events.
type WebhookService interface {
	HandleEvent(ctx context.Context, payload []byte, signature string) (ApplyOutcome, error)
}

var _ WebhookService = (*WebhookServiceImpl)(nil)

type WebhookServiceImpl struct {
	logger  *slog.Logger
	repo    SubscriptionRepository
	prices  config.StripePrices
	secret  string
	metrics *metrics.AppMetrics
}

func NewWebhookService(repo SubscriptionRepository, cfg config.StripeConfig, logger *slog.Logger) *WebhookServiceImpl {
	return &WebhookServiceImpl{
		logger:  logger,
		repo:    repo,
		prices:  cfg.Prices,
		secret:  cfg.WebhookSecret,
		metrics: metrics.Get(),
	}
}

func (s *WebhookServiceImpl) HandleEvent(ctx context.Context, payload []byte, signature string) (ApplyOutcome, error) {
	ctx, span := otel.Tracer("WebhookService").Start(ctx, "HandleEvent")
	defer span.End()

	l := s.logger.With(slog.String("method", "HandleEvent"))

	if s.secret == "" || signature == "" {
		s.count(ctx, "", "rejected")
		span.SetStatus(codes.Error, "unsigned")
		return "", api.ErrSignatureInvalid
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		l.WarnContext(ctx, "Webhook signature verification failed", slog.Any("error", err))
		s.count(ctx, "", "rejected")
		span.SetStatus(codes.Error, "bad signature")
		return "", fmt.Errorf("%w: %w", api.ErrSignatureInvalid, err)
	}

	eventType := string(event.Type)
	span.SetAttributes(attribute.String("stripe.event_id", event.ID), attribute.String("stripe.event_type", eventType))
	l = l.With(slog.String("eventID", event.ID), slog.String("eventType", eventType))

	change, recognized, err := s.translate(event)
	if err != nil {
		l.ErrorContext(ctx, "Webhook payload could not be decoded", slog.Any("error", err))
		s.count(ctx, eventType, "invalid")
		span.SetStatus(codes.Error, "bad payload")
		return "", api.NewValidationError("data", "event payload could not be decoded")
	}
	if !recognized {
		l.InfoContext(ctx, "Ignoring unhandled webhook event")
		s.count(ctx, eventType, string(OutcomeIgnored))
		span.SetStatus(codes.Ok, "ignored")
		return OutcomeIgnored, nil
	}

	outcome, err := s.repo.ApplyWebhookEvent(ctx, WebhookEvent{
		ID:        event.ID,
		Type:      eventType,
		CreatedAt: time.Unix(event.Created, 0).UTC(),
	}, change)
	if err != nil {
		s.metrics.DbQueryErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "apply_webhook")))
		s.count(ctx, eventType, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply failed")
		return "", err
	}

	s.count(ctx, eventType, string(outcome))
	l.InfoContext(ctx, "Webhook event reconciled", slog.String("outcome", string(outcome)))
	span.SetStatus(codes.Ok, string(outcome))
	return outcome, nil
}

// translate maps a verified event onto a mirror change. recognized is false
// for event types this service does not act on.
func (s *WebhookServiceImpl) translate(event stripe.Event) (WebhookChange, bool, error) {
	if event.Data == nil {
		return WebhookChange{}, false, errors.New("event has no data")
	}

	switch string(event.Type) {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return WebhookChange{}, true, fmt.Errorf("decode subscription: %w", err)
		}
		ps := fromStripeSubscription(&sub)
		ch := &SubscriptionChange{
			ProcessorSubscriptionID: ps.ID,
			CustomerID:              ps.CustomerID,
			Status:                  types.NormalizeStatus(ps.Status),
			PriceID:                 ps.PriceID,
			CurrentPeriodStart:      ps.CurrentPeriodStart,
			CurrentPeriodEnd:        ps.CurrentPeriodEnd,
			CancelAtPeriodEnd:       ps.CancelAtPeriodEnd,
		}
		if string(event.Type) == EventSubscriptionDeleted {
			ch.Status = types.StatusCanceled
		}
		if plan, cycle, ok := s.prices.PlanForPrice(ps.PriceID); ok {
			ch.PlanType = types.PlanType(plan)
			ch.BillingCycle = types.BillingCycle(cycle)
		}
		if ch.ProcessorSubscriptionID == "" {
			return WebhookChange{}, true, errors.New("subscription id missing")
		}
		return WebhookChange{Subscription: ch}, true, nil

	case EventInvoicePaid, EventPaymentSucceeded, EventPaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return WebhookChange{}, true, fmt.Errorf("decode invoice: %w", err)
		}
		ch := &PaymentChange{
			InvoiceID:   inv.ID,
			Currency:    strings.ToLower(string(inv.Currency)),
			Description: inv.Description,
			Status:      types.PaymentSucceeded,
			Amount:      minorToMajor(inv.AmountPaid, string(inv.Currency)),
		}
		if string(event.Type) == EventPaymentFailed {
			ch.Status = types.PaymentFailed
			ch.Amount = minorToMajor(inv.AmountDue, string(inv.Currency))
		}
		if inv.Customer != nil {
			ch.CustomerID = inv.Customer.ID
		}
		if inv.Subscription != nil {
			ch.ProcessorSubscriptionID = inv.Subscription.ID
		}
		if ch.Description == "" {
			ch.Description = "Subscription payment"
		}
		if ch.CustomerID == "" {
			return WebhookChange{}, true, errors.New("invoice customer missing")
		}
		return WebhookChange{Payment: ch}, true, nil
	}
	return WebhookChange{}, false, nil
}

func (s *WebhookServiceImpl) count(ctx context.Context, eventType, outcome string) {
	s.metrics.WebhookEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", eventType),
		attribute.String("outcome", outcome),
	))
}
