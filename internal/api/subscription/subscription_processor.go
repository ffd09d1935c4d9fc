package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-comment-suggestions/config"
	"github.com/FACorreiaa/go-comment-suggestions/internal/api"
)

const defaultProcessorTimeout = 30 * time.Second

// ProcessorSubscription is the processor's view of a subscription, reduced to
// the fields the mirror stores.
type ProcessorSubscription struct {
	ID                 string
	CustomerID         string
	Status             string
	ItemID             string
	PriceID            string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	ClientSecret       string
	HostedInvoiceURL   string
}

// Processor is the payment processor surface used by the lifecycle service.
type Processor interface {
	FindCustomerByEmail(ctx context.Context, email string) (string, bool, error)
	CreateCustomer(ctx context.Context, email string, userID uuid.UUID) (string, error)
	CreateSubscription(ctx context.Context, customerID, priceID, idempotencyKey string) (*ProcessorSubscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*ProcessorSubscription, error)
	ChangeSubscriptionPrice(ctx context.Context, subscriptionID, itemID, priceID string) (*ProcessorSubscription, error)
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*ProcessorSubscription, error)
}

var _ Processor = (*StripeProcessor)(nil)

type StripeProcessor struct {
	sc     *client.API
	logger *slog.Logger
}

func NewStripeProcessor(cfg config.StripeConfig, logger *slog.Logger) *StripeProcessor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultProcessorTimeout
	}
	backends := stripe.NewBackends(&http.Client{Timeout: timeout})
	return &StripeProcessor{
		sc:     client.New(cfg.SecretKey, backends),
		logger: logger,
	}
}

func (p *StripeProcessor) FindCustomerByEmail(ctx context.Context, email string) (string, bool, error) {
	ctx, span := otel.Tracer("StripeProcessor").Start(ctx, "FindCustomerByEmail")
	defer span.End()

	if email == "" {
		return "", false, nil
	}

	params := &stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Context: ctx,
			Query:   fmt.Sprintf("email:'%s'", escapeSearchValue(email)),
			Limit:   stripe.Int64(1),
		},
	}
	iter := p.sc.Customers.Search(params)
	for iter.Next() {
		if c := iter.Customer(); c != nil && !c.Deleted {
			span.SetStatus(codes.Ok, "customer found")
			return c.ID, true, nil
		}
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "customer search failed")
		return "", false, providerError(err)
	}
	span.SetStatus(codes.Ok, "no customer")
	return "", false, nil
}

func (p *StripeProcessor) CreateCustomer(ctx context.Context, email string, userID uuid.UUID) (string, error) {
	ctx, span := otel.Tracer("StripeProcessor").Start(ctx, "CreateCustomer", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	params := &stripe.CustomerParams{}
	params.Context = ctx
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata("user_id", userID.String())
	params.SetIdempotencyKey("customer-" + userID.String())

	c, err := p.sc.Customers.New(params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "customer create failed")
		return "", providerError(err)
	}
	p.logger.InfoContext(ctx, "Processor customer created", slog.String("userID", userID.String()), slog.String("customerID", c.ID))
	span.SetStatus(codes.Ok, "customer created")
	return c.ID, nil
}

func (p *StripeProcessor) CreateSubscription(ctx context.Context, customerID, priceID, idempotencyKey string) (*ProcessorSubscription, error) {
	ctx, span := otel.Tracer("StripeProcessor").Start(ctx, "CreateSubscription", trace.WithAttributes(
		attribute.String("stripe.customer", customerID),
		attribute.String("stripe.price", priceID),
	))
	defer span.End()

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	params.Context = ctx
	params.AddExpand("latest_invoice.payment_intent")
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	s, err := p.sc.Subscriptions.New(params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "subscription create failed")
		return nil, providerError(err)
	}
	span.SetStatus(codes.Ok, "subscription created")
	return fromStripeSubscription(s), nil
}

func (p *StripeProcessor) GetSubscription(ctx context.Context, subscriptionID string) (*ProcessorSubscription, error) {
	ctx, span := otel.Tracer("StripeProcessor").Start(ctx, "GetSubscription", trace.WithAttributes(
		attribute.String("stripe.subscription", subscriptionID),
	))
	defer span.End()

	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	s, err := p.sc.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "subscription get failed")
		return nil, providerError(err)
	}
	span.SetStatus(codes.Ok, "subscription fetched")
	return fromStripeSubscription(s), nil
}

func (p *StripeProcessor) ChangeSubscriptionPrice(ctx context.Context, subscriptionID, itemID, priceID string) (*ProcessorSubscription, error) {
	ctx, span := otel.Tracer("StripeProcessor").Start(ctx, "ChangeSubscriptionPrice", trace.WithAttributes(
		attribute.String("stripe.subscription", subscriptionID),
		attribute.String("stripe.price", priceID),
	))
	defer span.End()

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{ID: stripe.String(itemID), Price: stripe.String(priceID)},
		},
		ProrationBehavior: stripe.String("create_prorations"),
		CancelAtPeriodEnd: stripe.Bool(false),
	}
	params.Context = ctx
	s, err := p.sc.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "price change failed")
		return nil, providerError(err)
	}
	span.SetStatus(codes.Ok, "price changed")
	return fromStripeSubscription(s), nil
}

func (p *StripeProcessor) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*ProcessorSubscription, error) {
	ctx, span := otel.Tracer("StripeProcessor").Start(ctx, "CancelAtPeriodEnd", trace.WithAttributes(
		attribute.String("stripe.subscription", subscriptionID),
	))
	defer span.End()

	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
	params.Context = ctx
	s, err := p.sc.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancel failed")
		return nil, providerError(err)
	}
	span.SetStatus(codes.Ok, "cancel scheduled")
	return fromStripeSubscription(s), nil
}

func fromStripeSubscription(s *stripe.Subscription) *ProcessorSubscription {
	if s == nil {
		return nil
	}
	out := &ProcessorSubscription{
		ID:                 s.ID,
		Status:             string(s.Status),
		CurrentPeriodStart: unixTime(s.CurrentPeriodStart),
		CurrentPeriodEnd:   unixTime(s.CurrentPeriodEnd),
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0] != nil {
		out.ItemID = s.Items.Data[0].ID
		if s.Items.Data[0].Price != nil {
			out.PriceID = s.Items.Data[0].Price.ID
		}
	}
	if inv := s.LatestInvoice; inv != nil {
		out.HostedInvoiceURL = inv.HostedInvoiceURL
		if inv.PaymentIntent != nil {
			out.ClientSecret = inv.PaymentIntent.ClientSecret
		}
	}
	return out
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func escapeSearchValue(v string) string {
	out := make([]rune, 0, len(v))
	for _, r := range v {
		if r == '\'' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}

// providerError keeps the processor's user facing message, sanitized, and
// wraps the raw error for logs.
func providerError(err error) error {
	var se *stripe.Error
	switch {
	case errors.As(err, &se):
		return api.NewProviderError(se.Msg, err)
	case errors.Is(err, context.DeadlineExceeded):
		return api.NewProviderError("the payment provider did not respond in time", err)
	default:
		return api.NewProviderError("", err)
	}
}
