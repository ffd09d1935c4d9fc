package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	database "github.com/FACorreiaa/go-comment-suggestions/app/db"
	"github.com/FACorreiaa/go-comment-suggestions/internal/api"
	"github.com/FACorreiaa/go-comment-suggestions/internal/types"
)

var _ SubscriptionRepository = (*PostgresSubscriptionRepo)(nil)

type SubscriptionRepository interface {
	GetCustomerID(ctx context.Context, userID uuid.UUID) (string, error)
	SaveCustomer(ctx context.Context, userID uuid.UUID, email, customerID string) error

	// GetSubscription returns the user's mirror row or api.ErrNotFound.
	GetSubscription(ctx context.Context, userID uuid.UUID) (*types.Subscription, error)
	// UpsertIntent writes the result of a user initiated create. A row already
	// written by a webhook for the same processor subscription keeps its status
	// and period bounds.
	UpsertIntent(ctx context.Context, sub types.Subscription) (*types.Subscription, error)
	MarkCanceled(ctx context.Context, userID uuid.UUID, processorSubscriptionID string) (*types.Subscription, error)
	UpdatePlan(ctx context.Context, userID uuid.UUID, processorSubscriptionID string, plan types.PlanType, cycle types.BillingCycle) (*types.Subscription, error)

	ListBillingHistory(ctx context.Context, userID uuid.UUID, limit int) ([]types.BillingHistoryEntry, error)

	// ApplyWebhookEvent records the event and applies change in one
	// transaction. A replayed event id commits without effects.
	ApplyWebhookEvent(ctx context.Context, event WebhookEvent, change WebhookChange) (ApplyOutcome, error)
}

type PostgresSubscriptionRepo struct {
	logger *slog.Logger
	pgpool database.Pool
}

func NewPostgresSubscriptionRepo(pgpool database.Pool, logger *slog.Logger) *PostgresSubscriptionRepo {
	return &PostgresSubscriptionRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

const subscriptionColumns = `id, user_id, plan_type, billing_cycle, status, processor_customer_id,
	processor_subscription_id, current_period_start, current_period_end, cancel_at_period_end,
	source, last_event_at, received_at, created_at, updated_at`

func scanSubscription(row pgx.Row) (*types.Subscription, error) {
	var s types.Subscription
	var plan, cycle, status, source string
	err := row.Scan(
		&s.ID, &s.UserID, &plan, &cycle, &status, &s.ProcessorCustomerID,
		&s.ProcessorSubscriptionID, &s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CancelAtPeriodEnd,
		&source, &s.LastEventAt, &s.ReceivedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.PlanType = types.PlanType(plan)
	s.BillingCycle = types.BillingCycle(cycle)
	s.Status = types.SubscriptionStatus(status)
	s.Source = types.WriteSource(source)
	return &s, nil
}

func (r *PostgresSubscriptionRepo) GetCustomerID(ctx context.Context, userID uuid.UUID) (string, error) {
	ctx, span := otel.Tracer("SubscriptionRepo").Start(ctx, "GetCustomerID", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "billing_customers"),
	))
	defer span.End()

	var customerID string
	err := r.pgpool.QueryRow(ctx,
		`SELECT processor_customer_id FROM billing_customers WHERE user_id = $1`, userID,
	).Scan(&customerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", api.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return "", fmt.Errorf("%w: get customer: %w", api.ErrPersistence, err)
	}
	return customerID, nil
}

func (r *PostgresSubscriptionRepo) SaveCustomer(ctx context.Context, userID uuid.UUID, email, customerID string) error {
	ctx, span := otel.Tracer("SubscriptionRepo").Start(ctx, "SaveCustomer", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "billing_customers"),
	))
	defer span.End()

	query := `
		INSERT INTO billing_customers (user_id, email, processor_customer_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			processor_customer_id = EXCLUDED.processor_customer_id`

	if _, err := r.pgpool.Exec(ctx, query, userID, email, customerID); err != nil {
		r.logger.ErrorContext(ctx, "Failed to save billing customer", slog.String("userID", userID.String()), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB exec failed")
		return fmt.Errorf("%w: save customer: %w", api.ErrPersistence, err)
	}
	span.SetStatus(codes.Ok, "customer saved")
	return nil
}

func (r *PostgresSubscriptionRepo) GetSubscription(ctx context.Context, userID uuid.UUID) (*types.Subscription, error) {
	ctx, span := otel.Tracer("SubscriptionRepo").Start(ctx, "GetSubscription", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "subscriptions"),
		attribute.String("db.user.id", userID.String()),
	))
	defer span.End()

	sub, err := scanSubscription(r.pgpool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, api.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("%w: get subscription: %w", api.ErrPersistence, err)
	}
	return sub, nil
}

func (r *PostgresSubscriptionRepo) UpsertIntent(ctx context.Context, sub types.Subscription) (*types.Subscription, error) {
	ctx, span := otel.Tracer("SubscriptionRepo").Start(ctx, "UpsertIntent", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "subscriptions"),
		attribute.String("stripe.subscription", sub.ProcessorSubscriptionID),
	))
	defer span.End()

	query := `
		INSERT INTO subscriptions (
			user_id, plan_type, billing_cycle, status, processor_customer_id, processor_subscription_id,
			current_period_start, current_period_end, cancel_at_period_end, source, received_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'intent', NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			plan_type = EXCLUDED.plan_type,
			billing_cycle = EXCLUDED.billing_cycle,
			status = CASE WHEN subscriptions.source = 'webhook'
				AND subscriptions.processor_subscription_id = EXCLUDED.processor_subscription_id
				THEN subscriptions.status ELSE EXCLUDED.status END,
			current_period_start = CASE WHEN subscriptions.source = 'webhook'
				AND subscriptions.processor_subscription_id = EXCLUDED.processor_subscription_id
				THEN subscriptions.current_period_start ELSE EXCLUDED.current_period_start END,
			current_period_end = CASE WHEN subscriptions.source = 'webhook'
				AND subscriptions.processor_subscription_id = EXCLUDED.processor_subscription_id
				THEN subscriptions.current_period_end ELSE EXCLUDED.current_period_end END,
			source = CASE WHEN subscriptions.source = 'webhook'
				AND subscriptions.processor_subscription_id = EXCLUDED.processor_subscription_id
				THEN 'webhook' ELSE 'intent' END,
			last_event_at = CASE WHEN subscriptions.processor_subscription_id = EXCLUDED.processor_subscription_id
				THEN subscriptions.last_event_at ELSE NULL END,
			processor_customer_id = EXCLUDED.processor_customer_id,
			processor_subscription_id = EXCLUDED.processor_subscription_id,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			received_at = NOW(),
			updated_at = NOW()
		RETURNING ` + subscriptionColumns

	out, err := scanSubscription(r.pgpool.QueryRow(ctx, query,
		sub.UserID, string(sub.PlanType), string(sub.BillingCycle), string(sub.Status),
		sub.ProcessorCustomerID, sub.ProcessorSubscriptionID,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd,
	))
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to upsert subscription", slog.String("userID", sub.UserID.String()), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB upsert failed")
		return nil, fmt.Errorf("%w: upsert subscription: %w", api.ErrPersistence, err)
	}
	span.SetStatus(codes.Ok, "subscription upserted")
	return out, nil
}

func (r *PostgresSubscriptionRepo) MarkCanceled(ctx context.Context, userID uuid.UUID, processorSubscriptionID string) (*types.Subscription, error) {
	ctx, span := otel.Tracer("SubscriptionRepo").Start(ctx, "MarkCanceled", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "subscriptions"),
		attribute.String("stripe.subscription", processorSubscriptionID),
	))
	defer span.End()

	query := `
		UPDATE subscriptions SET
			status = 'canceled',
			cancel_at_period_end = TRUE,
			source = 'intent',
			received_at = NOW(),
			updated_at = NOW()
		WHERE user_id = $1 AND processor_subscription_id = $2
		RETURNING ` + subscriptionColumns

	out, err := scanSubscription(r.pgpool.QueryRow(ctx, query, userID, processorSubscriptionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, api.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB update failed")
		return nil, fmt.Errorf("%w: cancel subscription: %w", api.ErrPersistence, err)
	}
	span.SetStatus(codes.Ok, "subscription canceled")
	return out, nil
}

func (r *PostgresSubscriptionRepo) UpdatePlan(ctx context.Context, userID uuid.UUID, processorSubscriptionID string, plan types.PlanType, cycle types.BillingCycle) (*types.Subscription, error) {
	ctx, span := otel.Tracer("SubscriptionRepo").Start(ctx, "UpdatePlan", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "subscriptions"),
		attribute.String("subscription.plan", string(plan)),
	))
	defer span.End()

	query := `
		UPDATE subscriptions SET
			plan_type = $3,
			billing_cycle = $4,
			cancel_at_period_end = FALSE,
			received_at = NOW(),
			updated_at = NOW()
		WHERE user_id = $1 AND processor_subscription_id = $2
		RETURNING ` + subscriptionColumns

	out, err := scanSubscription(r.pgpool.QueryRow(ctx, query, userID, processorSubscriptionID, string(plan), string(cycle)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, api.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB update failed")
		return nil, fmt.Errorf("%w: update plan: %w", api.ErrPersistence, err)
	}
	span.SetStatus(codes.Ok, "plan updated")
	return out, nil
}

func (r *PostgresSubscriptionRepo) ListBillingHistory(ctx context.Context, userID uuid.UUID, limit int) ([]types.BillingHistoryEntry, error) {
	ctx, span := otel.Tracer("SubscriptionRepo").Start(ctx, "ListBillingHistory", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "billing_history"),
		attribute.String("db.user.id", userID.String()),
	))
	defer span.End()

	query := `
		SELECT id, subscription_id, user_id, processor_event_id, COALESCE(processor_invoice_id, ''),
			amount, currency, status, description, payment_date, created_at
		FROM billing_history
		WHERE user_id = $1
		ORDER BY payment_date DESC, id DESC
		LIMIT $2`

	rows, err := r.pgpool.Query(ctx, query, userID, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("%w: list billing history: %w", api.ErrPersistence, err)
	}
	defer rows.Close()

	entries := make([]types.BillingHistoryEntry, 0)
	for rows.Next() {
		var e types.BillingHistoryEntry
		var status string
		if err := rows.Scan(&e.ID, &e.SubscriptionID, &e.UserID, &e.ProcessorEventID, &e.ProcessorInvoiceID,
			&e.Amount, &e.Currency, &status, &e.Description, &e.PaymentDate, &e.CreatedAt); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("%w: scan billing row: %w", api.ErrPersistence, err)
		}
		e.Status = types.PaymentStatus(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: read billing history: %w", api.ErrPersistence, err)
	}
	span.SetStatus(codes.Ok, "billing history listed")
	return entries, nil
}

func (r *PostgresSubscriptionRepo) ApplyWebhookEvent(ctx context.Context, event WebhookEvent, change WebhookChange) (ApplyOutcome, error) {
	ctx, span := otel.Tracer("SubscriptionRepo").Start(ctx, "ApplyWebhookEvent", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("stripe.event_id", event.ID),
		attribute.String("stripe.event_type", event.Type),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "ApplyWebhookEvent"), slog.String("eventID", event.ID), slog.String("eventType", event.Type))

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin failed")
		return "", fmt.Errorf("%w: begin: %w", api.ErrPersistence, err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO webhook_events (event_id, event_type, event_created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING`,
		event.ID, event.Type, event.CreatedAt)
	if err != nil {
		_ = tx.Rollback(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, "record event failed")
		return "", fmt.Errorf("%w: record webhook event: %w", api.ErrPersistence, err)
	}
	if tag.RowsAffected() == 0 {
		if err := tx.Commit(ctx); err != nil {
			return "", fmt.Errorf("%w: commit: %w", api.ErrPersistence, err)
		}
		l.InfoContext(ctx, "Webhook event already processed")
		span.SetStatus(codes.Ok, "duplicate")
		return OutcomeDuplicate, nil
	}

	outcome := OutcomeApplied
	switch {
	case change.Subscription != nil:
		outcome, err = r.applySubscriptionChange(ctx, tx, l, event.CreatedAt, *change.Subscription)
	case change.Payment != nil:
		outcome, err = r.applyPaymentChange(ctx, tx, l, event, *change.Payment)
	}
	if err != nil {
		_ = tx.Rollback(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply failed")
		return "", fmt.Errorf("%w: apply webhook event: %w", api.ErrPersistence, err)
	}

	if _, err := tx.Exec(ctx, `UPDATE webhook_events SET processed_at = NOW() WHERE event_id = $1`, event.ID); err != nil {
		_ = tx.Rollback(ctx)
		span.RecordError(err)
		return "", fmt.Errorf("%w: mark webhook event: %w", api.ErrPersistence, err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return "", fmt.Errorf("%w: commit: %w", api.ErrPersistence, err)
	}
	span.SetStatus(codes.Ok, string(outcome))
	return outcome, nil
}

func (r *PostgresSubscriptionRepo) applySubscriptionChange(ctx context.Context, tx pgx.Tx, l *slog.Logger, eventAt time.Time, ch SubscriptionChange) (ApplyOutcome, error) {
	var (
		rowID       uuid.UUID
		status      string
		lastEventAt *time.Time
	)
	err := tx.QueryRow(ctx, `
		SELECT id, status, last_event_at
		FROM subscriptions
		WHERE processor_subscription_id = $1
		FOR UPDATE`, ch.ProcessorSubscriptionID).Scan(&rowID, &status, &lastEventAt)

	switch {
	case err == nil:
		current := &mirrorState{Status: types.SubscriptionStatus(status), LastEventAt: lastEventAt}
		if !shouldApply(current, ch.Status, eventAt) {
			l.InfoContext(ctx, "Discarding out of order subscription event",
				slog.String("current_status", status),
				slog.String("incoming_status", string(ch.Status)))
			return OutcomeDiscarded, nil
		}
		_, err = tx.Exec(ctx, `
			UPDATE subscriptions SET
				status = $2,
				plan_type = COALESCE($3, plan_type),
				billing_cycle = COALESCE($4, billing_cycle),
				current_period_start = COALESCE($5, current_period_start),
				current_period_end = COALESCE($6, current_period_end),
				cancel_at_period_end = $7,
				source = 'webhook',
				last_event_at = $8,
				received_at = NOW(),
				updated_at = NOW()
			WHERE id = $1`,
			rowID, string(ch.Status), nullableString(string(ch.PlanType)), nullableString(string(ch.BillingCycle)),
			ch.CurrentPeriodStart, ch.CurrentPeriodEnd, ch.CancelAtPeriodEnd, eventAt)
		if err != nil {
			return "", fmt.Errorf("update subscription: %w", err)
		}
		return OutcomeApplied, nil

	case errors.Is(err, pgx.ErrNoRows):
		// Unknown subscription id: the webhook beat the intent write, or the
		// subscription was created outside this service. It may only replace a
		// dead row written before the event, so a late event for a subscription
		// the user already replaced cannot take the row back.
		userID, err := userForCustomer(ctx, tx, ch.CustomerID)
		if errors.Is(err, pgx.ErrNoRows) {
			l.WarnContext(ctx, "Subscription event for unknown customer", slog.String("customerID", ch.CustomerID))
			return OutcomeDiscarded, nil
		}
		if err != nil {
			return "", fmt.Errorf("resolve customer: %w", err)
		}
		if ch.PlanType == "" || ch.BillingCycle == "" {
			l.WarnContext(ctx, "Subscription event with unmapped price", slog.String("priceID", ch.PriceID))
			return OutcomeDiscarded, nil
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO subscriptions (
				user_id, plan_type, billing_cycle, status, processor_customer_id, processor_subscription_id,
				current_period_start, current_period_end, cancel_at_period_end, source, last_event_at, received_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'webhook', $10, NOW())
			ON CONFLICT (user_id) DO UPDATE SET
				plan_type = EXCLUDED.plan_type,
				billing_cycle = EXCLUDED.billing_cycle,
				status = EXCLUDED.status,
				processor_customer_id = EXCLUDED.processor_customer_id,
				processor_subscription_id = EXCLUDED.processor_subscription_id,
				current_period_start = EXCLUDED.current_period_start,
				current_period_end = EXCLUDED.current_period_end,
				cancel_at_period_end = EXCLUDED.cancel_at_period_end,
				source = 'webhook',
				last_event_at = EXCLUDED.last_event_at,
				received_at = NOW(),
				updated_at = NOW()
			WHERE subscriptions.status IN ('canceled', 'incomplete')
				AND EXCLUDED.status <> 'canceled'
				AND subscriptions.received_at <= EXCLUDED.last_event_at`,
			userID, string(ch.PlanType), string(ch.BillingCycle), string(ch.Status), ch.CustomerID, ch.ProcessorSubscriptionID,
			ch.CurrentPeriodStart, ch.CurrentPeriodEnd, ch.CancelAtPeriodEnd, eventAt)
		if err != nil {
			return "", fmt.Errorf("insert subscription: %w", err)
		}
		if tag.RowsAffected() == 0 {
			l.InfoContext(ctx, "Subscription event does not replace the user's current subscription",
				slog.String("userID", userID.String()))
			return OutcomeDiscarded, nil
		}
		return OutcomeApplied, nil

	default:
		return "", fmt.Errorf("lock subscription: %w", err)
	}
}

func (r *PostgresSubscriptionRepo) applyPaymentChange(ctx context.Context, tx pgx.Tx, l *slog.Logger, event WebhookEvent, ch PaymentChange) (ApplyOutcome, error) {
	userID, err := userForCustomer(ctx, tx, ch.CustomerID)
	if errors.Is(err, pgx.ErrNoRows) {
		l.WarnContext(ctx, "Invoice event for unknown customer", slog.String("customerID", ch.CustomerID))
		return OutcomeDiscarded, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve customer: %w", err)
	}

	var subscriptionID *uuid.UUID
	if ch.ProcessorSubscriptionID != "" {
		var id uuid.UUID
		err := tx.QueryRow(ctx,
			`SELECT id FROM subscriptions WHERE processor_subscription_id = $1`, ch.ProcessorSubscriptionID,
		).Scan(&id)
		switch {
		case err == nil:
			subscriptionID = &id
		case !errors.Is(err, pgx.ErrNoRows):
			return "", fmt.Errorf("find subscription: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO billing_history (
			subscription_id, user_id, processor_event_id, processor_invoice_id,
			amount, currency, status, description, payment_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING`,
		subscriptionID, userID, event.ID, nullableString(ch.InvoiceID),
		ch.Amount, ch.Currency, string(ch.Status), ch.Description, event.CreatedAt); err != nil {
		return "", fmt.Errorf("insert billing history: %w", err)
	}

	if subscriptionID == nil {
		return OutcomeApplied, nil
	}

	var transition string
	switch ch.Status {
	case types.PaymentSucceeded:
		transition = `
			UPDATE subscriptions SET status = 'active', source = 'webhook', last_event_at = $2,
				received_at = NOW(), updated_at = NOW()
			WHERE id = $1
				AND status IN ('incomplete', 'past_due', 'trialing')
				AND (last_event_at IS NULL OR last_event_at <= $2)`
	case types.PaymentFailed:
		transition = `
			UPDATE subscriptions SET status = 'past_due', source = 'webhook', last_event_at = $2,
				received_at = NOW(), updated_at = NOW()
			WHERE id = $1
				AND status <> 'canceled'
				AND (last_event_at IS NULL OR last_event_at <= $2)`
	default:
		return OutcomeApplied, nil
	}
	if _, err := tx.Exec(ctx, transition, *subscriptionID, event.CreatedAt); err != nil {
		return "", fmt.Errorf("update subscription status: %w", err)
	}
	return OutcomeApplied, nil
}

func userForCustomer(ctx context.Context, tx pgx.Tx, customerID string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := tx.QueryRow(ctx, `
		SELECT user_id FROM billing_customers WHERE processor_customer_id = $1
		UNION ALL
		SELECT user_id FROM subscriptions WHERE processor_customer_id = $1
		LIMIT 1`, customerID).Scan(&userID)
	return userID, err
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
