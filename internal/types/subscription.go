package types

import (
	"time"

	"github.com/google/uuid"
)

type PlanType string

const (
	PlanPro   PlanType = "PRO"
	PlanUltra PlanType = "ULTRA"
)

func (p PlanType) Valid() bool {
	return p == PlanPro || p == PlanUltra
}

// Rank orders plans so upgrades and downgrades can be checked.
func (p PlanType) Rank() int {
	switch p {
	case PlanPro:
		return 1
	case PlanUltra:
		return 2
	}
	return 0
}

type BillingCycle string

const (
	BillingMonthly BillingCycle = "monthly"
	BillingYearly  BillingCycle = "yearly"
)

func (c BillingCycle) Valid() bool {
	return c == BillingMonthly || c == BillingYearly
}

type SubscriptionStatus string

const (
	StatusIncomplete SubscriptionStatus = "incomplete"
	StatusTrialing   SubscriptionStatus = "trialing"
	StatusActive     SubscriptionStatus = "active"
	StatusPastDue    SubscriptionStatus = "past_due"
	StatusCanceled   SubscriptionStatus = "canceled"
)

// IsEntitled reports whether the status unlocks paid features.
func (s SubscriptionStatus) IsEntitled() bool {
	return s == StatusActive || s == StatusTrialing
}

func (s SubscriptionStatus) IsTerminal() bool {
	return s == StatusCanceled
}

// NormalizeStatus folds processor statuses onto the local lifecycle.
func NormalizeStatus(raw string) SubscriptionStatus {
	switch raw {
	case "active":
		return StatusActive
	case "trialing":
		return StatusTrialing
	case "past_due", "unpaid":
		return StatusPastDue
	case "canceled", "incomplete_expired":
		return StatusCanceled
	default:
		return StatusIncomplete
	}
}

// WriteSource tags who last wrote a subscription row.
type WriteSource string

const (
	SourceIntent  WriteSource = "intent"
	SourceWebhook WriteSource = "webhook"
)

// Subscription mirrors the processor's view of a user's subscription.
type Subscription struct {
	ID                      uuid.UUID          `json:"id"`
	UserID                  uuid.UUID          `json:"user_id"`
	PlanType                PlanType           `json:"plan_type"`
	BillingCycle            BillingCycle       `json:"billing_cycle"`
	Status                  SubscriptionStatus `json:"status"`
	ProcessorCustomerID     string             `json:"processor_customer_id"`
	ProcessorSubscriptionID string             `json:"processor_subscription_id"`
	CurrentPeriodStart      *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd        *time.Time         `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd       bool               `json:"cancel_at_period_end"`
	Source                  WriteSource        `json:"source"`
	LastEventAt             *time.Time         `json:"last_event_at,omitempty"`
	ReceivedAt              time.Time          `json:"received_at"`
	CreatedAt               time.Time          `json:"created_at"`
	UpdatedAt               time.Time          `json:"updated_at"`
}

type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
	PaymentPending   PaymentStatus = "pending"
)

// BillingHistoryEntry is an append-only ledger row per payment attempt.
type BillingHistoryEntry struct {
	ID                 int64         `json:"id"`
	SubscriptionID     *uuid.UUID    `json:"subscription_id,omitempty"`
	UserID             uuid.UUID     `json:"user_id"`
	ProcessorEventID   string        `json:"-"`
	ProcessorInvoiceID string        `json:"invoice_id,omitempty"`
	Amount             float64       `json:"amount"`
	Currency           string        `json:"currency"`
	Status             PaymentStatus `json:"status"`
	Description        string        `json:"description"`
	PaymentDate        time.Time     `json:"payment_date"`
	CreatedAt          time.Time     `json:"created_at"`
}

type CreateSubscriptionRequest struct {
	PlanType     PlanType     `json:"planType" validate:"required"`
	BillingCycle BillingCycle `json:"billingCycle" validate:"required"`
	// IdempotencyKey comes from the Idempotency-Key header. A retry with the
	// same key resolves to the same processor subscription.
	IdempotencyKey string `json:"-"`
}

type CreateSubscriptionResponse struct {
	SubscriptionID string             `json:"subscriptionId"`
	Status         SubscriptionStatus `json:"status"`
	CheckoutURL    string             `json:"checkoutUrl,omitempty"`
	ClientSecret   string             `json:"clientSecret,omitempty"`
}

type ManageAction string

const (
	ActionCancel    ManageAction = "cancel"
	ActionUpgrade   ManageAction = "upgrade"
	ActionDowngrade ManageAction = "downgrade"
)

type ManageSubscriptionRequest struct {
	Action          ManageAction  `json:"action" validate:"required,oneof=cancel upgrade downgrade"`
	NewPlanType     *PlanType     `json:"newPlanType,omitempty"`
	NewBillingCycle *BillingCycle `json:"newBillingCycle,omitempty"`
}

type ManageSubscriptionResponse struct {
	Success      bool          `json:"success"`
	Subscription *Subscription `json:"subscription"`
	Message      string        `json:"message,omitempty"`
}

// SubscriptionView is the caller's current subscription plus its entitlement.
type SubscriptionView struct {
	Subscription *Subscription `json:"subscription"`
	Entitled     bool          `json:"entitled"`
	Plan         PlanType      `json:"plan,omitempty"`
}
