package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-comment-suggestions/internal/api"
	"github.com/FACorreiaa/go-comment-suggestions/internal/api/auth"
	"github.com/FACorreiaa/go-comment-suggestions/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockSubscriptionRepository struct {
	mock.Mock
}

func (m *MockSubscriptionRepository) GetCustomerID(ctx context.Context, userID uuid.UUID) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *MockSubscriptionRepository) SaveCustomer(ctx context.Context, userID uuid.UUID, email, customerID string) error {
	args := m.Called(ctx, userID, email, customerID)
	return args.Error(0)
}

func (m *MockSubscriptionRepository) GetSubscription(ctx context.Context, userID uuid.UUID) (*types.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) UpsertIntent(ctx context.Context, sub types.Subscription) (*types.Subscription, error) {
	args := m.Called(ctx, sub)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) MarkCanceled(ctx context.Context, userID uuid.UUID, processorSubscriptionID string) (*types.Subscription, error) {
	args := m.Called(ctx, userID, processorSubscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) UpdatePlan(ctx context.Context, userID uuid.UUID, processorSubscriptionID string, plan types.PlanType, cycle types.BillingCycle) (*types.Subscription, error) {
	args := m.Called(ctx, userID, processorSubscriptionID, plan, cycle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) ListBillingHistory(ctx context.Context, userID uuid.UUID, limit int) ([]types.BillingHistoryEntry, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.BillingHistoryEntry), args.Error(1)
}

func (m *MockSubscriptionRepository) ApplyWebhookEvent(ctx context.Context, event WebhookEvent, change WebhookChange) (ApplyOutcome, error) {
	args := m.Called(ctx, event, change)
	return args.Get(0).(ApplyOutcome), args.Error(1)
}

type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) FindCustomerByEmail(ctx context.Context, email string) (string, bool, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockProcessor) CreateCustomer(ctx context.Context, email string, userID uuid.UUID) (string, error) {
	args := m.Called(ctx, email, userID)
	return args.String(0), args.Error(1)
}

func (m *MockProcessor) subscription(args mock.Arguments) (*ProcessorSubscription, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ProcessorSubscription), args.Error(1)
}

func (m *MockProcessor) CreateSubscription(ctx context.Context, customerID, priceID, idempotencyKey string) (*ProcessorSubscription, error) {
	return m.subscription(m.Called(ctx, customerID, priceID, idempotencyKey))
}

func (m *MockProcessor) GetSubscription(ctx context.Context, subscriptionID string) (*ProcessorSubscription, error) {
	return m.subscription(m.Called(ctx, subscriptionID))
}

func (m *MockProcessor) ChangeSubscriptionPrice(ctx context.Context, subscriptionID, itemID, priceID string) (*ProcessorSubscription, error) {
	return m.subscription(m.Called(ctx, subscriptionID, itemID, priceID))
}

func (m *MockProcessor) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*ProcessorSubscription, error) {
	return m.subscription(m.Called(ctx, subscriptionID))
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Record(ctx context.Context, event types.EventLog) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type MockSubscriptionService struct {
	mock.Mock
}

func (m *MockSubscriptionService) Create(ctx context.Context, session types.Session, req types.CreateSubscriptionRequest) (*types.CreateSubscriptionResponse, error) {
	args := m.Called(ctx, session, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.CreateSubscriptionResponse), args.Error(1)
}

func (m *MockSubscriptionService) Manage(ctx context.Context, userID uuid.UUID, req types.ManageSubscriptionRequest) (*types.ManageSubscriptionResponse, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.ManageSubscriptionResponse), args.Error(1)
}

func (m *MockSubscriptionService) Get(ctx context.Context, userID uuid.UUID) (*types.SubscriptionView, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.SubscriptionView), args.Error(1)
}

func (m *MockSubscriptionService) BillingHistory(ctx context.Context, userID uuid.UUID) ([]types.BillingHistoryEntry, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.BillingHistoryEntry), args.Error(1)
}

type subscriptionDeps struct {
	repo      *MockSubscriptionRepository
	processor *MockProcessor
	events    *MockRecorder
}

func newTestSubscriptionService() (*SubscriptionServiceImpl, subscriptionDeps) {
	deps := subscriptionDeps{
		repo:      new(MockSubscriptionRepository),
		processor: new(MockProcessor),
		events:    new(MockRecorder),
	}
	svc := NewSubscriptionService(deps.repo, deps.processor, deps.events, testPrices, discardLogger())
	return svc, deps
}

func (d subscriptionDeps) assertAll(t *testing.T) {
	t.Helper()
	d.repo.AssertExpectations(t)
	d.processor.AssertExpectations(t)
	d.events.AssertExpectations(t)
}

func testSession() types.Session {
	return types.Session{UserID: uuid.New(), Email: "alice@example.com", Role: "user"}
}

func TestCreate_NewCustomerProYearly(t *testing.T) {
	svc, deps := newTestSubscriptionService()
	ctx := context.Background()
	session := testSession()

	deps.repo.On("GetSubscription", mock.Anything, session.UserID).Return(nil, api.ErrNotFound)
	deps.repo.On("GetCustomerID", mock.Anything, session.UserID).Return("", api.ErrNotFound)
	deps.processor.On("FindCustomerByEmail", mock.Anything, "alice@example.com").Return("", false, nil)
	deps.processor.On("CreateCustomer", mock.Anything, "alice@example.com", session.UserID).Return("cus_new", nil)
	deps.repo.On("SaveCustomer", mock.Anything, session.UserID, "alice@example.com", "cus_new").Return(nil)
	deps.processor.On("CreateSubscription", mock.Anything, "cus_new", "price_pro_yearly",
		"subscription-cus_new-price_pro_yearly-first").Return(&ProcessorSubscription{
		ID:               "sub_1",
		CustomerID:       "cus_new",
		Status:           "incomplete",
		ClientSecret:     "pi_secret",
		HostedInvoiceURL: "https://invoice.example/1",
	}, nil)
	deps.repo.On("UpsertIntent", mock.Anything, mock.MatchedBy(func(s types.Subscription) bool {
		return s.UserID == session.UserID && s.PlanType == types.PlanPro && s.BillingCycle == types.BillingYearly &&
			s.Status == types.StatusIncomplete && s.ProcessorCustomerID == "cus_new" && s.ProcessorSubscriptionID == "sub_1"
	})).Return(&types.Subscription{Status: types.StatusIncomplete, ProcessorSubscriptionID: "sub_1"}, nil)
	deps.events.On("Record", mock.Anything, mock.MatchedBy(func(e types.EventLog) bool {
		return e.EventType == types.EventSubscriptionCreate && e.UserID == session.UserID
	})).Return(nil)

	resp, err := svc.Create(ctx, session, types.CreateSubscriptionRequest{PlanType: types.PlanPro, BillingCycle: types.BillingYearly})

	require.NoError(t, err)
	assert.Equal(t, "sub_1", resp.SubscriptionID)
	assert.Equal(t, types.StatusIncomplete, resp.Status)
	assert.Equal(t, "pi_secret", resp.ClientSecret)
	assert.Equal(t, "https://invoice.example/1", resp.CheckoutURL)
	deps.assertAll(t)
}

func TestCreate_ReusesKnownCustomer(t *testing.T) {
	svc, deps := newTestSubscriptionService()
	session := testSession()

	deps.repo.On("GetSubscription", mock.Anything, session.UserID).
		Return(&types.Subscription{Status: types.StatusCanceled, ProcessorSubscriptionID: "sub_old"}, nil)
	deps.repo.On("GetCustomerID", mock.Anything, session.UserID).Return("cus_known", nil)
	deps.processor.On("CreateSubscription", mock.Anything, "cus_known", "price_ultra_monthly",
		"subscription-cus_known-price_ultra_monthly-sub_old").
		Return(&ProcessorSubscription{ID: "sub_2", Status: "incomplete"}, nil)
	deps.repo.On("UpsertIntent", mock.Anything, mock.Anything).
		Return(&types.Subscription{Status: types.StatusIncomplete}, nil)
	deps.events.On("Record", mock.Anything, mock.Anything).Return(errors.New("audit down"))

	resp, err := svc.Create(context.Background(), session, types.CreateSubscriptionRequest{PlanType: types.PlanUltra, BillingCycle: types.BillingMonthly})

	require.NoError(t, err)
	assert.Equal(t, "sub_2", resp.SubscriptionID)
	deps.processor.AssertNotCalled(t, "FindCustomerByEmail", mock.Anything, mock.Anything)
	deps.processor.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything, mock.Anything)
	deps.assertAll(t)
}

func TestCreate_ProviderFailureKeepsCustomerAndSkipsMirror(t *testing.T) {
	svc, deps := newTestSubscriptionService()
	session := testSession()

	deps.repo.On("GetSubscription", mock.Anything, session.UserID).Return(nil, api.ErrNotFound)
	deps.repo.On("GetCustomerID", mock.Anything, session.UserID).Return("", api.ErrNotFound)
	deps.processor.On("FindCustomerByEmail", mock.Anything, session.Email).Return("cus_found", true, nil)
	deps.repo.On("SaveCustomer", mock.Anything, session.UserID, session.Email, "cus_found").Return(nil)
	deps.processor.On("CreateSubscription", mock.Anything, "cus_found", "price_pro_monthly",
		"subscription-cus_found-price_pro_monthly-first").
		Return(nil, api.NewProviderError("Your card was declined.", errors.New("card_declined")))

	_, err := svc.Create(context.Background(), session, types.CreateSubscriptionRequest{PlanType: types.PlanPro, BillingCycle: types.BillingMonthly})

	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrPaymentProvider)
	assert.Equal(t, "Your card was declined.", api.PublicMessage(err))
	deps.repo.AssertNotCalled(t, "UpsertIntent", mock.Anything, mock.Anything)
	deps.processor.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything, mock.Anything)
	deps.assertAll(t)
}

func TestCreate_Rejections(t *testing.T) {
	periodEnd := time.Now().Add(72 * time.Hour)
	tests := []struct {
		name    string
		req     types.CreateSubscriptionRequest
		current *types.Subscription
		wantErr error
		field   string
	}{
		{"missing plan", types.CreateSubscriptionRequest{BillingCycle: types.BillingMonthly}, nil, api.ErrValidation, "planType"},
		{"unknown plan", types.CreateSubscriptionRequest{PlanType: "GOLD", BillingCycle: types.BillingMonthly}, nil, api.ErrValidation, "planType"},
		{"unknown cycle", types.CreateSubscriptionRequest{PlanType: types.PlanPro, BillingCycle: "weekly"}, nil, api.ErrValidation, "billingCycle"},
		{"already active", types.CreateSubscriptionRequest{PlanType: types.PlanPro, BillingCycle: types.BillingMonthly},
			&types.Subscription{Status: types.StatusActive}, api.ErrConflict, ""},
		{"past due still live", types.CreateSubscriptionRequest{PlanType: types.PlanUltra, BillingCycle: types.BillingYearly},
			&types.Subscription{Status: types.StatusPastDue}, api.ErrConflict, ""},
		{"canceled but paid through", types.CreateSubscriptionRequest{PlanType: types.PlanPro, BillingCycle: types.BillingMonthly},
			&types.Subscription{Status: types.StatusCanceled, CancelAtPeriodEnd: true, CurrentPeriodEnd: &periodEnd,
				ProcessorSubscriptionID: "sub_old"}, api.ErrConflict, ""},
		{"idempotency key too long", types.CreateSubscriptionRequest{PlanType: types.PlanPro, BillingCycle: types.BillingMonthly,
			IdempotencyKey: strings.Repeat("k", 65)}, nil, api.ErrValidation, "Idempotency-Key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, deps := newTestSubscriptionService()
			session := testSession()
			if tt.current != nil {
				deps.repo.On("GetSubscription", mock.Anything, session.UserID).Return(tt.current, nil)
			}

			_, err := svc.Create(context.Background(), session, tt.req)

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.field != "" {
				var ve *api.ValidationError
				require.True(t, errors.As(err, &ve))
				assert.Equal(t, tt.field, ve.Field)
			}
			deps.processor.AssertNotCalled(t, "CreateSubscription", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCreate_AfterPaidPeriodEndsUsesClientKey(t *testing.T) {
	svc, deps := newTestSubscriptionService()
	session := testSession()
	ended := time.Now().Add(-time.Hour)

	deps.repo.On("GetSubscription", mock.Anything, session.UserID).Return(&types.Subscription{
		Status: types.StatusCanceled, CancelAtPeriodEnd: true, CurrentPeriodEnd: &ended, ProcessorSubscriptionID: "sub_old",
	}, nil)
	deps.repo.On("GetCustomerID", mock.Anything, session.UserID).Return("cus_known", nil)
	deps.processor.On("CreateSubscription", mock.Anything, "cus_known", "price_pro_monthly",
		"subscription-cus_known-price_pro_monthly-retry-42").
		Return(&ProcessorSubscription{ID: "sub_new", Status: "incomplete"}, nil)
	deps.repo.On("UpsertIntent", mock.Anything, mock.MatchedBy(func(s types.Subscription) bool {
		return s.ProcessorSubscriptionID == "sub_new"
	})).Return(&types.Subscription{Status: types.StatusIncomplete, ProcessorSubscriptionID: "sub_new"}, nil)
	deps.events.On("Record", mock.Anything, mock.Anything).Return(nil)

	resp, err := svc.Create(context.Background(), session, types.CreateSubscriptionRequest{
		PlanType: types.PlanPro, BillingCycle: types.BillingMonthly, IdempotencyKey: "retry-42",
	})

	require.NoError(t, err)
	assert.Equal(t, "sub_new", resp.SubscriptionID)
	deps.assertAll(t)
}

func TestSubscriptionIdempotencyKey(t *testing.T) {
	assert.Equal(t, "subscription-cus_1-price_1-first", subscriptionIdempotencyKey("cus_1", "price_1", "", nil))
	assert.Equal(t, "subscription-cus_1-price_1-sub_old",
		subscriptionIdempotencyKey("cus_1", "price_1", "", &types.Subscription{ProcessorSubscriptionID: "sub_old"}))
	assert.Equal(t, "subscription-cus_1-price_1-abc",
		subscriptionIdempotencyKey("cus_1", "price_1", "abc", &types.Subscription{ProcessorSubscriptionID: "sub_old"}))
}

func TestEnsureCustomer_OutlivesCanceledCaller(t *testing.T) {
	svc, deps := newTestSubscriptionService()
	session := testSession()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	live := mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil })
	deps.repo.On("GetCustomerID", live, session.UserID).Return("", api.ErrNotFound)
	deps.processor.On("FindCustomerByEmail", live, session.Email).Return("cus_found", true, nil)
	deps.repo.On("SaveCustomer", live, session.UserID, session.Email, "cus_found").Return(nil)

	id, err := svc.ensureCustomer(ctx, session)

	require.NoError(t, err)
	assert.Equal(t, "cus_found", id)
	deps.assertAll(t)
}

func TestManage_Cancel(t *testing.T) {
	svc, deps := newTestSubscriptionService()
	userID := uuid.New()
	current := &types.Subscription{UserID: userID, Status: types.StatusActive, PlanType: types.PlanPro,
		BillingCycle: types.BillingMonthly, ProcessorSubscriptionID: "sub_1"}
	canceled := *current
	canceled.Status = types.StatusCanceled
	canceled.CancelAtPeriodEnd = true

	deps.repo.On("GetSubscription", mock.Anything, userID).Return(current, nil)
	deps.processor.On("CancelAtPeriodEnd", mock.Anything, "sub_1").
		Return(&ProcessorSubscription{ID: "sub_1", Status: "active", CancelAtPeriodEnd: true}, nil)
	deps.repo.On("MarkCanceled", mock.Anything, userID, "sub_1").Return(&canceled, nil)
	deps.events.On("Record", mock.Anything, mock.MatchedBy(func(e types.EventLog) bool {
		return e.EventType == types.EventSubscriptionManage && e.Metadata["action"] == "cancel"
	})).Return(nil)

	resp, err := svc.Manage(context.Background(), userID, types.ManageSubscriptionRequest{Action: types.ActionCancel})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, types.StatusCanceled, resp.Subscription.Status)
	assert.Equal(t, "Changes may take a moment to reflect.", resp.Message)
	deps.assertAll(t)
}

func TestManage_Upgrade(t *testing.T) {
	svc, deps := newTestSubscriptionService()
	userID := uuid.New()
	ultra := types.PlanUltra
	current := &types.Subscription{UserID: userID, Status: types.StatusActive, PlanType: types.PlanPro,
		BillingCycle: types.BillingYearly, ProcessorSubscriptionID: "sub_1"}

	deps.repo.On("GetSubscription", mock.Anything, userID).Return(current, nil)
	deps.processor.On("GetSubscription", mock.Anything, "sub_1").
		Return(&ProcessorSubscription{ID: "sub_1", ItemID: "si_1", PriceID: "price_pro_yearly"}, nil)
	deps.processor.On("ChangeSubscriptionPrice", mock.Anything, "sub_1", "si_1", "price_ultra_yearly").
		Return(&ProcessorSubscription{ID: "sub_1", ItemID: "si_1", PriceID: "price_ultra_yearly"}, nil)
	deps.repo.On("UpdatePlan", mock.Anything, userID, "sub_1", types.PlanUltra, types.BillingYearly).
		Return(&types.Subscription{Status: types.StatusActive, PlanType: types.PlanUltra, BillingCycle: types.BillingYearly}, nil)
	deps.events.On("Record", mock.Anything, mock.Anything).Return(nil)

	resp, err := svc.Manage(context.Background(), userID, types.ManageSubscriptionRequest{Action: types.ActionUpgrade, NewPlanType: &ultra})

	require.NoError(t, err)
	assert.Equal(t, types.PlanUltra, resp.Subscription.PlanType)
	deps.assertAll(t)
}

func TestManage_Rejections(t *testing.T) {
	pro := types.PlanPro
	ultra := types.PlanUltra
	bogus := types.PlanType("GOLD")
	activePro := &types.Subscription{Status: types.StatusActive, PlanType: types.PlanPro, BillingCycle: types.BillingMonthly, ProcessorSubscriptionID: "sub_1"}
	activeUltra := &types.Subscription{Status: types.StatusActive, PlanType: types.PlanUltra, BillingCycle: types.BillingMonthly, ProcessorSubscriptionID: "sub_1"}

	tests := []struct {
		name    string
		current *types.Subscription
		currErr error
		req     types.ManageSubscriptionRequest
		field   string
	}{
		{"unknown action", activePro, nil, types.ManageSubscriptionRequest{Action: "pause"}, "action"},
		{"no subscription", nil, api.ErrNotFound, types.ManageSubscriptionRequest{Action: types.ActionCancel}, "action"},
		{"already canceled", &types.Subscription{Status: types.StatusCanceled}, nil, types.ManageSubscriptionRequest{Action: types.ActionCancel}, "action"},
		{"upgrade without plan", activePro, nil, types.ManageSubscriptionRequest{Action: types.ActionUpgrade}, "newPlanType"},
		{"upgrade to unknown plan", activePro, nil, types.ManageSubscriptionRequest{Action: types.ActionUpgrade, NewPlanType: &bogus}, "newPlanType"},
		{"upgrade to same plan", activePro, nil, types.ManageSubscriptionRequest{Action: types.ActionUpgrade, NewPlanType: &pro}, "newPlanType"},
		{"downgrade raising plan", activePro, nil, types.ManageSubscriptionRequest{Action: types.ActionDowngrade, NewPlanType: &ultra}, "newPlanType"},
		{"upgrade lowering plan", activeUltra, nil, types.ManageSubscriptionRequest{Action: types.ActionUpgrade, NewPlanType: &pro}, "newPlanType"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, deps := newTestSubscriptionService()
			userID := uuid.New()
			deps.repo.On("GetSubscription", mock.Anything, userID).Return(tt.current, tt.currErr).Maybe()

			_, err := svc.Manage(context.Background(), userID, tt.req)

			require.Error(t, err)
			var ve *api.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.Field)
			deps.processor.AssertNotCalled(t, "CancelAtPeriodEnd", mock.Anything, mock.Anything)
			deps.processor.AssertNotCalled(t, "ChangeSubscriptionPrice", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestGet_EntitlementView(t *testing.T) {
	svc, deps := newTestSubscriptionService()
	withSub := uuid.New()
	pastDue := uuid.New()
	none := uuid.New()

	deps.repo.On("GetSubscription", mock.Anything, withSub).Return(&types.Subscription{Status: types.StatusActive, PlanType: types.PlanUltra}, nil)
	deps.repo.On("GetSubscription", mock.Anything, pastDue).Return(&types.Subscription{Status: types.StatusPastDue, PlanType: types.PlanPro}, nil)
	deps.repo.On("GetSubscription", mock.Anything, none).Return(nil, api.ErrNotFound)

	view, err := svc.Get(context.Background(), withSub)
	require.NoError(t, err)
	assert.True(t, view.Entitled)
	assert.Equal(t, types.PlanUltra, view.Plan)

	view, err = svc.Get(context.Background(), pastDue)
	require.NoError(t, err)
	assert.False(t, view.Entitled)
	assert.Empty(t, view.Plan)

	view, err = svc.Get(context.Background(), none)
	require.NoError(t, err)
	assert.Nil(t, view.Subscription)
	assert.False(t, view.Entitled)
}

func withSession(r *http.Request, userID uuid.UUID) *http.Request {
	return r.WithContext(auth.WithSession(r.Context(), types.Session{UserID: userID, Email: "alice@example.com", Role: "user"}))
}

func TestStripeWebhookHandler(t *testing.T) {
	repo := new(MockSubscriptionRepository)
	h := NewSubscriptionHandler(new(MockSubscriptionService), newTestWebhookService(repo), discardLogger())

	t.Run("bad signature is 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(`{"id":"evt_1"}`))
		req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
		w := httptest.NewRecorder()

		h.StripeWebhook(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid signature")
	})

	t.Run("oversized body is 413", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(make([]byte, MaxWebhookBodyBytes+1)))
		w := httptest.NewRecorder()

		h.StripeWebhook(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("duplicate is acknowledged", func(t *testing.T) {
		payload := []byte(`{"id":"evt_dup","type":"invoice.paid","created":1700000000,"data":{"object":{"id":"in_1","customer":"cus_1","amount_paid":100,"currency":"usd"}}}`)
		repo.On("ApplyWebhookEvent", mock.Anything, mock.Anything, mock.Anything).Return(OutcomeDuplicate, nil).Once()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
		req.Header.Set("Stripe-Signature", signPayload(payload, testWebhookSecret, time.Now()))
		w := httptest.NewRecorder()

		h.StripeWebhook(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"duplicate"}`, w.Body.String())
	})

	repo.AssertExpectations(t)
}

func TestCreateSubscriptionHandler(t *testing.T) {
	userID := uuid.New()

	t.Run("created", func(t *testing.T) {
		svc := new(MockSubscriptionService)
		h := NewSubscriptionHandler(svc, nil, discardLogger())
		svc.On("Create", mock.Anything, mock.MatchedBy(func(s types.Session) bool { return s.UserID == userID }),
			types.CreateSubscriptionRequest{PlanType: types.PlanPro, BillingCycle: types.BillingYearly}).
			Return(&types.CreateSubscriptionResponse{SubscriptionID: "sub_1", Status: types.StatusIncomplete, ClientSecret: "cs"}, nil)

		req := withSession(httptest.NewRequest(http.MethodPost, "/api/v1/subscription",
			strings.NewReader(`{"planType":"PRO","billingCycle":"yearly"}`)), userID)
		w := httptest.NewRecorder()

		h.CreateSubscription(w, req)

		require.Equal(t, http.StatusCreated, w.Code)
		var body types.CreateSubscriptionResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "sub_1", body.SubscriptionID)
		assert.Equal(t, "cs", body.ClientSecret)
		svc.AssertExpectations(t)
	})

	t.Run("forwards idempotency key", func(t *testing.T) {
		svc := new(MockSubscriptionService)
		h := NewSubscriptionHandler(svc, nil, discardLogger())
		svc.On("Create", mock.Anything, mock.Anything, types.CreateSubscriptionRequest{
			PlanType: types.PlanPro, BillingCycle: types.BillingMonthly, IdempotencyKey: "attempt-7",
		}).Return(&types.CreateSubscriptionResponse{SubscriptionID: "sub_1", Status: types.StatusIncomplete}, nil)

		req := withSession(httptest.NewRequest(http.MethodPost, "/api/v1/subscription",
			strings.NewReader(`{"planType":"PRO","billingCycle":"monthly"}`)), userID)
		req.Header.Set("Idempotency-Key", "attempt-7")
		w := httptest.NewRecorder()

		h.CreateSubscription(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("conflict", func(t *testing.T) {
		svc := new(MockSubscriptionService)
		h := NewSubscriptionHandler(svc, nil, discardLogger())
		svc.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil, api.ErrConflict)

		req := withSession(httptest.NewRequest(http.MethodPost, "/api/v1/subscription",
			strings.NewReader(`{"planType":"PRO","billingCycle":"yearly"}`)), userID)
		w := httptest.NewRecorder()

		h.CreateSubscription(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		h := NewSubscriptionHandler(new(MockSubscriptionService), nil, discardLogger())
		w := httptest.NewRecorder()

		h.CreateSubscription(w, httptest.NewRequest(http.MethodPost, "/api/v1/subscription", strings.NewReader(`{}`)))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestGetBillingHistoryHandler(t *testing.T) {
	svc := new(MockSubscriptionService)
	h := NewSubscriptionHandler(svc, nil, discardLogger())
	userID := uuid.New()
	svc.On("BillingHistory", mock.Anything, userID).Return([]types.BillingHistoryEntry{
		{Amount: 20.00, Currency: "usd", Status: types.PaymentSucceeded, Description: "Subscription payment"},
	}, nil)

	w := httptest.NewRecorder()
	h.GetBillingHistory(w, withSession(httptest.NewRequest(http.MethodGet, "/api/v1/billing/history", nil), userID))

	require.Equal(t, http.StatusOK, w.Code)
	var body []types.BillingHistoryEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, 20.00, body[0].Amount)
	svc.AssertExpectations(t)
}
