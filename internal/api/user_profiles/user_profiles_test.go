package userProfiles

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-comment-suggestions/internal/api"
	"github.com/FACorreiaa/go-comment-suggestions/internal/api/auth"
	"github.com/FACorreiaa/go-comment-suggestions/internal/types"
)

type MockUserProfilesRepo struct {
	mock.Mock
}

func (m *MockUserProfilesRepo) ConsumeDailyPrompt(ctx context.Context, userID uuid.UUID, limit int) (int, time.Time, bool, error) {
	args := m.Called(ctx, userID, limit)
	return args.Int(0), args.Get(1).(time.Time), args.Bool(2), args.Error(3)
}

func (m *MockUserProfilesRepo) RefundDailyPrompt(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockUserProfilesRepo) GetProfile(ctx context.Context, userID uuid.UUID) (*types.UserProfile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.UserProfile), args.Error(1)
}

func (m *MockUserProfilesRepo) UpsertProfile(ctx context.Context, userID uuid.UUID, displayName, avatarURL *string) error {
	args := m.Called(ctx, userID, displayName, avatarURL)
	return args.Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConsumeDailyPrompt_OneBelowCeiling(t *testing.T) {
	repo := new(MockUserProfilesRepo)
	userID := uuid.New()
	resetAt := time.Now().Add(-time.Hour)
	repo.On("ConsumeDailyPrompt", mock.Anything, userID, 20).Return(20, resetAt, true, nil)

	svc := NewUserProfilesService(repo, 20, discardLogger())
	usage, err := svc.ConsumeDailyPrompt(context.Background(), userID)

	require.NoError(t, err)
	assert.Equal(t, 20, usage.Used)
	assert.Equal(t, 0, usage.Remaining)
	repo.AssertExpectations(t)
}

func TestConsumeDailyPrompt_AtCeiling(t *testing.T) {
	repo := new(MockUserProfilesRepo)
	userID := uuid.New()
	repo.On("ConsumeDailyPrompt", mock.Anything, userID, 20).Return(0, time.Time{}, false, nil)

	svc := NewUserProfilesService(repo, 20, discardLogger())
	_, err := svc.ConsumeDailyPrompt(context.Background(), userID)

	assert.ErrorIs(t, err, api.ErrRateLimitExceeded)
}

func TestConsumeDailyPrompt_StorageError(t *testing.T) {
	repo := new(MockUserProfilesRepo)
	userID := uuid.New()
	repo.On("ConsumeDailyPrompt", mock.Anything, userID, 20).Return(0, time.Time{}, false, api.ErrPersistence)

	svc := NewUserProfilesService(repo, 20, discardLogger())
	_, err := svc.ConsumeDailyPrompt(context.Background(), userID)

	assert.ErrorIs(t, err, api.ErrPersistence)
	assert.NotErrorIs(t, err, api.ErrRateLimitExceeded)
}

func TestGetUsage(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()

	tests := []struct {
		name          string
		profile       *types.UserProfile
		err           error
		wantUsed      int
		wantRemaining int
		wantResetsAt  time.Time
	}{
		{
			name:          "no profile yet",
			err:           api.ErrNotFound,
			wantUsed:      0,
			wantRemaining: 20,
			wantResetsAt:  now.Add(24 * time.Hour),
		},
		{
			name:          "inside window",
			profile:       &types.UserProfile{DailyPromptCount: 7, LastResetAt: now.Add(-2 * time.Hour)},
			wantUsed:      7,
			wantRemaining: 13,
			wantResetsAt:  now.Add(22 * time.Hour),
		},
		{
			name:          "window elapsed",
			profile:       &types.UserProfile{DailyPromptCount: 20, LastResetAt: now.Add(-25 * time.Hour)},
			wantUsed:      0,
			wantRemaining: 20,
			wantResetsAt:  now.Add(24 * time.Hour),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockUserProfilesRepo)
			if tt.profile != nil {
				repo.On("GetProfile", mock.Anything, userID).Return(tt.profile, nil)
			} else {
				repo.On("GetProfile", mock.Anything, userID).Return(nil, tt.err)
			}
			svc := NewUserProfilesService(repo, 20, discardLogger())
			svc.now = func() time.Time { return now }

			usage, err := svc.GetUsage(context.Background(), userID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantUsed, usage.Used)
			assert.Equal(t, tt.wantRemaining, usage.Remaining)
			assert.Equal(t, 20, usage.Limit)
			assert.True(t, tt.wantResetsAt.Equal(usage.ResetsAt), "resets_at %s", usage.ResetsAt)
		})
	}
}

func TestPostgresRepo_ConsumeDailyPrompt(t *testing.T) {
	userID := uuid.New()

	t.Run("consumed", func(t *testing.T) {
		pool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer pool.Close()

		resetAt := time.Now()
		pool.ExpectQuery("INSERT INTO user_profiles").
			WithArgs(userID, 20).
			WillReturnRows(pgxmock.NewRows([]string{"daily_prompt_count", "last_reset_at"}).AddRow(5, resetAt))

		repo := NewPostgresUserProfilesRepo(pool, discardLogger())
		count, gotReset, ok, err := repo.ConsumeDailyPrompt(context.Background(), userID, 20)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 5, count)
		assert.Equal(t, resetAt, gotReset)
		assert.NoError(t, pool.ExpectationsWereMet())
	})

	t.Run("exhausted returns no row", func(t *testing.T) {
		pool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer pool.Close()

		pool.ExpectQuery("INSERT INTO user_profiles").
			WithArgs(userID, 20).
			WillReturnRows(pgxmock.NewRows([]string{"daily_prompt_count", "last_reset_at"}))

		repo := NewPostgresUserProfilesRepo(pool, discardLogger())
		_, _, ok, err := repo.ConsumeDailyPrompt(context.Background(), userID, 20)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("db error", func(t *testing.T) {
		pool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer pool.Close()

		pool.ExpectQuery("INSERT INTO user_profiles").
			WithArgs(userID, 20).
			WillReturnError(errors.New("connection refused"))

		repo := NewPostgresUserProfilesRepo(pool, discardLogger())
		_, _, _, err = repo.ConsumeDailyPrompt(context.Background(), userID, 20)
		assert.ErrorIs(t, err, api.ErrPersistence)
	})
}

func TestPostgresRepo_GetProfileNotFound(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	userID := uuid.New()
	pool.ExpectQuery("FROM user_profiles").
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "display_name", "avatar_url", "daily_prompt_count", "last_reset_at", "created_at", "updated_at"}))

	repo := NewPostgresUserProfilesRepo(pool, discardLogger())
	_, err = repo.GetProfile(context.Background(), userID)
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestUserProfilesHandler_GetUsage(t *testing.T) {
	userID := uuid.New()
	repo := new(MockUserProfilesRepo)
	repo.On("GetProfile", mock.Anything, userID).Return(&types.UserProfile{DailyPromptCount: 3, LastResetAt: time.Now()}, nil)
	h := NewUserProfilesHandler(NewUserProfilesService(repo, 20, discardLogger()), discardLogger())

	t.Run("authenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil)
		req = req.WithContext(auth.WithSession(req.Context(), types.Session{UserID: userID}))
		w := httptest.NewRecorder()

		h.GetUsage(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var usage types.Usage
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &usage))
		assert.Equal(t, 3, usage.Used)
		assert.Equal(t, 17, usage.Remaining)
	})

	t.Run("no session", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.GetUsage(w, httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
