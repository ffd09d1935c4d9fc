package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-comment-suggestions/config"
	"github.com/FACorreiaa/go-comment-suggestions/internal/api"
	"github.com/FACorreiaa/go-comment-suggestions/internal/types"
)

const testSecret = "test-secret-key"

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) UpsertUser(ctx context.Context, userID uuid.UUID, email string) error {
	args := m.Called(ctx, userID, email)
	return args.Error(0)
}

type MockUserEnsurer struct {
	mock.Mock
}

func (m *MockUserEnsurer) EnsureUser(ctx context.Context, session types.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func signToken(t *testing.T, claims types.Claims, secret string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func validClaims(userID uuid.UUID) types.Claims {
	return types.Claims{
		Email: "user@example.com",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestAuthenticate(t *testing.T) {
	userID := uuid.New()
	cfg := config.JWTConfig{SecretKey: testSecret, Audience: "authenticated"}

	expired := validClaims(userID)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	wrongAud := validClaims(userID)
	wrongAud.Audience = jwt.ClaimStrings{"anon"}
	badSub := validClaims(userID)
	badSub.Subject = "not-a-uuid"

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad signature", "Bearer " + signToken(t, validClaims(userID), "other"), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, expired, testSecret), http.StatusUnauthorized},
		{"wrong audience", "Bearer " + signToken(t, wrongAud, testSecret), http.StatusUnauthorized},
		{"subject not uuid", "Bearer " + signToken(t, badSub, testSecret), http.StatusUnauthorized},
		{"valid", "Bearer " + signToken(t, validClaims(userID), testSecret), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got types.Session
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = SessionFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})
			h := Authenticate(discardLogger(), cfg, nil)(next)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, userID, got.UserID)
				assert.Equal(t, "user@example.com", got.Email)
			}
		})
	}
}

func TestAuthenticate_EnsureUserFailure(t *testing.T) {
	userID := uuid.New()
	ensurer := new(MockUserEnsurer)
	ensurer.On("EnsureUser", mock.Anything, mock.MatchedBy(func(s types.Session) bool {
		return s.UserID == userID
	})).Return(api.ErrPersistence)

	called := false
	h := Authenticate(discardLogger(), config.JWTConfig{SecretKey: testSecret}, ensurer)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }),
	)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, validClaims(userID), testSecret))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	ensurer.AssertExpectations(t)
}

func TestSessionFromContext_Empty(t *testing.T) {
	_, ok := SessionFromContext(context.Background())
	assert.False(t, ok)

	_, ok = SessionFromContext(WithSession(context.Background(), types.Session{}))
	assert.False(t, ok)
}

func TestUserSync_CachesUpsert(t *testing.T) {
	repo := new(MockUserRepository)
	session := types.Session{UserID: uuid.New(), Email: "a@b.co"}
	repo.On("UpsertUser", mock.Anything, session.UserID, session.Email).Return(nil).Once()

	sync := NewUserSync(repo, time.Minute, discardLogger())
	require.NoError(t, sync.EnsureUser(context.Background(), session))
	require.NoError(t, sync.EnsureUser(context.Background(), session))

	repo.AssertNumberOfCalls(t, "UpsertUser", 1)
}

func TestUserSync_ErrorNotCached(t *testing.T) {
	repo := new(MockUserRepository)
	session := types.Session{UserID: uuid.New(), Email: "a@b.co"}
	repo.On("UpsertUser", mock.Anything, session.UserID, session.Email).Return(errors.New("down")).Twice()

	sync := NewUserSync(repo, time.Minute, discardLogger())
	assert.Error(t, sync.EnsureUser(context.Background(), session))
	assert.Error(t, sync.EnsureUser(context.Background(), session))
	repo.AssertExpectations(t)
}

func TestPostgresUserRepo_UpsertUser(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	userID := uuid.New()
	pool.ExpectExec("INSERT INTO users").
		WithArgs(userID, "a@b.co").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewPostgresUserRepo(pool, discardLogger())
	require.NoError(t, repo.UpsertUser(context.Background(), userID, "a@b.co"))
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgresUserRepo_UpsertUserError(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	userID := uuid.New()
	pool.ExpectExec("INSERT INTO users").
		WithArgs(userID, "a@b.co").
		WillReturnError(errors.New("conn reset"))

	repo := NewPostgresUserRepo(pool, discardLogger())
	err = repo.UpsertUser(context.Background(), userID, "a@b.co")
	assert.ErrorIs(t, err, api.ErrPersistence)
}
