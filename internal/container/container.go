package container

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/FACorreiaa/go-comment-suggestions/config"
	database "github.com/FACorreiaa/go-comment-suggestions/app/db"
	"github.com/FACorreiaa/go-comment-suggestions/internal/api/auth"
	"github.com/FACorreiaa/go-comment-suggestions/internal/api/comments"
	eventLog "github.com/FACorreiaa/go-comment-suggestions/internal/api/event_log"
	generativeAI "github.com/FACorreiaa/go-comment-suggestions/internal/api/generative_ai"
	"github.com/FACorreiaa/go-comment-suggestions/internal/api/subscription"
	userProfiles "github.com/FACorreiaa/go-comment-suggestions/internal/api/user_profiles"
	userSettings "github.com/FACorreiaa/go-comment-suggestions/internal/api/user_settings"
)

const (
	userSyncTTL           = 10 * time.Minute
	memoryCooldownCleanup = time.Minute
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger *slog.Logger
	Pool   *pgxpool.Pool
	Redis  *redis.Client

	Authenticate        func(http.Handler) http.Handler
	CommentsHandler     *comments.CommentsHandler
	ProfilesHandler     *userProfiles.UserProfilesHandler
	SettingsHandler     *userSettings.SettingsHandler
	SubscriptionHandler *subscription.SubscriptionHandler
}

// NewContainer initializes and returns a new dependency container. pool must
// already be connected and migrated.
func NewContainer(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (*Container, error) {
	c := &Container{
		Config: cfg,
		Logger: logger,
		Pool:   pool,
	}

	cooldown, err := c.newCooldown(ctx)
	if err != nil {
		return nil, err
	}

	sealer, err := userSettings.NewSealer(cfg.Security.SettingsKey)
	if err != nil {
		return nil, fmt.Errorf("settings key: %w", err)
	}
	if !sealer.Enabled() {
		logger.Warn("Settings key not set, custom API keys cannot be stored")
	}

	completer, err := generativeAI.NewAIClient(ctx, cfg.Gemini.APIKey, cfg.Generation, logger)
	if err != nil {
		return nil, fmt.Errorf("completion client: %w", err)
	}

	// repositories
	userRepo := auth.NewPostgresUserRepo(pool, logger)
	eventRepo := eventLog.NewPostgresEventLogRepo(pool, logger)
	profilesRepo := userProfiles.NewPostgresUserProfilesRepo(pool, logger)
	settingsRepo := userSettings.NewPostgresUserSettingsRepo(pool, logger)
	commentsRepo := comments.NewPostgresCommentsRepo(pool, logger)
	subscriptionRepo := subscription.NewPostgresSubscriptionRepo(pool, logger)

	// services
	profilesService := userProfiles.NewUserProfilesService(profilesRepo, cfg.Generation.DailyLimit, logger)
	settingsService := userSettings.NewUserSettingsService(settingsRepo, profilesService, eventRepo, sealer, logger)
	commentsService := comments.NewCommentsService(
		commentsRepo,
		profilesService,
		settingsService,
		completer,
		eventRepo,
		cooldown,
		cfg.Generation.Cooldown,
		logger,
	)
	subscriptionService := subscription.NewSubscriptionService(
		subscriptionRepo,
		subscription.NewStripeProcessor(cfg.Stripe, logger),
		eventRepo,
		cfg.Stripe.Prices,
		logger,
	)
	webhookService := subscription.NewWebhookService(subscriptionRepo, cfg.Stripe, logger)

	// handlers
	c.Authenticate = auth.Authenticate(logger, cfg.JWT, auth.NewUserSync(userRepo, userSyncTTL, logger))
	c.CommentsHandler = comments.NewCommentsHandler(commentsService, logger)
	c.ProfilesHandler = userProfiles.NewUserProfilesHandler(profilesService, logger)
	c.SettingsHandler = userSettings.NewSettingsHandler(settingsService, logger)
	c.SubscriptionHandler = subscription.NewSubscriptionHandler(subscriptionService, webhookService, logger)

	return c, nil
}

// newCooldown uses redis when configured so the regeneration window is shared
// by every instance, and an in-process cache otherwise.
func (c *Container) newCooldown(ctx context.Context) (comments.Cooldown, error) {
	redisCfg := c.Config.Repositories.Redis
	if redisCfg.Addr == "" {
		c.Logger.Info("Redis not configured, using in-memory cooldown store")
		return comments.NewMemoryCooldown(memoryCooldownCleanup), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", redisCfg.Addr, err)
	}
	c.Redis = client
	c.Logger.Info("Connected to redis", slog.String("addr", redisCfg.Addr))
	return comments.NewRedisCooldown(client), nil
}

// Close releases all resources held by the container
func (c *Container) Close() {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("Error closing redis client", slog.Any("error", err))
		}
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// WaitForDB waits for the database to be ready
func (c *Container) WaitForDB(ctx context.Context) bool {
	return database.WaitForDB(ctx, c.Pool, c.Logger)
}
