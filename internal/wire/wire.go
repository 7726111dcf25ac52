// Package wire 提供应用依赖装配
package wire

import (
	"context"
	"fmt"

	"mare-review-api/internal/application/review"
	"mare-review-api/internal/config"
	"mare-review-api/internal/infrastructure/llm"
	"mare-review-api/internal/infrastructure/persistence/redis"
	"mare-review-api/internal/infrastructure/profile"
	"mare-review-api/internal/interfaces/http/handler"
	"mare-review-api/internal/interfaces/http/middleware"
	"mare-review-api/internal/interfaces/http/router"
	"mare-review-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

// App 装配完成的应用
type App struct {
	Router   *router.Router
	Registry *review.Registry
	Redis    *redis.Client
}

// Engine 返回 HTTP 引擎
func (a *App) Engine() *gin.Engine {
	return a.Router.Engine()
}

// InitializeApp 装配应用依赖
// 角色档案加载或解析失败时直接返回错误（启动期快速失败）；
// Redis 为可选依赖，未启用时缓存与限流自动退化。
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	// Redis（可选）
	var redisClient *redis.Client
	if cfg.Cache.Redis.Enabled {
		client, err := redis.New(ctx, cfg.Cache.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect redis: %w", err)
		}
		redisClient = client
	}

	cleanup := func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Error(ctx, "failed to close redis", err)
			}
		}
	}

	// 角色档案
	profiles, err := profile.Load(ctx, cfg.Profiles)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to load persona profiles: %w", err)
	}
	logger.Info(ctx, "persona profiles loaded", "count", len(profiles))

	// LLM 工厂与评论注册表
	factory := llm.NewEinoFactory(cfg)
	registry, err := review.NewRegistry(profiles, factory, review.Options{
		Provider:    cfg.LLM.DefaultProvider,
		MaxAttempts: cfg.Review.MaxAttempts,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to build reviewer registry: %w", err)
	}

	// 评论缓存与限流器（依赖 Redis，可缺省）
	reviewCache := redis.NewReviewCache(redisClient, cfg.Review.CacheTTL)
	var limiter middleware.RateLimiter
	if redisClient != nil {
		limiter = redis.NewRateLimiter(redisClient)
	}

	// HTTP 处理器与路由
	handlers := router.Handlers{
		Health: handler.NewHealthHandler(redisClient, registry, cfg.App.Version),
		Models: handler.NewModelsHandler(registry, cfg.App.Name),
		Chat:   handler.NewChatHandler(registry, reviewCache),
	}
	r := router.New(cfg, handlers, limiter)

	return &App{
		Router:   r,
		Registry: registry,
		Redis:    redisClient,
	}, cleanup, nil
}
