package botapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ivankudzin/groupguard/internal/config"
	tginfra "github.com/ivankudzin/groupguard/internal/infra/telegram"
	redrepo "github.com/ivankudzin/groupguard/internal/repo/redis"
	modsvc "github.com/ivankudzin/groupguard/internal/services/moderation"
	policysvc "github.com/ivankudzin/groupguard/internal/services/policy"
	schedsvc "github.com/ivankudzin/groupguard/internal/services/scheduler"
)

type App struct {
	cfg       config.Config
	logger    *zap.Logger
	redis     *goredis.Client
	bot       *tginfra.Bot
	router    *Router
	scheduler *schedsvc.Service
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	bot, err := tginfra.NewBot(cfg.Bot.Token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping failed, continuing in degraded mode", zap.Error(err))
	}

	policyRepo := redrepo.NewPolicyRepo(redisClient)
	violationRepo := redrepo.NewViolationRepo(redisClient, cfg.Moderation.ViolationTTL)
	taskRepo := redrepo.NewTaskRepo(redisClient)
	groupRepo := redrepo.NewGroupRepo(redisClient)

	policyService := policysvc.NewService(policyRepo, cfg.Moderation)
	schedulerService := schedsvc.NewService(taskRepo, bot, logger)
	moderationService := modsvc.NewService(modsvc.Dependencies{
		Policies:   policyService,
		Ledger:     violationRepo,
		Deleter:    bot,
		Restrictor: bot,
		Notifier:   bot,
		Notices:    schedulerService,
	}, cfg.Bot.NoticeTTL, logger)

	router := NewRouter(bot, policyService, moderationService, schedulerService, groupRepo, cfg.Bot.NoticeTTL, logger)

	return &App{
		cfg:       cfg,
		logger:    logger,
		redis:     redisClient,
		bot:       bot,
		router:    router,
		scheduler: schedulerService,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("moderation bot started")

	errCh := make(chan error, 2)
	go func() {
		errCh <- a.runSweepLoop(ctx)
	}()
	go func() {
		errCh <- a.bot.Listen(ctx, a.router.Handlers())
	}()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("moderation bot stopped")
			return nil
		case err := <-errCh:
			if err == nil || errors.Is(err, context.Canceled) {
				continue
			}
			return err
		}
	}
}

// runSweepLoop drives the deferred deletion scheduler on a fixed cadence.
// Sweep errors are logged and never stop the loop: the next tick retries.
func (a *App) runSweepLoop(ctx context.Context) error {
	interval := a.cfg.Bot.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}

	if _, err := a.scheduler.Sweep(ctx, time.Now()); err != nil {
		a.logger.Warn("deletion sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := a.scheduler.Sweep(ctx, time.Now()); err != nil {
				a.logger.Warn("deletion sweep failed", zap.Error(err))
			}
		}
	}
}

func (a *App) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
