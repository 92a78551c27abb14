package webapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ivankudzin/groupguard/internal/app/botapp"
	"github.com/ivankudzin/groupguard/internal/config"
	tginfra "github.com/ivankudzin/groupguard/internal/infra/telegram"
	redrepo "github.com/ivankudzin/groupguard/internal/repo/redis"
	modsvc "github.com/ivankudzin/groupguard/internal/services/moderation"
	policysvc "github.com/ivankudzin/groupguard/internal/services/policy"
	schedsvc "github.com/ivankudzin/groupguard/internal/services/scheduler"
)

// App is the webhook-mode transport: Telegram pushes updates to an HTTP
// endpoint instead of the bot long-polling, and an external cron hits /sweep
// to drive the deferred deletion scheduler.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	redis      *goredis.Client
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	bot, err := tginfra.NewBot(cfg.Bot.Token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("redis ping failed, continuing in degraded mode", zap.Error(err))
	}

	policyRepo := redrepo.NewPolicyRepo(redisClient)
	violationRepo := redrepo.NewViolationRepo(redisClient, cfg.Moderation.ViolationTTL)
	taskRepo := redrepo.NewTaskRepo(redisClient)
	groupRepo := redrepo.NewGroupRepo(redisClient)

	policyService := policysvc.NewService(policyRepo, cfg.Moderation)
	schedulerService := schedsvc.NewService(taskRepo, bot, log)
	moderationService := modsvc.NewService(modsvc.Dependencies{
		Policies:   policyService,
		Ledger:     violationRepo,
		Deleter:    bot,
		Restrictor: bot,
		Notifier:   bot,
		Notices:    schedulerService,
	}, cfg.Bot.NoticeTTL, log)

	router := botapp.NewRouter(bot, policyService, moderationService, schedulerService, groupRepo, cfg.Bot.NoticeTTL, log)

	r := newHTTPRouter(log)
	RegisterRoutes(r, Dependencies{
		Bot:       bot,
		Handlers:  router.Handlers(),
		Scheduler: schedulerService,
		Logger:    log,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		redis:      redisClient,
		httpRouter: r,
	}, nil
}

func (a *App) Run() error {
	a.logger.Info("webhook server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
