package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/forumly/forumcore/internal/config"
	"github.com/forumly/forumcore/internal/infra/gateway"
	"github.com/forumly/forumcore/internal/jobs/reconcile"
	"github.com/forumly/forumcore/internal/repo/forumapi"
	pgrepo "github.com/forumly/forumcore/internal/repo/postgres"
	redrepo "github.com/forumly/forumcore/internal/repo/redis"
	authsvc "github.com/forumly/forumcore/internal/services/auth"
	membershipsvc "github.com/forumly/forumcore/internal/services/membership"
	modsvc "github.com/forumly/forumcore/internal/services/moderation"
	quotasvc "github.com/forumly/forumcore/internal/services/quota"
	ratesvc "github.com/forumly/forumcore/internal/services/rate"
)

type App struct {
	cfg          config.Config
	logger       *zap.Logger
	server       *http.Server
	postgres     *pgxpool.Pool
	redis        *goredis.Client
	reconcileJob *reconcile.Job
	httpRouter   http.Handler
}

// Services is the wired service graph, shared by the HTTP app and forumctl.
type Services struct {
	Membership   *membershipsvc.Service
	Moderation   *modsvc.Service
	Quota        *quotasvc.Service
	Outbox       *pgrepo.ReconcileOutboxRepo
	ReconcileJob *reconcile.Job
	JWT          *authsvc.JWTManager
	Postgres     *pgxpool.Pool
	Redis        *goredis.Client
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	services, err := BuildServices(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)
	RegisterRoutes(r, Dependencies{
		MembershipService: services.Membership,
		ModerationService: services.Moderation,
		QuotaService:      services.Quota,
		JWTManager:        services.JWT,
		Logger:            log,
		Config:            cfg,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:          cfg,
		logger:       log,
		server:       server,
		postgres:     services.Postgres,
		redis:        services.Redis,
		reconcileJob: services.ReconcileJob,
		httpRouter:   r,
	}, nil
}

// BuildServices wires repositories and services from cfg. A postgres that
// cannot be reached at boot leaves the app running in degraded mode.
func BuildServices(ctx context.Context, cfg config.Config, log *zap.Logger) (Services, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
		if cfg.Postgres.MigrateOnBoot {
			if err := pgrepo.Migrate(ctx, pool); err != nil {
				log.Warn("postgres migrations failed, continuing in degraded mode", zap.Error(err))
			}
		}
	}

	forumClient, err := forumapi.NewClient(cfg.ForumAPI.BaseURL, cfg.ForumAPI.ServiceToken, cfg.ForumAPI.Timeout)
	if err != nil {
		return Services{}, fmt.Errorf("create forum api client: %w", err)
	}
	userRepo := forumapi.NewUserRepo(forumClient, cfg.ForumAPI.UserCacheMax, cfg.ForumAPI.UserCacheTTL)
	commentRepo := forumapi.NewCommentRepo(forumClient)
	postRepo := forumapi.NewPostRepo(forumClient)
	paymentRepo := forumapi.NewPaymentRepo(forumClient)

	gatewayClient, err := gateway.NewClient(gateway.Config{
		BaseURL:        cfg.Gateway.BaseURL,
		PublishableKey: cfg.Gateway.PublishableKey,
		Timeout:        cfg.Gateway.Timeout,
	}, paymentRepo)
	if err != nil {
		return Services{}, fmt.Errorf("create gateway client: %w", err)
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	intentRepo := redrepo.NewIntentRepo(redisClient, cfg.Membership.IntentTTL, cfg.Membership.TerminalRetention)
	locker := redrepo.NewLocker(redisClient, cfg.Reconcile.LockTTL)
	rateRepo := redrepo.NewRateRepo(redisClient)
	outboxRepo := pgrepo.NewReconcileOutboxRepo(pool)

	rateLimiter := ratesvc.NewLimiter(rateRepo, map[ratesvc.Action]ratesvc.Rule{
		ratesvc.ActionIntent:   {Max: cfg.Rate.IntentMaxPerHour, Window: time.Hour},
		ratesvc.ActionReport:   {Max: cfg.Rate.ReportMaxPer10Min, Window: 10 * time.Minute},
		ratesvc.ActionClassify: {Max: cfg.Rate.ClassifyMaxPer10Min, Window: 10 * time.Minute},
	})

	membershipService := membershipsvc.NewService(membershipsvc.Dependencies{
		Intents:      intentRepo,
		Entitlements: userRepo,
		Gateway:      gatewayClient,
		Queue:        outboxRepo,
		Locker:       locker,
		Limiter:      rateLimiter,
		Config: membershipsvc.Config{
			Badge:       cfg.Membership.Badge,
			BaseBackoff: cfg.Reconcile.BaseBackoff,
			MaxBackoff:  cfg.Reconcile.MaxBackoff,
		},
		Logger: log,
	})
	moderationService := modsvc.NewService(modsvc.Dependencies{
		Comments: commentRepo,
		Posts:    postRepo,
		Users:    userRepo,
		Locker:   locker,
		Limiter:  rateLimiter,
		Logger:   log,
	})
	quotaService := quotasvc.NewService(userRepo, postRepo, cfg.Membership.FreePostLimit)
	reconcileJob := reconcile.New(outboxRepo, membershipService, cfg.Reconcile.BatchSize, cfg.Reconcile.LockTTL*5, log)

	return Services{
		Membership:   membershipService,
		Moderation:   moderationService,
		Quota:        quotaService,
		Outbox:       outboxRepo,
		ReconcileJob: reconcileJob,
		JWT:          authsvc.NewJWTManager(cfg.Auth.JWTSecret, time.Hour),
		Postgres:     pool,
		Redis:        redisClient,
	}, nil
}

func (a *App) Run() error {
	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// RunReconcileLoop retries pending reconciliations every
// cfg.Reconcile.Interval until ctx is done. Pass failures are only logged.
func (a *App) RunReconcileLoop(ctx context.Context) error {
	if a.reconcileJob == nil || a.postgres == nil {
		return nil
	}

	interval := a.cfg.Reconcile.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	a.runReconcilePass(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.runReconcilePass(ctx)
		}
	}
}

func (a *App) runReconcilePass(ctx context.Context) {
	if _, err := a.reconcileJob.Run(ctx); err != nil {
		a.logger.Warn("reconcile pass failed", zap.Error(err))
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
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
