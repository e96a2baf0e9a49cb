package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/iliyamo/journal-portal/internal/apperr"
	"github.com/iliyamo/journal-portal/internal/config"
	"github.com/iliyamo/journal-portal/internal/database"
	"github.com/iliyamo/journal-portal/internal/handler"
	"github.com/iliyamo/journal-portal/internal/logger"
	"github.com/iliyamo/journal-portal/internal/mailer"
	"github.com/iliyamo/journal-portal/internal/middleware"
	"github.com/iliyamo/journal-portal/internal/queue"
	"github.com/iliyamo/journal-portal/internal/repository"
	"github.com/iliyamo/journal-portal/internal/router"
	"github.com/iliyamo/journal-portal/internal/service"
	"github.com/iliyamo/journal-portal/internal/storage"
	"github.com/iliyamo/journal-portal/internal/telemetry"
)

const (
	serviceName = "journal-portal"
	keyPrefix   = "journal"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("production", "info")
		boot.Fatal().Err(err).Msg("load config")
	}
	log := logger.New(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	if err := database.Migrate(db, cfg.MigrationsPath, logger.Component(log, "migrate")); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	var blacklist middleware.Blacklist
	var dedupe queue.Deduper
	if rdb != nil {
		defer rdb.Close()
		blacklist = middleware.RedisBlacklist{Client: rdb, Prefix: keyPrefix}
		dedupe = queue.RedisDeduper{Client: rdb, Prefix: keyPrefix}
	} else {
		log.Warn().Msg("redis unavailable: in-memory token blacklist, no rate limiting or response cache")
		blacklist = middleware.NewMemoryBlacklist()
		dedupe = queue.NewMemoryDeduper()
	}

	mongoClient, mongoDB, err := database.OpenMongo(ctx, config.LoadMongoConfig())
	switch {
	case errors.Is(err, database.ErrMongoDisabled):
		log.Info().Msg("mongodb not configured: pages and activity disabled")
	case err != nil:
		log.Warn().Err(err).Msg("mongodb unavailable: pages and activity disabled")
	default:
		defer mongoClient.Disconnect(context.Background())
	}

	files, err := storage.New(cfg.UploadDir, cfg.UploadMaxBytes)
	if err != nil {
		log.Fatal().Err(err).Msg("prepare upload dir")
	}
	mail := mailer.New(config.LoadMailConfig(), logger.Component(log, "mailer"))

	// repositories
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	subs := repository.NewSubmissionRepo(db)
	reviews := repository.NewReviewRepo(db)
	articles := repository.NewArticleRepo(db)
	notes := repository.NewNotificationRepo(db)
	outbox := repository.NewOutboxRepo(db)

	flow := service.NewSubmissionService(subs, reviews, users, articles, cfg.ReviewDueDays, logger.Component(log, "workflow"))

	cacheCfg := config.LoadCacheConfig()
	purge := func(ctx context.Context) error { return middleware.PurgeCache(ctx, rdb, cacheCfg.Prefix) }

	pages := handler.NewPageHandler(nil)
	analytics := handler.NewAnalyticsHandler(articles, reviews, users, subs, nil)
	var activity middleware.ActivitySink
	if mongoDB != nil {
		pageRepo := repository.NewPageRepo(mongoDB)
		activityRepo := repository.NewActivityRepo(mongoDB)
		for name, ensure := range map[string]func(context.Context) error{
			"pages":    pageRepo.EnsureIndexes,
			"activity": activityRepo.EnsureIndexes,
		} {
			if err := ensure(ctx); err != nil {
				log.Warn().Err(err).Str("collection", name).Msg("ensure indexes")
			}
		}
		pages.Pages = pageRepo
		analytics.Activity = activityRepo
		activity = activityRepo
	}

	// background workers
	qcfg := config.LoadQueueConfig()
	if qcfg.URL != "" {
		pub := queue.NewPublisher(qcfg.URL, qcfg.Queue, logger.Component(log, "publisher"))
		defer pub.Close()
		relay := &service.OutboxRelay{
			Store:       outbox,
			Publisher:   pub,
			Interval:    qcfg.OutboxInterval,
			Batch:       qcfg.OutboxBatch,
			MaxAttempts: qcfg.OutboxMaxAttempts,
			Log:         logger.Component(log, "outbox"),
		}
		go relay.Run(ctx)

		if qcfg.ConsumerEnabled {
			consumer := &queue.Consumer{
				URL:         qcfg.URL,
				Queue:       qcfg.Queue,
				FrontendURL: cfg.FrontendURL,
				Sender:      mail,
				Dedupe:      dedupe,
				Log:         logger.Component(log, "consumer"),
			}
			go func() {
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Msg("notification consumer stopped")
				}
			}()
		}
	} else {
		log.Warn().Msg("RABBITMQ_URL not set: outbox events stay pending")
	}
	sweeper := &service.ReviewSweeper{
		Reviews:     reviews,
		Submissions: subs,
		Users:       users,
		Interval:    cfg.ReviewSweepInterval,
		Log:         logger.Component(log, "sweeper"),
	}
	go sweeper.Run(ctx)

	// http
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = apperr.Handler(logger.Component(log, "http"))
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowCredentials: true,
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
	}))
	e.Use(echomw.Secure())
	e.Use(middleware.RequestLogger(logger.Component(log, "http")))
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger.Component(log, "ratelimit")))

	guard := router.Guard{
		Auth:      middleware.JWTAuth(cfg.JWTSecret, blacklist, logger.Component(log, "auth")),
		Activity:  middleware.RecordActivity(activity, logger.Component(log, "activity")),
		Profile:   middleware.RequireProfile(users),
		AuthLimit: middleware.NewTokenBucket(config.LoadAuthRateLimitConfig(), rdb, logger.Component(log, "ratelimit")),
		Cache:     middleware.NewRedisCache(cacheCfg, rdb, logger.Component(log, "cache")),
	}

	router.RegisterRoutes(e, handler.NewHealthHandler(db.PingContext, redisPinger(rdb), mongoPinger(mongoClient), outbox), cfg.UploadDir)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens, blacklist, mail, log), guard)
	router.RegisterUsers(e, handler.NewUserHandler(cfg, users, log), guard)
	router.RegisterSubmissions(e, handler.NewSubmissionHandler(flow, reviews, files, purge, logger.Component(log, "submissions")), guard)
	router.RegisterArticles(e, handler.NewArticleHandler(articles, purge, logger.Component(log, "articles")), guard)
	router.RegisterNotifications(e, handler.NewNotificationHandler(notes), guard)
	router.RegisterContent(e, handler.NewContentHandler(
		repository.NewEditorialBoardRepo(db),
		repository.NewStaticContentRepo(db),
		repository.NewNewsletterRepo(db),
		repository.NewCaseRepo(db),
		repository.NewWaitlistRepo(db),
		files,
		purge,
		logger.Component(log, "content"),
	), guard)
	router.RegisterPages(e, pages, guard)
	router.RegisterAnalytics(e, analytics, guard)

	go func() {
		addr := ":" + cfg.Port
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("flush traces")
	}
}

func redisPinger(rdb *redis.Client) handler.Pinger {
	if rdb == nil {
		return nil
	}
	return func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
}

func mongoPinger(client *mongo.Client) handler.Pinger {
	if client == nil {
		return nil
	}
	return func(ctx context.Context) error { return client.Ping(ctx, nil) }
}
