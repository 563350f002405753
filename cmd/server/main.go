package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"qalink/internal/config"
	"qalink/internal/db"
	"qalink/internal/handlers"
	"qalink/internal/logging"
	"qalink/internal/metrics"
	"qalink/internal/middleware"
	"qalink/internal/pubsub"
	"qalink/internal/qa"
	"qalink/internal/router"
	"qalink/internal/services"
	"qalink/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Logger.WithError(err).Fatal("Failed to load config")
	}
	logging.Init(cfg.GetString(config.KeyLogLevel), cfg.GetString(config.KeyLogFormat))
	log := logging.Component("server")

	// Initialize Database
	gdb, err := db.Init(cfg.GetString(config.KeyDatabaseURL))
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	if name, pass := cfg.GetString(config.KeyAdminUsername), cfg.GetString(config.KeyAdminPassword); name != "" && pass != "" {
		created, err := db.EnsureAdmin(gdb, name, cfg.GetString(config.KeyAdminEmail), pass)
		if err != nil {
			log.WithError(err).Fatal("Failed to create admin user")
		}
		if created {
			log.WithField("username", name).Info("Admin user created")
		}
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		log.WithError(err).Fatal("Failed to get database handle")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	clock := clockwork.NewRealClock()
	policy := cfg.QAPolicy()
	st := store.New(gdb)
	topics, err := store.NewCachedTopics(store.NewTopics(gdb, policy),
		cfg.GetInt(config.KeyTopicCacheSize), cfg.GetDuration(config.KeyTopicCacheTTL), clock)
	if err != nil {
		log.WithError(err).Fatal("Failed to create topic cache")
	}

	// 没配置 redis 时只记日志
	var notifier qa.Notifier = pubsub.NewLogNotifier(logging.Component("pubsub"))
	if addr := cfg.GetString(config.KeyRedisAddr); addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := pubsub.Connect(ctx, addr, cfg.GetString(config.KeyRedisPassword), cfg.GetInt(config.KeyRedisDB))
		cancel()
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, change notifications will only be logged")
		} else {
			defer client.Close()
			notifier = pubsub.NewRedisNotifier(client)
		}
	}

	// 初始化异步排名服务
	ranker := qa.NewRanker(st, topics, clock, m, logging.Component("ranker"))
	ranking := services.NewRankingService(ranker, services.RankingOptions{
		Timeout: cfg.GetDuration(config.KeyStoreTimeout),
		Clock:   clock,
		Metrics: m,
		Logger:  logging.Component("ranking"),
	})
	jobs := services.NewJobs(st, ranker, ranking, logging.Component("jobs"))
	if err := jobs.Start(cfg.GetString(config.KeyQARankingCron)); err != nil {
		log.WithError(err).Fatal("Failed to start jobs")
	}

	votes := qa.NewVoteManager(st, topics, notifier, ranking, policy, clock, qa.ManagerOptions{
		StoreTimeout:  cfg.GetDuration(config.KeyStoreTimeout),
		NotifyTimeout: cfg.GetDuration(config.KeyNotifyTimeout),
		Metrics:       m,
		Logger:        logging.Component("votes"),
	})
	comments := services.NewCommentService(st, topics, notifier, ranking, cfg.CommentRules(), services.CommentOptions{
		NotifyTimeout: cfg.GetDuration(config.KeyNotifyTimeout),
		Metrics:       m,
		Logger:        logging.Component("comments"),
	})
	admin := services.NewAdminService(st, topics, jobs, logging.Component("admin"))

	limiter, err := middleware.NewRateLimiter(cfg.GetInt(config.KeyRateLimitPerMinute), cfg.GetInt(config.KeyRateLimitBurst), 10000)
	if err != nil {
		log.WithError(err).Fatal("Failed to create rate limiter")
	}

	// Initialize Gin
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	// Setup Sessions
	sessionStore := cookie.NewStore([]byte(cfg.GetString(config.KeySessionSecret)))
	r.Use(sessions.Sessions("qalink_session", sessionStore))
	r.Use(middleware.LoadUser(st))
	r.Use(middleware.RequestLogger(logging.Component("http")))

	httpLog := logging.Component("handlers")
	var google *handlers.GoogleAuthHandler
	if id := cfg.GetString(config.KeyGoogleClientID); id != "" {
		oauth := handlers.NewGoogleOAuthConfig(id, cfg.GetString(config.KeyGoogleClientSecret), cfg.GetString(config.KeySiteURL))
		google = handlers.NewGoogleAuthHandler(oauth, st, httpLog)
	}
	router.RegisterRoutes(r, router.Handlers{
		Auth:     handlers.NewAuthHandler(st, httpLog),
		Google:   google,
		Votes:    handlers.NewVoteHandler(votes, httpLog),
		Comments: handlers.NewCommentHandler(comments, httpLog),
		Admin:    handlers.NewAdminHandler(admin, httpLog),
		Notes:    handlers.NewNotificationHandler(st, httpLog),
		Health:   handlers.Health(sqlDB),
	}, limiter, reg)

	srv := &http.Server{
		Addr:              ":" + cfg.GetString(config.KeyServerPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", srv.Addr).Info("QALink server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
	jobs.Stop()
	ranking.Stop()
	if err := sqlDB.Close(); err != nil {
		log.WithError(err).Warn("Closing database failed")
	}
}
