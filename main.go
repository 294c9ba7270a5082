package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/thomaswakin/SystemAdept-sub000/api/rest"
	"github.com/thomaswakin/SystemAdept-sub000/api/sse"
	"github.com/thomaswakin/SystemAdept-sub000/audit"
	"github.com/thomaswakin/SystemAdept-sub000/cache"
	"github.com/thomaswakin/SystemAdept-sub000/config"
	dbadapter "github.com/thomaswakin/SystemAdept-sub000/db"
	"github.com/thomaswakin/SystemAdept-sub000/game/assign"
	"github.com/thomaswakin/SystemAdept-sub000/game/catalog"
	"github.com/thomaswakin/SystemAdept-sub000/game/lifecycle"
	"github.com/thomaswakin/SystemAdept-sub000/game/runtime"
	"github.com/thomaswakin/SystemAdept-sub000/game/sweep"
	mw "github.com/thomaswakin/SystemAdept-sub000/middleware"
	"github.com/thomaswakin/SystemAdept-sub000/model"
	"github.com/thomaswakin/SystemAdept-sub000/scheduler"
	"github.com/thomaswakin/SystemAdept-sub000/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// schedWakeHost drives the background sweep off the shared scheduler. The
// next wake replaces the previous pending one, which is exactly the
// at-most-one-pending contract the sweep requests.
type schedWakeHost struct {
	sched *scheduler.Scheduler
	fire  func()
}

func (h *schedWakeHost) RequestWake(earliestAfter time.Duration) error {
	h.sched.AddDelay("background_wake", earliestAfter, h.fire)
	return nil
}

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:      cfg.Cache.RedisAddr,
		RedisPassword:  cfg.Cache.RedisPassword,
		RedisDB:        cfg.Cache.RedisDB,
		LocalPubSubBuf: cfg.Cache.LocalPubSubBuf,
	}
	kv, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Quest catalog ----
	cat, err := catalog.Load(cfg.Catalog.Path, cfg.Engine.DefaultTTL)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}
	logger.Info("Catalog loaded", zap.Int("systems", len(cat.Systems())))

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	// ---- Engine services ----
	st := store.New(db, pubsub, logger)
	lc := lifecycle.NewService(st, cat, auditSvc, logger)
	as := assign.NewService(st, cat, auditSvc, logger)
	sweeper := sweep.New(st, lc, logger)
	rt := runtime.NewManager(st, cat, sweeper, sched, pubsub, kv, cfg.Engine, logger)
	defer rt.StopAll()

	// ---- Background sweep ----
	wakeHost := &schedWakeHost{sched: sched}
	bg := sweep.NewBackground(sweeper, wakeHost, cfg.Engine.WakeSpacing, logger)
	wakeHost.fire = func() {
		deadline := time.Now().Add(30 * time.Second)
		bg.OnWake(context.Background(), deadline, func(success bool) {
			logger.Debug("background sweep finished", zap.Bool("success", success))
		})
	}
	wakeHost.RequestWake(cfg.Engine.WakeSpacing)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(db, kv, cfg.Security)
	questH := apirest.NewQuestHandler(st, cat, lc, as, logger)
	assignH := apirest.NewAssignmentHandler(st, cat, as)
	profileH := apirest.NewProfileHandler(st)
	routeH := apirest.NewRouteHandler(rt)
	adminH := apirest.NewAdminHandler(st, sweeper, sched, rt, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, kv), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, kv), authH.Refresh)

		authed := api.Group("", mw.Auth(cfg.Security, kv))
		authed.GET("/route", routeH.Get)

		authed.GET("/quests", questH.List)
		authed.POST("/quests/:id/complete", questH.Complete)
		authed.POST("/quests/:id/restart", questH.Restart)

		authed.GET("/systems", assignH.Systems)
		authed.GET("/assignments", assignH.List)
		authed.POST("/assignments", assignH.Create)
		authed.POST("/assignments/:id/pause", assignH.Pause)
		authed.POST("/assignments/:id/resume", assignH.Resume)
		authed.POST("/assignments/:id/stop", assignH.Stop)

		authed.GET("/profile", profileH.Get)
		authed.PUT("/profile/rest-cycle", profileH.UpdateRestCycle)

		adminG := api.Group("/admin")
		adminG.Use(mw.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.POST("/sweep", adminH.ForceSweep)
		adminG.GET("/notifications/:user_id", adminH.PendingNotifications)
	}

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, kv, cfg.Security, logger)
	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
