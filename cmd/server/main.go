package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"idproof/internal/amrelay"
	"idproof/internal/ekopost"
	"idproof/internal/navet"
	"idproof/internal/oidcclient"
	"idproof/internal/platform/config"
	"idproof/internal/platform/database"
	"idproof/internal/platform/httpserver"
	"idproof/internal/platform/logger"
	platformredis "idproof/internal/platform/redis"
	"idproof/internal/proofing/commit"
	proofinghandler "idproof/internal/proofing/handler"
	"idproof/internal/proofing/letter"
	"idproof/internal/proofing/metrics"
	"idproof/internal/proofing/oidc"
	proofstore "idproof/internal/proofing/store/proof"
	statestore "idproof/internal/proofing/store/state"
	"idproof/internal/proofing/throttle"
	"idproof/internal/support"
	supporthandler "idproof/internal/support/handler"
	"idproof/internal/user/directory"
	userstore "idproof/internal/user/store"
	"idproof/pkg/platform/middleware/metadata"
	"idproof/pkg/platform/middleware/request"
	"idproof/pkg/platform/middleware/requesttime"
)

// main wires the dependency graph and owns the server lifecycle. Business
// logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	pool, err := database.New(cfg.Database)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}

	var (
		states statestore.Store
		proofs proofstore.Store
		users  userstore.Store
	)
	if pool != nil {
		defer pool.Close()
		states = statestore.NewPostgres(pool.DB())
		proofs = proofstore.NewPostgres(pool.DB())
		users = userstore.NewPostgres(pool.DB())
		log.Info("using postgres stores")
	} else {
		states = statestore.NewInMemory()
		proofs = proofstore.NewInMemory()
		users = userstore.NewInMemory()
		log.Warn("no database configured, using in-memory stores")
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	var limiter throttle.Limiter
	if redisClient != nil {
		defer redisClient.Close()
		limiter = throttle.NewRedis(redisClient.Client, cfg.VerifyCodeMaxFailures, cfg.VerifyCodeWindow)
	} else {
		limiter = throttle.NewMemory(cfg.VerifyCodeMaxFailures, cfg.VerifyCodeWindow)
	}

	var relay amrelay.SyncRelay = amrelay.Disabled{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaClient, err := amrelay.NewKafkaClient(cfg.Kafka.Brokers)
		if err != nil {
			log.Error("kafka init failed", "error", err)
			os.Exit(1)
		}
		defer kafkaClient.Close()
		relay = amrelay.NewKafka(kafkaClient, cfg.Kafka.SyncTopic, log)
	} else {
		log.Warn("no kafka brokers configured, sync requests will be reported as pending")
	}

	var sender ekopost.Sender = ekopost.NewHTTPClient(cfg.LetterServiceURL)
	if cfg.DebugLetterMode {
		log.Warn("letter debug mode enabled, letters are not mailed")
		sender = ekopost.DebugSender{}
	}

	dir := directory.NewHTTPClient(cfg.DirectoryURL)
	m := metrics.New()
	committer := commit.New(dir, users, relay, log, m)

	letterSvc := letter.New(
		states, proofs,
		navet.NewHTTPClient(cfg.AddressLookupURL),
		ekopost.TextRenderer{}, sender,
		dir, committer, limiter, log, m,
		cfg.LetterWaitTimeHours,
	)
	oidcSvc := oidc.New(states, proofs, oidcclient.New(cfg.OIDC), dir, committer, log, m)
	supportSvc := support.New(users, states, proofs, log)

	router := chi.NewRouter()
	router.Use(request.Middleware)
	router.Use(requesttime.Middleware)
	router.Use(metadata.ClientMetadata)
	proofinghandler.New(letterSvc, oidcSvc, proofs, log).Register(router)
	supporthandler.New(supportSvc, log, cfg.SupportTokenHash).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			if err := pool.Health(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting idproof", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("stopped")
}
