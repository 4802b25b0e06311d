package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"soulbound/internal/audit"
	"soulbound/internal/platform/config"
	"soulbound/internal/platform/httpserver"
	"soulbound/internal/platform/logger"
	platformredis "soulbound/internal/platform/redis"
	"soulbound/internal/registry/handler"
	"soulbound/internal/registry/metrics"
	"soulbound/internal/registry/service"
	"soulbound/internal/registry/store/authgraph"
	"soulbound/internal/registry/store/credential"
	id "soulbound/pkg/domain"
	authmw "soulbound/pkg/platform/middleware/auth"
	"soulbound/pkg/platform/middleware/requestid"
	"soulbound/pkg/platform/middleware/requesttime"
)

// main wires stores, service, transport, and background workers. Business
// logic lives in internal/registry.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	admin, err := id.ParseIdentity(cfg.AdminIdentity)
	if err != nil {
		log.Error("invalid admin identity", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		credStore service.CredentialStore
		graph     service.Graph
	)
	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("ping postgres", "error", err)
			os.Exit(1)
		}
		credStore = credential.NewPostgres(db)
		graph = authgraph.NewPostgres(db)
	} else {
		credStore = credential.NewInMemory(credential.WithMaxPerHolder(cfg.MaxCredentialsPerHolder))
		graph = authgraph.NewInMemory(authgraph.WithMaxIssuersPerType(cfg.MaxIssuersPerType))
	}

	rdb, err := platformredis.New(cfg.Redis())
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
		graph = authgraph.NewRedisCache(graph, rdb.Client, cfg.AuthCacheTTL, log)
	}

	var sink audit.Store
	if len(cfg.KafkaBrokers) > 0 {
		kafkaStore, err := audit.NewKafkaStore(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer kafkaStore.Close()
		sink = kafkaStore
	} else {
		sink = audit.NewInMemoryStore()
	}

	inbox := make(chan audit.Event, 1024)
	worker := audit.NewWorker(sink, inbox)

	registry, err := service.New(admin, credStore, graph,
		service.WithLogger(log),
		service.WithAuditPublisher(audit.NewChannelPublisher(inbox)),
		service.WithMetrics(metrics.New()),
	)
	if err != nil {
		log.Error("build registry", "error", err)
		os.Exit(1)
	}

	h := handler.New(registry, log)
	validator := authmw.NewHMACValidator(cfg.JWTSigningKey)

	router := chi.NewRouter()
	router.Use(requestid.Middleware)
	router.Use(requesttime.Middleware)
	router.Handle("/metrics", promhttp.Handler())
	router.Group(h.RegisterPublic)
	router.Group(func(r chi.Router) {
		r.Use(authmw.RequireCaller(validator, log))
		h.Register(r)
		h.RegisterAdmin(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := worker.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		log.Info("starting soulbound registry", "addr", cfg.Addr, "admin", admin)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("shutdown failed", "error", err)
		os.Exit(1)
	}
}
