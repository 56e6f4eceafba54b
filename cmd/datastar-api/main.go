// README: Entry point; loads config, wires the dispatch pipeline, starts the HTTP server and the batch scheduler.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zeizeiwaii/Datastar/internal/ai"
	"github.com/zeizeiwaii/Datastar/internal/config"
	httptransport "github.com/zeizeiwaii/Datastar/internal/http"
	"github.com/zeizeiwaii/Datastar/internal/http/handlers"
	"github.com/zeizeiwaii/Datastar/internal/infra"
	"github.com/zeizeiwaii/Datastar/internal/maps"
	"github.com/zeizeiwaii/Datastar/internal/modules/clustering"
	"github.com/zeizeiwaii/Datastar/internal/modules/decision"
	"github.com/zeizeiwaii/Datastar/internal/modules/dispatch"
	"github.com/zeizeiwaii/Datastar/internal/modules/request"
	"github.com/zeizeiwaii/Datastar/internal/modules/routing"
)

const latestRunTTL = 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := infra.NewLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("datastar-api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	rdb := infra.NewRedis(cfg.Redis.Addr)
	defer rdb.Close()

	counters := dispatch.NewCounters()
	obs := dispatch.MultiObserver{dispatch.NewLogObserver(log.Named("dispatch.events")), counters}

	orch, err := buildOrchestrator(cfg, rdb, obs, log)
	if err != nil {
		return err
	}

	var (
		plans    dispatch.PlanStore
		requests *request.Service
	)
	switch cfg.DB.Driver {
	case "sqlite":
		store, err := dispatch.OpenSQLitePlanStore(cfg.DB.DSN)
		if err != nil {
			return fmt.Errorf("open sqlite plan store: %w", err)
		}
		defer store.Close()
		plans = store
		log.Warn("sqlite mode: request intake and the scheduler need postgres and are disabled")
	default:
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		plans = dispatch.NewPGPlanStore(pool)
		requests = request.NewService(request.NewStore(pool))
	}

	publisher, closePublisher, err := buildPublisher(cfg, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	runCache := dispatch.NewRunCache(rdb, latestRunTTL)

	var runner handlers.BatchRunner
	var scheduler *dispatch.Scheduler
	if cfg.Scheduler.Enabled && requests != nil {
		scheduler = dispatch.NewScheduler(orch, requests, plans, dispatch.SchedulerConfig{
			Interval:   cfg.Scheduler.Interval,
			BatchLimit: cfg.Scheduler.BatchLimit,
		}, log.Named("scheduler")).
			WithCache(runCache).
			WithPublisher(publisher)
		runner = scheduler
	}

	var verifier infra.TokenVerifier
	if cfg.Auth.FirebaseProjectID != "" {
		verifier, err = infra.NewFirebaseVerifier(ctx, cfg.Auth.FirebaseProjectID, cfg.Auth.CredentialsFile)
		if err != nil {
			return fmt.Errorf("firebase init: %w", err)
		}
	} else {
		log.Warn("auth disabled: no firebase project id configured")
	}

	var briefer ai.Briefer
	if cfg.AI.GeminiKey != "" {
		gemini, err := ai.NewGeminiBriefer(ctx, cfg.AI.GeminiKey)
		if err != nil {
			return err
		}
		defer gemini.Close()
		briefer = gemini
	}

	thresholds := decision.DefaultThresholds()
	thresholds.MinPassengers = cfg.Decision.MinPassengers
	thresholds.MaxWaitMinutes = cfg.Decision.MaxWaitMinutes
	thresholds.MinOccupancyRate = cfg.Decision.MinOccupancyRate

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Dispatch: handlers.DispatchDeps{
			Orchestrator:    orch,
			Decisions:       decision.NewEngine(thresholds, decision.DefaultEconomics()),
			VehicleCapacity: cfg.Decision.VehicleCapacity,
			Runs:            runCache,
			Metrics:         counters,
			Runner:          runner,
			Briefer:         briefer,
		},
		Requests:    requests,
		Verifier:    verifier,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Log:         log,
	})
	server := httptransport.NewServer(cfg.HTTP.Addr, router, log.Named("http"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	if scheduler != nil {
		g.Go(func() error {
			if err := scheduler.Run(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func buildOrchestrator(cfg config.Config, rdb *redis.Client, obs dispatch.MultiObserver, log *zap.Logger) (*dispatch.Orchestrator, error) {
	provider, err := maps.New(cfg.Routing.Provider, maps.Config{
		AMapKey:   cfg.Routing.AMapKey,
		GoogleKey: cfg.Routing.GoogleKey,
		OSRMURL:   cfg.Routing.OSRMURL,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Routing.CacheTTL > 0 {
		provider = routing.NewCachedProvider(provider, routing.NewRedisRouteCache(rdb), cfg.Routing.CacheTTL, log.Named("routing.cache"))
	}

	adapter := routing.NewAdapter(provider, routing.AdapterConfig{
		Timeout:       cfg.Routing.Timeout,
		RetryLimit:    cfg.Routing.RetryLimit,
		BackoffBase:   cfg.Routing.BackoffBase,
		RatePerSecond: cfg.Routing.RatePerSecond,
	}, log.Named("routing")).WithObserver(obs)
	planner := routing.NewPlanner(routing.NewComposer(adapter, cfg.Matching.MaxPointsPerRoute), log.Named("routing"))

	params := clustering.Params{
		SpatialThresholdKm: cfg.Matching.SpatialThresholdKm,
		TimeWindow:         time.Duration(cfg.Matching.TimeWindowMinutes) * time.Minute,
		MinSamples:         cfg.Matching.MinSamples,
		MaxClusterRadiusKm: cfg.Matching.MaxClusterRadiusKm,
		MaxPointsPerRoute:  cfg.Matching.MaxPointsPerRoute,
		ExpiryWindow:       time.Duration(cfg.Matching.ExpiryHours) * time.Hour,
	}
	strategy, err := clustering.NewStrategy(cfg.Matching.Strategy, params)
	if err != nil {
		return nil, err
	}
	clusterer := clustering.NewClusterer(params, strategy, cfg.Matching.Workers, log.Named("clustering"))

	log.Info("dispatch pipeline ready",
		zap.String("provider", provider.Name()),
		zap.String("strategy", cfg.Matching.Strategy),
		zap.Float64("spatial_threshold_km", params.SpatialThresholdKm),
		zap.Duration("time_window", params.TimeWindow),
	)
	return dispatch.NewOrchestrator(clusterer, planner, cfg.Routing.Workers, log.Named("dispatch")).WithObserver(obs), nil
}

func buildPublisher(cfg config.Config, log *zap.Logger) (dispatch.Publisher, func(), error) {
	switch cfg.Events.Broker {
	case "kafka":
		p := dispatch.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic, log.Named("events"))
		return p, func() { _ = p.Close() }, nil
	case "amqp":
		conn, err := infra.DialAMQP(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			return nil, nil, err
		}
		return dispatch.NewAMQPPublisher(conn.Channel, cfg.Events.Exchange), func() { _ = conn.Close() }, nil
	default:
		return dispatch.NopPublisher{}, func() {}, nil
	}
}
