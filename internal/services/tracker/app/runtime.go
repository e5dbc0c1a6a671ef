package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/applytrack/internal/platform/telemetry/metrics"
	"github.com/louisbranch/applytrack/internal/platform/timeouts"
	"github.com/louisbranch/applytrack/internal/services/tracker/api/httpapi"
	"github.com/louisbranch/applytrack/internal/services/tracker/dispatch"
	"github.com/louisbranch/applytrack/internal/services/tracker/dispatch/inbox"
	"github.com/louisbranch/applytrack/internal/services/tracker/dispatch/kafka"
	"github.com/louisbranch/applytrack/internal/services/tracker/domain"
	"github.com/louisbranch/applytrack/internal/services/tracker/observability"
	trackersqlite "github.com/louisbranch/applytrack/internal/services/tracker/storage/sqlite"
)

// HealthService is the gRPC health service name reported while the tracker
// runtime is serving.
const HealthService = "tracker.runtime"

const (
	defaultTrackerPort     = 8089
	defaultTrackerHTTPPort = 8080
	defaultTrackerDB       = "data/tracker.db"
	kafkaClientID          = "applytrack-tracker"
)

// RuntimeConfig controls tracker startup, dependencies, and scheduler behavior.
type RuntimeConfig struct {
	Port          int
	HTTPPort      int
	DBPath        string
	Interval      time.Duration
	BatchSize     int
	HorizonDays   int
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
	Timezone      string
	KafkaBrokers  []string
	KafkaTopic    string
	// RulesFile overrides the embedded default reminder rules.
	RulesFile string
}

// runtime holds the assembled tracker dependencies.
type runtime struct {
	store     *trackersqlite.Store
	handler   http.Handler
	scheduler *Scheduler
	closers   []func() error
}

// Run starts tracker dependencies, the scheduler, the HTTP API, and the gRPC
// health server, and blocks until ctx ends.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultTrackerPort
	}
	if cfg.HTTPPort <= 0 {
		cfg.HTTPPort = defaultTrackerHTTPPort
	}

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on tracker port %d: %w", cfg.Port, err)
	}
	defer grpcListener.Close()

	httpListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.HTTPPort))
	if err != nil {
		return fmt.Errorf("listen on tracker http port %d: %w", cfg.HTTPPort, err)
	}
	defer httpListener.Close()

	return rt.serve(ctx, grpcListener, httpListener)
}

func newRuntime(cfg RuntimeConfig) (_ *runtime, err error) {
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultTrackerDB
	}
	location, err := loadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	templates, err := loadRuleTemplates(cfg.RulesFile)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create tracker storage dir: %w", err)
		}
	}

	rt := &runtime{}
	defer func() {
		if err != nil {
			rt.close()
		}
	}()

	store, err := trackersqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open tracker sqlite store: %w", err)
	}
	rt.store = store
	rt.closers = append(rt.closers, store.Close)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	trackerMetrics, err := observability.NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("register tracker metrics: %w", err)
	}
	httpMetrics, err := metrics.NewHTTP(registry, observability.Namespace)
	if err != nil {
		return nil, fmt.Errorf("register http metrics: %w", err)
	}

	opts := domain.ServiceOptions{Logf: log.Printf, Observer: trackerMetrics}
	notifications := inbox.NewService(store, nil, nil)
	targets := []domain.Dispatcher{notifications}
	if len(cfg.KafkaBrokers) == 0 {
		notifications.LogSkipped(log.Printf)
		log.Printf("tracker kafka brokers not configured; email and push dispatches are marked sent without delivery")
	} else {
		publisher, err := newKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, publisher.Close)
		targets = append(targets, publisher)
		log.Printf("tracker publishing dispatches to kafka topic %s", cfg.KafkaTopic)
	}
	dispatcher := dispatch.NewFanout(targets...)

	statusService := domain.NewStatusService(store, dispatcher, opts)
	engine := domain.NewReminderEngine(store, domain.ReminderEngineConfig{
		HorizonDays: cfg.HorizonDays,
		Location:    location,
	}, opts)
	processor := domain.NewJobProcessor(store, dispatcher, domain.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.RetryBackoff,
		MaxDelay:    cfg.RetryMaxDelay,
	}, opts)

	rt.scheduler = NewScheduler(engine, processor, SchedulerConfig{
		Interval:  cfg.Interval,
		BatchSize: cfg.BatchSize,
		Logf:      log.Printf,
		Observer:  trackerMetrics,
	})
	rt.handler = httpapi.NewRouter(httpapi.Dependencies{
		Status:   statusService,
		Rules:    domain.NewRuleService(store, templates, opts),
		Jobs:     domain.NewJobService(store, opts),
		Profiles: store,
		Inbox:    notifications,
		Ping:     store.Ping,
		Gatherer: registry,
		Metrics:  httpMetrics,
	})
	return rt, nil
}

// serve runs the scheduler and both servers until ctx ends, then shuts them
// down in reverse order.
func (rt *runtime) serve(ctx context.Context, grpcListener, httpListener net.Listener) error {
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)

	grpcErr := make(chan error, 1)
	go func() {
		grpcErr <- grpcServer.Serve(grpcListener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-grpcErr
	}()

	httpServer := &http.Server{
		Handler:           rt.handler,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- httpServer.Serve(httpListener)
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown tracker http server: %v", err)
		}
	}()

	if err := rt.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer rt.scheduler.Stop()

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)
	log.Printf("tracker health server listening at %v", grpcListener.Addr())
	log.Printf("tracker http api listening at %v", httpListener.Addr())

	select {
	case <-ctx.Done():
		return nil
	case err := <-httpErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve tracker http: %w", err)
	case err := <-grpcErr:
		grpcErr <- err
		return fmt.Errorf("serve tracker health: %w", err)
	}
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			log.Printf("close tracker dependency: %v", err)
		}
	}
	rt.closers = nil
}

func newKafkaPublisher(brokers []string, topic string) (*kafka.Publisher, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, kafka.ErrTopicRequired
	}
	producer, err := kafka.NewSyncProducer(brokers, kafkaClientID)
	if err != nil {
		return nil, fmt.Errorf("connect kafka producer: %w", err)
	}
	publisher, err := kafka.NewPublisher(producer, topic, nil)
	if err != nil {
		_ = producer.Close()
		return nil, err
	}
	return publisher, nil
}

func loadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	location, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return location, nil
}

func loadRuleTemplates(path string) ([]domain.RuleTemplate, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return domain.DefaultRuleTemplates(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	templates, err := domain.ParseRuleTemplates(data)
	if err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	return templates, nil
}
