// Package tracker parses tracker command flags and launches the tracker
// runtime.
package tracker

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/applytrack/internal/platform/cmd"
	"github.com/louisbranch/applytrack/internal/platform/discovery"
	platformgrpc "github.com/louisbranch/applytrack/internal/platform/grpc"
	"github.com/louisbranch/applytrack/internal/platform/timeouts"
	trackerserver "github.com/louisbranch/applytrack/internal/services/tracker/app"
)

// Config holds tracker command configuration.
type Config struct {
	Port          int           `env:"APPLYTRACK_TRACKER_PORT" envDefault:"8089"`
	HTTPPort      int           `env:"APPLYTRACK_TRACKER_HTTP_PORT" envDefault:"8080"`
	DBPath        string        `env:"APPLYTRACK_TRACKER_DB_PATH" envDefault:"data/tracker.db"`
	Interval      time.Duration `env:"APPLYTRACK_TRACKER_INTERVAL" envDefault:"5m"`
	BatchSize     int           `env:"APPLYTRACK_TRACKER_BATCH_SIZE" envDefault:"50"`
	HorizonDays   int           `env:"APPLYTRACK_TRACKER_HORIZON_DAYS" envDefault:"30"`
	MaxAttempts   int           `env:"APPLYTRACK_TRACKER_MAX_ATTEMPTS" envDefault:"1"`
	RetryBackoff  time.Duration `env:"APPLYTRACK_TRACKER_RETRY_BACKOFF" envDefault:"1m"`
	RetryMaxDelay time.Duration `env:"APPLYTRACK_TRACKER_RETRY_MAX_DELAY" envDefault:"30m"`
	Timezone      string        `env:"APPLYTRACK_TRACKER_TIMEZONE" envDefault:"UTC"`
	KafkaBrokers  []string      `env:"APPLYTRACK_TRACKER_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic    string        `env:"APPLYTRACK_TRACKER_KAFKA_TOPIC" envDefault:"applytrack.notifications"`
	RulesFile     string        `env:"APPLYTRACK_TRACKER_RULES_FILE"`
}

// ParseConfig parses .env files, environment, and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg, ".env"); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The tracker health gRPC server port")
	fs.IntVar(&cfg.HTTPPort, "http-port", cfg.HTTPPort, "The tracker HTTP API port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The tracker SQLite database path")
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "Scheduler tick interval")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Maximum jobs drained per tick")
	fs.IntVar(&cfg.HorizonDays, "horizon-days", cfg.HorizonDays, "Days ahead the reminder sweep looks for deadlines")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Maximum dispatch attempts per job")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Base retry backoff delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "Maximum retry delay")
	fs.StringVar(&cfg.Timezone, "timezone", cfg.Timezone, "IANA timezone deciding reminder calendar days")
	fs.Func("kafka-brokers", "Comma-separated Kafka brokers; empty disables publishing", func(value string) error {
		cfg.KafkaBrokers = splitList(value)
		return nil
	})
	fs.StringVar(&cfg.KafkaTopic, "kafka-topic", cfg.KafkaTopic, "Kafka topic for dispatched notifications")
	fs.StringVar(&cfg.RulesFile, "rules-file", cfg.RulesFile, "YAML file overriding default reminder rules")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	cfg.KafkaBrokers = splitList(strings.Join(cfg.KafkaBrokers, ","))
	return cfg, nil
}

// Run starts the tracker runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceTracker, func(ctx context.Context) error {
		return trackerserver.Run(ctx, trackerserver.RuntimeConfig{
			Port:          cfg.Port,
			HTTPPort:      cfg.HTTPPort,
			DBPath:        cfg.DBPath,
			Interval:      cfg.Interval,
			BatchSize:     cfg.BatchSize,
			HorizonDays:   cfg.HorizonDays,
			MaxAttempts:   cfg.MaxAttempts,
			RetryBackoff:  cfg.RetryBackoff,
			RetryMaxDelay: cfg.RetryMaxDelay,
			Timezone:      cfg.Timezone,
			KafkaBrokers:  cfg.KafkaBrokers,
			KafkaTopic:    cfg.KafkaTopic,
			RulesFile:     cfg.RulesFile,
		})
	})
}

// Probe checks that a tracker at addr reports its runtime as serving. An
// empty addr uses the in-network default.
func Probe(ctx context.Context, addr string) error {
	addr = discovery.OrDefaultGRPCAddr(addr, discovery.ServiceTracker)
	conn, err := platformgrpc.DialWithHealth(ctx, nil, addr, trackerserver.HealthService, timeouts.GRPCDial, log.Printf, platformgrpc.DefaultClientDialOptions()...)
	if err != nil {
		return fmt.Errorf("probe tracker at %s: %w", addr, err)
	}
	return conn.Close()
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
