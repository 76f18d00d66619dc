package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/codewandler/cqrskit/adapters/nats"
	prom "github.com/codewandler/cqrskit/adapters/prometheus"
	"github.com/codewandler/cqrskit/adapters/redis"
	"github.com/codewandler/cqrskit/adapters/sqlite"
	"github.com/codewandler/cqrskit/core/cache"
	"github.com/codewandler/cqrskit/core/cqrs"
	"github.com/codewandler/cqrskit/core/es"
	"github.com/codewandler/cqrskit/core/perkey"
	"github.com/codewandler/cqrskit/internal/bank"
)

// NOTE: run nats: docker run --net=host nats:latest -js

type config struct {
	Backend       string        `env:"BACKEND" envDefault:"memory"`
	N             int           `env:"N" envDefault:"20000"`
	BatchSize     int           `env:"B" envDefault:"1000"`
	Accounts      int           `env:"ACCOUNTS" envDefault:"16"`
	Concurrency   int           `env:"CONCURRENCY" envDefault:"8"`
	SnapshotCache int           `env:"SNAPSHOT_CACHE" envDefault:"1000"`
	SQLitePath    string        `env:"SQLITE_PATH" envDefault:"loadtest.db"`
	NatsURL       string        `env:"NATS_URL"`
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	LogLevel      slog.Level    `env:"LOG_LEVEL" envDefault:"info"`
	MetricsAddr   string        `env:"METRICS_ADDR"`
	Timeout       time.Duration `env:"TIMEOUT" envDefault:"2m"`
}

type backend struct {
	states  es.StateStore
	events  es.EventStore
	cmdLog  cqrs.CommandLogStore
	cleanup func()
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "parse env: %v\n", err)
		os.Exit(2)
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("loadtest failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	all := prom.NewAllMetrics(reg)
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", slog.Any("error", err))
			}
		}()
		defer srv.Close()
		log.Info("serving metrics", slog.String("addr", cfg.MetricsAddr))
	}

	events := es.NewEventRegistry()
	bank.RegisterEvents(events)

	be, err := openBackend(ctx, cfg, log, events)
	if err != nil {
		return err
	}
	defer be.cleanup()

	// without a cache size concurrent snapshot reads are still coalesced
	var snapshotCache cache.Cache = cache.NewNop()
	if cfg.SnapshotCache > 0 {
		snapshotCache = cache.NewLRU(cache.LRUOpts{Size: cfg.SnapshotCache})
	}
	states := es.NewCachedStateStore(
		es.InstrumentStateStore(be.states, all.ES),
		es.WithCache(snapshotCache),
		es.WithMetrics(all.ES),
		es.WithLog(log),
	)

	registry := cqrs.NewRegistry()
	bank.Register(registry)
	factory := cqrs.NewFactory(states, es.InstrumentEventStore(be.events, all.ES))
	bank.Provide(factory, bank.NewLedger(), &bank.LargeDepositAlert{Threshold: 990})

	sched := perkey.New[string]()
	defer sched.Close()

	middlewares := []cqrs.Middleware{
		cqrs.NewLogMiddleware(log),
		cqrs.NewRetryMiddleware(cqrs.RetryLog(log)),
		cqrs.NewPerKeyMiddleware(registry, sched),
	}
	if be.cmdLog != nil {
		middlewares = append(middlewares, cqrs.NewCommandLogMiddleware(be.cmdLog))
	}
	d := cqrs.NewDispatcher(registry, factory,
		cqrs.WithLog(log),
		cqrs.WithMetrics(all.CQRS),
		cqrs.WithVersionCheck(),
		cqrs.WithMiddlewares(middlewares...),
	)

	fmt.Printf("Backend: %s\n", cfg.Backend)
	fmt.Printf("Snapshot cache: %d\n", cfg.SnapshotCache)
	fmt.Printf("Accounts: %d, concurrency: %d\n", cfg.Accounts, cfg.Concurrency)

	var (
		done     atomic.Int64
		mu       sync.Mutex
		startAt  = time.Now()
		lastTime = startAt
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Concurrency, 1))
	for i := 0; i < cfg.N; i++ {
		accID := "acc-" + strconv.Itoa(i%max(cfg.Accounts, 1))
		amount := 1 + i%1000
		g.Go(func() error {
			if _, err := d.Dispatch(gctx, cqrs.NewCommand(bank.Deposit{Amount: amount}, accID)); err != nil {
				return err
			}
			n := done.Add(1)
			if n%int64(max(cfg.BatchSize, 1)) == 0 {
				mem := getMemUsage()
				mu.Lock()
				now := time.Now()
				took := now.Sub(lastTime)
				lastTime = now
				mu.Unlock()
				fmt.Printf(" | %7d cmds | %6d ms | %7d cmds/s | (%d / %d) MiB mem (sys) |\n",
					n, took.Milliseconds(), int(float64(cfg.BatchSize)/took.Seconds()), mem.Alloc/1024/1024, mem.Sys/1024/1024)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	took := time.Since(startAt)
	runtime.GC()
	fmt.Println("==========================================")
	fmt.Printf("total runtime: %.3f seconds\n", took.Seconds())
	fmt.Printf("     commands: %d\n", done.Load())
	fmt.Printf("  avg. cmds/s: %d\n", int(float64(done.Load())/took.Seconds()))
	return nil
}

func openBackend(ctx context.Context, cfg config, log *slog.Logger, events *es.EventRegistry) (*backend, error) {
	switch cfg.Backend {
	case "memory":
		return &backend{
			states:  es.NewInMemoryStateStore(),
			events:  es.NewInMemoryEventStore(),
			cmdLog:  cqrs.NewInMemoryCommandLog(),
			cleanup: func() {},
		}, nil

	case "sqlite":
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &backend{
			states:  store.StateStore(),
			events:  store.EventStore(events),
			cmdLog:  store.CommandLog(),
			cleanup: func() { _ = store.Close() },
		}, nil

	case "nats":
		connect := nats.ReuseConnection(nats.ConnectDefault())
		if cfg.NatsURL != "" {
			connect = nats.ReuseConnection(nats.ConnectURL(cfg.NatsURL))
		}
		eventStore, err := nats.NewEventStore(ctx, nats.EventStoreConfig{
			Connect:       connect,
			Log:           log,
			Registry:      events,
			SubjectPrefix: "cqrskit.loadtest",
			StreamName:    "CQRSKIT_LOADTEST",
		})
		if err != nil {
			return nil, err
		}
		states, kvStore, err := nats.NewStateStore(ctx, nats.KVConfig{
			Connect: connect,
			Log:     log,
			Bucket:  "loadtest_snapshots",
			TTL:     5 * time.Minute,
		})
		if err != nil {
			_ = eventStore.Close()
			return nil, err
		}
		return &backend{
			states: states,
			events: eventStore,
			cleanup: func() {
				_ = kvStore.Close()
				_ = eventStore.Close()
			},
		}, nil

	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return &backend{
			states:  redis.NewStateStore(client, "loadtest:snapshot:"),
			events:  redis.NewEventStore(client, events, redis.WithPrefix("loadtest:es:"), redis.WithLog(log)),
			cleanup: func() { _ = client.Close() },
		}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// === stats helpers ===

type MemUsage struct {
	Alloc      uint64 // bytes allocated and not yet freed (heap)
	TotalAlloc uint64 // cumulative bytes allocated
	Sys        uint64 // total bytes obtained from OS
	NumGC      uint32 // gc cycles
}

func getMemUsage() MemUsage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemUsage{
		Alloc:      m.Alloc,
		TotalAlloc: m.TotalAlloc,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
	}
}
