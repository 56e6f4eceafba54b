// README: Benchmark runner; drives the dispatch pipeline in-process over synthetic batches and optionally probes a live deployment.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

func main() {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	bench := NewRunner(cfg)
	results := bench.RunAll(ctx)

	fmt.Println("\n== Summary ==")
	pass, fail, skipped := 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case statusPass:
			pass++
		case statusFail:
			fail++
		case statusSkip:
			skipped++
		}
	}
	fmt.Printf("PASS=%d FAIL=%d SKIP=%d\n", pass, fail, skipped)

	if fail > 0 || (cfg.Strict && skipped > 0) {
		os.Exit(1)
	}
}

type Config struct {
	BaseURL     string
	DSN         string
	RedisAddr   string
	Provider    string
	Strict      bool
	Timeout     time.Duration
	BatchSize   int
	Concurrency int
	Duration    time.Duration
	Seed        int64
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "base-url", os.Getenv("DATASTAR_BENCH_BASE_URL"), "API base URL; empty skips HTTP checks")
	flag.StringVar(&cfg.DSN, "dsn", os.Getenv("DATASTAR_DB_DSN"), "Postgres DSN; empty skips the DB check")
	flag.StringVar(&cfg.RedisAddr, "redis", os.Getenv("DATASTAR_REDIS_ADDR"), "Redis address; empty skips the Redis check")
	flag.StringVar(&cfg.Provider, "provider", envOrDefault("DATASTAR_BENCH_PROVIDER", "straight"), "Route provider for in-process runs")
	flag.BoolVar(&cfg.Strict, "strict", envOrDefaultBool("DATASTAR_BENCH_STRICT", false), "Fail on skipped checks")
	flag.DurationVar(&cfg.Timeout, "timeout", envOrDefaultDuration("DATASTAR_BENCH_TIMEOUT", 2*time.Minute), "Total timeout")
	flag.IntVar(&cfg.BatchSize, "batch", envOrDefaultInt("DATASTAR_BENCH_BATCH", 500), "Requests per synthetic batch")
	flag.IntVar(&cfg.Concurrency, "concurrency", envOrDefaultInt("DATASTAR_BENCH_CONCURRENCY", 4), "Concurrent batches for the throughput run")
	flag.DurationVar(&cfg.Duration, "duration", envOrDefaultDuration("DATASTAR_BENCH_DURATION", 10*time.Second), "Duration of the throughput run")
	flag.Int64Var(&cfg.Seed, "seed", 42, "Random seed for synthetic batches")
	flag.Parse()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "1" || v == "true" || v == "yes"
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		_, _ = fmt.Sscanf(v, "%d", &n)
		if n > 0 {
			return n
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
