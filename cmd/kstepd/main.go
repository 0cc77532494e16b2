// Command kstepd serves stepwise k-means clustering over HTTP.
//
// Every flag can also be set through an environment variable named after it,
// e.g. -max-iterations via KSTEP_MAX_ITERATIONS. Flags win over the environment.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hupe1980/kstep"
	"github.com/hupe1980/kstep/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := run(os.Args[1:], os.Getenv); err != nil {
		fmt.Fprintln(os.Stderr, "kstepd:", err)
		os.Exit(1)
	}
}

type settings struct {
	server    server.Config
	logFormat string
	logLevel  slog.Level
}

func parseFlags(args []string, getenv func(string) string) (settings, error) {
	d := server.DefaultConfig()
	var s settings

	fs := flag.NewFlagSet("kstepd", flag.ContinueOnError)
	fs.StringVar(&s.server.Addr, "addr", d.Addr, "listen address")
	fs.StringVar(&s.server.Codec, "codec", d.Codec, "wire codec (json, go-json)")
	fs.DurationVar(&s.server.RequestTimeout, "request-timeout", d.RequestTimeout, "per-request clustering timeout")
	fs.DurationVar(&s.server.ShutdownTimeout, "shutdown-timeout", d.ShutdownTimeout, "graceful shutdown timeout")
	fs.Int64Var(&s.server.MaxBodyBytes, "max-body-bytes", d.MaxBodyBytes, "maximum request body size")
	fs.Int64Var(&s.server.MaxConcurrentRuns, "max-concurrent-runs", d.MaxConcurrentRuns, "maximum clustering runs executing at once")
	fs.Int64Var(&s.server.MemoryLimitBytes, "memory-limit-bytes", d.MemoryLimitBytes, "trace memory budget shared by in-flight runs")
	fs.Float64Var(&s.server.RequestsPerSecond, "rps", 0, "sustained request rate (0 = unlimited)")
	fs.IntVar(&s.server.Burst, "burst", 0, "request burst above the sustained rate")
	fs.IntVar(&s.server.MaxIterations, "max-iterations", d.MaxIterations, "iteration cap per run")
	fs.Float64Var(&s.server.Tolerance, "tolerance", 0, "centroid shift treated as converged (0 = exact)")
	fs.StringVar(&s.server.EmptyClusterPolicy, "empty-cluster-policy", d.EmptyClusterPolicy, "empty cluster handling (keep, farthest)")
	fs.StringVar(&s.logFormat, "log-format", "json", "log format (json, text)")
	logLevel := fs.String("log-level", "info", "log level (debug, info, warn, error)")

	// Environment first so explicit flags override it.
	var envErr error
	fs.VisitAll(func(f *flag.Flag) {
		key := "KSTEP_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if v := getenv(key); v != "" && envErr == nil {
			if err := f.Value.Set(v); err != nil {
				envErr = fmt.Errorf("%s: %w", key, err)
			}
		}
	})
	if envErr != nil {
		return s, envErr
	}
	if err := fs.Parse(args); err != nil {
		return s, err
	}

	if err := s.logLevel.UnmarshalText([]byte(*logLevel)); err != nil {
		return s, fmt.Errorf("log-level: %w", err)
	}
	return s, nil
}

func run(args []string, getenv func(string) string) error {
	s, err := parseFlags(args, getenv)
	if err != nil {
		return err
	}
	logger, err := kstep.NewFormatLogger(s.logFormat, os.Stderr, s.logLevel)
	if err != nil {
		return fmt.Errorf("log-format: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := server.New(s.server,
		server.WithLogger(logger),
		server.WithMetrics(server.NewMetrics(reg)),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	logger.Info("kstepd starting",
		"addr", s.server.Addr,
		"max_iterations", s.server.MaxIterations,
		"max_concurrent_runs", s.server.MaxConcurrentRuns,
	)
	err = srv.Run(ctx)
	logger.Info("kstepd stopped", "uptime", time.Since(start).Round(time.Second))
	return err
}
