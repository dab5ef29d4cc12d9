// Command gtrends downloads interest-over-time tables from the Google Trends
// health API.
//
// Usage:
//
//	gtrends run -config job.yaml [-env-file .env] [-out dir] [-sqlite path] [-redis addr]
//	gtrends plan -config job.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tlcaputi/gtrends/internal/config"
	"github.com/tlcaputi/gtrends/pkg/collect"
	"github.com/tlcaputi/gtrends/pkg/logging"
	"github.com/tlcaputi/gtrends/pkg/metrics"
	"github.com/tlcaputi/gtrends/pkg/plan"
	"github.com/tlcaputi/gtrends/pkg/sink"
	"github.com/tlcaputi/gtrends/pkg/sink/redisstore"
	"github.com/tlcaputi/gtrends/pkg/sink/sqlite"
	"github.com/tlcaputi/gtrends/pkg/trends"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configPath  string
	envFile     string
	out         string
	sqlitePath  string
	redisAddr   string
	logLevel    string
	pretty      bool
	metricsAddr string
}

func parseFlags(name string, args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	fs.StringVar(&opts.configPath, "config", "gtrends.yaml", "job file")
	fs.StringVar(&opts.envFile, "env-file", "", "env file with GTRENDS_API_KEY (default .env when present)")
	fs.StringVar(&opts.out, "out", "", "output directory (overrides output.dir)")
	fs.StringVar(&opts.sqlitePath, "sqlite", "", "sqlite database (overrides output.sqlite)")
	fs.StringVar(&opts.redisAddr, "redis", "", "redis address (overrides output.redis_addr)")
	fs.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	fs.BoolVar(&opts.pretty, "pretty", false, "human-readable logs")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: gtrends <run|plan> [flags]")
	fmt.Fprintln(w, "  run   execute the job and write one table per term and granularity")
	fmt.Fprintln(w, "  plan  print the request matrix without calling the API")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	cmd := args[0]
	if cmd != "run" && cmd != "plan" {
		usage(stderr)
		return 2
	}

	opts, err := parseFlags(cmd, args[1:], stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}

	if _, err := logging.ParseLevel(opts.logLevel); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(opts.logLevel),
		Pretty: opts.pretty,
		Output: stderr,
	})
	logger := logging.NewLogger("cli")

	job, err := config.Load(opts.configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load job")
		return 1
	}
	applyOverrides(job, opts)

	planCfg, err := job.PlanConfig()
	if err != nil {
		logger.Error().Err(err).Msg("Invalid job")
		return 1
	}
	p, err := plan.New(planCfg)
	if err != nil {
		logger.Error().Err(err).Msg("Invalid job")
		return 1
	}

	if cmd == "plan" {
		printPlan(stdout, p)
		return 0
	}

	if err := execute(ctx, logger, job, opts, p); err != nil {
		logger.Error().Err(err).Msg("Run failed")
		return 1
	}
	return 0
}

func applyOverrides(job *config.Job, opts *options) {
	if opts.out != "" {
		job.Output.Dir = opts.out
	}
	if opts.sqlitePath != "" {
		job.Output.SQLite = opts.sqlitePath
	}
	if opts.redisAddr != "" {
		job.Output.RedisAddr = opts.redisAddr
	}
}

func execute(ctx context.Context, logger zerolog.Logger, job *config.Job, opts *options, p *plan.Plan) error {
	creds, err := config.LoadCredentials(opts.envFile)
	if err != nil {
		return err
	}
	client, err := trends.New(creds.TrendsConfig())
	if err != nil {
		return err
	}

	mergeOpts, err := job.MergeOptions()
	if err != nil {
		return err
	}

	out, closeOut, err := openSinks(ctx, logger, job.Output)
	if err != nil {
		return err
	}
	defer closeOut()

	if opts.metricsAddr != "" {
		srv := metrics.NewServer(opts.metricsAddr, logger)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	collector, err := collect.New(client, out, mergeOpts)
	if err != nil {
		return err
	}

	logger.Info().
		Str("endpoint", client.Endpoint()).
		Str("out", job.Output.Dir).
		Msg("Starting collection")

	sum, err := collector.Run(ctx, p)
	if err != nil {
		return err
	}
	logger.Info().
		Str("run_id", sum.RunID).
		Int("calls", sum.Calls).
		Int("tables", len(sum.Tables)).
		Dur("duration", sum.Duration).
		Msg("Done")
	return nil
}

// openSinks builds any configured stores followed by the CSV directory sink.
// The directory comes last so a table's file only appears once every store
// accepted it. The returned func closes every sink and connection.
func openSinks(ctx context.Context, logger zerolog.Logger, out config.Output) (sink.Multi, func(), error) {
	dir, err := sink.NewDir(out.Dir)
	if err != nil {
		return nil, nil, err
	}
	var sinks sink.Multi
	var rdb *redis.Client

	closeAll := func() {
		if err := sinks.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close outputs")
		}
		if rdb != nil {
			rdb.Close()
		}
	}

	if out.SQLite != "" {
		if err := os.MkdirAll(filepath.Dir(out.SQLite), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		store, err := sqlite.New(out.SQLite)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, store)
		logger.Info().Str("path", out.SQLite).Msg("Writing tables to sqlite")
	}

	if out.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: out.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", out.RedisAddr, err)
		}
		store, err := redisstore.New(rdb, out.RedisPrefix)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, store)
		logger.Info().Str("addr", out.RedisAddr).Msg("Writing tables to redis")
	}

	sinks = append(sinks, dir)
	return sinks, closeAll, nil
}

func printPlan(w io.Writer, p *plan.Plan) {
	fmt.Fprintf(w, "calls: %d\n", p.CallCount())
	fmt.Fprintf(w, "granularities: %v\n", p.Granularities())
	for _, b := range p.Batches() {
		fmt.Fprintf(w, "batch %d: %v\n", b.Index, b.Queries())
	}
	for _, win := range p.Windows() {
		fmt.Fprintf(w, "window %d: %s to %s\n", win.Index,
			win.Start.Format(plan.DateLayout), win.End.Format(plan.DateLayout))
	}
	for _, g := range p.Geographies() {
		fmt.Fprintf(w, "geo: %s (%s)\n", g, g.Kind)
	}
}
