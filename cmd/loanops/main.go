// Command loanops processes approved loans through the post-approval
// operations pipeline. By default it runs every loan file in the loans
// directory and writes updated records plus markdown reports; -serve exposes
// the same pipeline as an HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"loanops/internal/audit"
	"loanops/internal/auth"
	"loanops/internal/batch"
	"loanops/internal/catalog"
	"loanops/internal/loan/loanfile"
	"loanops/internal/loan/store"
	"loanops/internal/loan/store/memory"
	"loanops/internal/loan/store/postgres"
	"loanops/internal/ops/comms/throttle"
	"loanops/internal/ops/pipeline"
	"loanops/internal/platform/config"
	"loanops/internal/platform/httpserver"
	"loanops/internal/platform/logger"
	"loanops/internal/platform/metrics"
	platformredis "loanops/internal/platform/redis"
	"loanops/internal/report"
	httptransport "loanops/internal/transport/http"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	var (
		loanID = flag.String("loan", "", "process a single loan by id")
		list   = flag.Bool("list", false, "list loans in the loans directory and exit")
		serve  = flag.Bool("serve", false, "run the HTTP API instead of a batch")
		quiet  = flag.Bool("quiet", false, "suppress report output")
	)
	flag.Parse()

	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, *loanID, *list, *serve, *quiet); err != nil {
		log.Error("loanops failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, loanID string, list, serve, quiet bool) error {
	log := logger.New()

	cat := catalog.Default()
	if cfg.CatalogFile != "" {
		var err error
		cat, err = catalog.Load(cfg.CatalogFile)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
	}

	if list {
		paths, err := loanfile.List(cfg.LoansDir)
		if err != nil {
			return err
		}
		for _, path := range paths {
			record, err := loanfile.Read(path)
			if err != nil {
				return err
			}
			fmt.Printf("%-16s %-12s %-22s %s\n",
				record.LoanID, record.LoanType, record.FundingStatus, record.BorrowerName)
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	m := metrics.New()

	sink, closeSink, err := buildAuditPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	commThrottle, closeThrottle, err := buildThrottle(cfg)
	if err != nil {
		return err
	}
	defer closeThrottle()

	p, err := pipeline.New(cat,
		pipeline.WithLogger(log),
		pipeline.WithMetrics(m),
		pipeline.WithAuditPublisher(sink),
		pipeline.WithThrottle(commThrottle),
		pipeline.WithVerifierID(cfg.VerifierID),
	)
	if err != nil {
		return err
	}

	loanStore, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if serve {
		return serveHTTP(ctx, cfg, log, p, loanStore)
	}

	if err := seedFromFiles(ctx, cfg.LoansDir, loanStore, loanID); err != nil {
		return err
	}

	var ids []string
	if loanID != "" {
		ids = []string{loanID}
	}
	runner := batch.New(p, loanStore, batch.WithLogger(log))
	summary, err := runner.Run(ctx, ids)
	if err != nil {
		return err
	}

	for _, item := range summary.Items {
		if item.Err != nil {
			continue
		}
		record, err := loanStore.Get(ctx, item.LoanID)
		if err != nil {
			return err
		}
		if _, err := loanfile.Write(cfg.OutputDir, record); err != nil {
			return err
		}
		if !quiet {
			path := filepath.Join(cfg.OutputDir, record.LoanID+"_report.md")
			if err := os.WriteFile(path, []byte(report.Render(record, item.Result)), 0o644); err != nil {
				return err
			}
			fmt.Printf("%s: %s -> %s\n", item.LoanID, item.Result.PreviousStatus, item.Result.FinalStatus)
		}
	}
	fmt.Printf("processed %d loans: %d succeeded, %d failed\n",
		summary.Total, summary.Succeeded, summary.Failed)
	if summary.Failed > 0 {
		return fmt.Errorf("%d loans failed", summary.Failed)
	}
	return nil
}

// seedFromFiles loads loan files into the store. With a durable store this
// only inserts loans the store has not seen yet.
func seedFromFiles(ctx context.Context, dir string, loanStore store.LoanStore, onlyID string) error {
	paths, err := loanfile.List(dir)
	if err != nil {
		return err
	}
	for _, path := range paths {
		record, err := loanfile.Read(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if onlyID != "" && record.LoanID != onlyID {
			continue
		}
		if _, err := loanStore.Get(ctx, record.LoanID); err == nil {
			continue
		}
		if err := loanStore.Put(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

func buildStore(ctx context.Context, cfg config.Config) (store.LoanStore, func(), error) {
	if cfg.PostgresURL == "" {
		return memory.New(), func() {}, nil
	}
	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	pg := postgres.New(pool)
	if err := pg.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return pg, pool.Close, nil
}

func buildThrottle(cfg config.Config) (throttle.Throttle, func(), error) {
	if cfg.RedisURL == "" {
		return throttle.NewMemory(cfg.CommsCooldown), func() {}, nil
	}
	client, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return throttle.NewRedis(client.Client, cfg.CommsCooldown), func() { _ = client.Close() }, nil
}

func buildAuditPublisher(ctx context.Context, cfg config.Config) (audit.Publisher, func(), error) {
	if len(cfg.KafkaBrokers) == 0 {
		sink := audit.NewMemorySink()
		return sink, func() {}, nil
	}
	kafka, err := audit.NewKafkaPublisher(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return nil, nil, fmt.Errorf("connect kafka: %w", err)
	}
	async := audit.NewAsyncPublisher(kafka, 256, logger.New())
	go func() { _ = async.Run(ctx) }()
	return async, func() { _ = async.Close() }, nil
}

func serveHTTP(ctx context.Context, cfg config.Config, log *slog.Logger, p *pipeline.Pipeline, loanStore store.LoanStore) error {
	secretHash := cfg.OperatorSecretHash
	if secretHash == "" {
		// Development fallback: accept the signing key as the operator
		// secret so local setups need only one variable.
		var err error
		secretHash, err = auth.HashSecret(cfg.JWTSigningKey)
		if err != nil {
			return err
		}
	}

	tokens := auth.NewTokenService(cfg.JWTSigningKey, "loanops", "loanops-api", time.Hour)
	runner := batch.New(p, loanStore, batch.WithLogger(log))
	handler := httptransport.NewHandler(p, loanStore, runner, tokens, secretHash, log)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler))

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting loanops api", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
