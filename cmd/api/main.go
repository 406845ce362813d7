package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ajoflow/coop-core/internal/audit"
	"github.com/ajoflow/coop-core/internal/config"
	"github.com/ajoflow/coop-core/internal/domain"
	"github.com/ajoflow/coop-core/internal/jobs"
	"github.com/ajoflow/coop-core/internal/ledger"
	"github.com/ajoflow/coop-core/internal/loan"
	"github.com/ajoflow/coop-core/internal/logging"
	"github.com/ajoflow/coop-core/internal/metrics"
	"github.com/ajoflow/coop-core/internal/notify"
	"github.com/ajoflow/coop-core/internal/payout"
	"github.com/ajoflow/coop-core/internal/posting"
	"github.com/ajoflow/coop-core/internal/repository"
	"github.com/ajoflow/coop-core/internal/savings"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("coop-core", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := connectDB(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	collector := metrics.NewCollector()

	// The broker is optional: without AMQP_URL, audit events and member
	// notifications go to the structured log instead.
	var (
		auditSink audit.Sink     = audit.NewLogSink(logger)
		notifier  notify.Notifier = notify.NewLogNotifier(logger)
	)
	if cfg.AMQPURL != "" {
		producer, err := notify.NewEventProducer(cfg.AMQPURL, cfg.EventExchange)
		if err != nil {
			slog.Error("failed to connect to broker", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		auditSink = audit.NewEventSink(producer, logger)
		notifier = notify.NewAMQPNotifier(producer, logger)
	}

	members := repository.NewMemberRepository(db)
	accounts := repository.NewAccountRepository(db)
	transactions := repository.NewTransactionRepository(db)
	loans := repository.NewLoanRepository(db)
	plans := repository.NewSavingsRepository(db)
	postings := repository.NewPostingRepository(db)
	outbox := repository.NewPayoutOutboxRepository(db)

	ledgerSvc := ledger.NewService(members, accounts, transactions, db, collector)
	loanSvc := loan.NewService(loans, accounts, ledgerSvc, outbox, auditSink, db)
	savingsSvc := savings.NewService(plans, accounts, ledgerSvc, outbox, auditSink, notifier, db)
	postingSvc := posting.NewService(postings, accounts, ledgerSvc, auditSink, collector, db)

	runner := jobs.NewRunner(loans, plans, loanSvc, savingsSvc, notifier, collector, cfg.JobWindowDays)
	scheduler := jobs.NewScheduler(runner, logger, cfg)
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	dispatcher := payout.NewDispatcher(
		outbox,
		payout.NewGatewayClient(cfg.PayoutGatewayURL),
		collector,
		logger,
		time.Duration(cfg.PayoutPollIntervalMS)*time.Millisecond,
		cfg.PayoutBatchSize,
	)
	go dispatcher.Start(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.Handle("GET /metrics", collector.Handler())
	mux.HandleFunc("POST /jobs/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		rctx := logging.WithLogger(r.Context(), logger)
		if err := runner.Run(rctx, name); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("POST /postings/run", handlePostingRun(logger, postingSvc))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		slog.Error("failed to write health response", "error", err)
	}
}

// handlePostingRun triggers a bulk interest or dividend distribution. With
// dry_run set, it previews the distribution without touching balances.
func handlePostingRun(logger *slog.Logger, svc *posting.Service) http.HandlerFunc {
	type request struct {
		Type         domain.PostingType `json:"type"`
		Period       string             `json:"period"`
		Rate         decimal.Decimal    `json:"rate"`
		Actor        string             `json:"actor"`
		AccountType  domain.AccountType `json:"account_type"`
		PreviewLimit int                `json:"preview_limit"`
		DryRun       bool               `json:"dry_run"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		rctx := logging.WithLogger(r.Context(), logger)
		runReq := posting.RunRequest{
			Type:         req.Type,
			Period:       req.Period,
			Rate:         req.Rate,
			Actor:        req.Actor,
			AccountType:  req.AccountType,
			PreviewLimit: req.PreviewLimit,
		}

		w.Header().Set("Content-Type", "application/json")
		if req.DryRun {
			preview, err := svc.DryRun(rctx, runReq)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(preview)
			return
		}
		log, err := svc.Run(rctx, runReq)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, domain.ErrDuplicatePosting) {
				status = http.StatusConflict
			}
			http.Error(w, err.Error(), status)
			return
		}
		json.NewEncoder(w).Encode(log)
	}
}

func connectDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	pool := repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}

	var (
		db  *sql.DB
		err error
	)
	for i := range 30 {
		db, err = repository.NewPostgresDB(ctx, cfg.DatabaseURL, pool)
		if err == nil {
			return db, nil
		}
		slog.Info("waiting for database", "attempt", i+1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", err)
}
