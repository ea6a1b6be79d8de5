package app

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"paperbill/go_backend/internal/app/config"
	apphttp "paperbill/go_backend/internal/app/http"
	"paperbill/go_backend/internal/app/http/handlers"
	"paperbill/go_backend/internal/convert"
	"paperbill/go_backend/internal/gateway"
	"paperbill/go_backend/internal/infra/db/postgres"
	"paperbill/go_backend/internal/ledger"
	"paperbill/go_backend/internal/ledger/memory"
	"paperbill/go_backend/internal/notify"
	"paperbill/go_backend/internal/reconcile"
	"paperbill/go_backend/internal/reminder"
)

func Run() {
	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, cleanup := newStore(ctx, cfg)
	defer cleanup()

	httpClient := &http.Client{Timeout: 15 * time.Second}

	var dispatcher notify.Dispatcher = notify.LogDispatcher{}
	if cfg.NotifierBackend == "telegram" {
		dispatcher = notify.NewTelegramDispatcher(cfg.TelegramBaseURL, cfg.TelegramBotToken, httpClient)
	}

	var gw *gateway.Client
	if cfg.GatewayBaseURL != "" {
		gw = gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey, httpClient)
	}

	converter := convert.New(store, convert.Config{DueOffset: cfg.DueOffset()})
	engine := reconcile.New(store, reconcile.Config{ManualDedupeWindow: cfg.ManualDedupeWindow})
	scheduler := reminder.New(store, dispatcher, reminder.Config{NearDueWindow: cfg.NearDueWindow()})

	go scheduler.Run(ctx, cfg.ReminderSweepInterval)
	go scheduler.RunAging(ctx, cfg.AgingSweepInterval)

	h := handlers.New(store, cfg, converter, engine, scheduler, gw)
	router := apphttp.NewRouter(cfg, h)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("app: shutdown: %v", err)
		}
	}()

	log.Printf("listening on %s", cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("app: serve: %v", err)
	}
}

func newStore(ctx context.Context, cfg config.Config) (ledger.Store, func()) {
	if cfg.LedgerBackend == "memory" {
		log.Printf("app: using in-memory ledger")
		return memory.New(), func() {}
	}

	db, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatalf("db: schema: %v", err)
	}
	return postgres.NewStore(db), db.Close
}
