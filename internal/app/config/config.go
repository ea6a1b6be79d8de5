package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr        string `env:"HTTP_ADDR" envDefault:":8080"`
	CORSAllowOrigin string `env:"CORS_ALLOW_ORIGIN" envDefault:"*"`
	InternalToken   string `env:"INTERNAL_TOKEN"`

	// LedgerBackend selects postgres (production) or memory (local runs).
	LedgerBackend string `env:"LEDGER_BACKEND" envDefault:"postgres"`
	DatabaseURL   string `env:"DATABASE_URL"`

	GatewayBaseURL       string `env:"GATEWAY_BASE_URL"`
	GatewayAPIKey        string `env:"GATEWAY_API_KEY"`
	GatewayWebhookSecret string `env:"GATEWAY_WEBHOOK_SECRET"`

	InvoiceDueOffsetDays int           `env:"INVOICE_DUE_OFFSET_DAYS" envDefault:"30"`
	NearDueWindowDays    int           `env:"NEAR_DUE_WINDOW_DAYS" envDefault:"7"`
	ManualDedupeWindow   time.Duration `env:"MANUAL_PAYMENT_DEDUPE_WINDOW" envDefault:"30s"`

	ReminderSweepInterval time.Duration `env:"REMINDER_SWEEP_INTERVAL" envDefault:"1h"`
	AgingSweepInterval    time.Duration `env:"AGING_SWEEP_INTERVAL" envDefault:"6h"`

	// NotifierBackend selects log or telegram.
	NotifierBackend  string `env:"NOTIFIER_BACKEND" envDefault:"log"`
	TelegramBaseURL  string `env:"TELEGRAM_BASE_URL" envDefault:"https://api.telegram.org"`
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
}

func MustLoad() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.InternalToken == "" {
		log.Fatalf("config: missing env INTERNAL_TOKEN")
	}
	if cfg.LedgerBackend == "postgres" && cfg.DatabaseURL == "" {
		log.Fatalf("config: missing env DATABASE_URL")
	}
	if cfg.GatewayWebhookSecret == "" {
		log.Fatalf("config: missing env GATEWAY_WEBHOOK_SECRET")
	}
	if cfg.NotifierBackend == "telegram" && cfg.TelegramBotToken == "" {
		log.Fatalf("config: missing env TELEGRAM_BOT_TOKEN")
	}
	return cfg
}

func (c Config) DueOffset() time.Duration {
	return time.Duration(c.InvoiceDueOffsetDays) * 24 * time.Hour
}

func (c Config) NearDueWindow() time.Duration {
	return time.Duration(c.NearDueWindowDays) * 24 * time.Hour
}
