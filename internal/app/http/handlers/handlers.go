package handlers

import (
	"time"

	"github.com/google/uuid"

	"paperbill/go_backend/internal/app/config"
	"paperbill/go_backend/internal/convert"
	"paperbill/go_backend/internal/gateway"
	"paperbill/go_backend/internal/ledger"
	"paperbill/go_backend/internal/reconcile"
	"paperbill/go_backend/internal/reminder"
)

type Handlers struct {
	Store     ledger.Store
	Cfg       config.Config
	Converter *convert.Service
	Engine    *reconcile.Engine
	Scheduler *reminder.Scheduler
	Gateway   *gateway.Client

	clock func() time.Time
	newID func() string
}

func New(store ledger.Store, cfg config.Config, conv *convert.Service, eng *reconcile.Engine, sched *reminder.Scheduler, gw *gateway.Client) *Handlers {
	return &Handlers{
		Store:     store,
		Cfg:       cfg,
		Converter: conv,
		Engine:    eng,
		Scheduler: sched,
		Gateway:   gw,
		clock:     time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}
