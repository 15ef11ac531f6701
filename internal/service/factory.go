package service

import (
	"log/slog"

	"github.com/leecorbin/support-alert-system/core/config"
	"github.com/leecorbin/support-alert-system/core/db"
	"github.com/leecorbin/support-alert-system/internal/helpdesk"
	"github.com/leecorbin/support-alert-system/internal/queue"
	"github.com/leecorbin/support-alert-system/internal/store"
)

// Services wires the service layer once per process. TicketPoller is nil when
// no helpdesk API key is configured.
type Services struct {
	Stores       *store.Stores
	Ingest       EventIngest
	Detector     EscalationDetector
	Dispatcher   AlertDispatcher
	Reconciler   Reconciler
	TicketPoller TicketPoller
	Admin        Admin
}

func NewServices(cfg config.Config, database *db.DB, producer queue.Producer, log *slog.Logger) *Services {
	if log == nil {
		log = slog.Default()
	}

	stores := store.NewStores(database.Pool())
	txRunner := NewTxRunner(database)

	dispatcher := NewAlertDispatcher(stores.Alerts(), log)
	detector := NewEscalationDetector(stores, txRunner, dispatcher, cfg.Detection, log)

	services := &Services{
		Stores:     stores,
		Ingest:     NewEventIngest(txRunner, producer, log),
		Detector:   detector,
		Dispatcher: dispatcher,
		Reconciler: NewReconciler(stores, cfg.Reconciler.Interval, log),
		Admin:      NewAdmin(stores, txRunner, detector, log),
	}

	if cfg.Helpdesk.Enabled() {
		client := helpdesk.NewClient(cfg.Helpdesk.BaseURL, cfg.Helpdesk.APIKey)
		services.TicketPoller = NewTicketPoller(client, stores.Metrics(), cfg.Helpdesk.PollInterval, log)
	}

	return services
}
