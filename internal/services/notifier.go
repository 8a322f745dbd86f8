package services

import (
	"context"
	"log/slog"

	"khata/internal/events"
	"khata/internal/log"
	"khata/internal/metrics"
)

// notifier publishes ledger events after commit. Publishing is best effort:
// the ledger rows are already durable, so failures are logged only.
type notifier struct {
	publisher events.Publisher
	metrics   *metrics.Metrics
}

func newNotifier(publisher events.Publisher, m *metrics.Metrics) notifier {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return notifier{publisher: publisher, metrics: m}
}

func (n notifier) publish(ctx context.Context, evs ...events.LedgerEvent) {
	for _, e := range evs {
		if err := n.publisher.Publish(ctx, e); err != nil {
			slog.ErrorContext(ctx, "Failed to publish ledger event",
				log.FieldComponent, log.ComponentEvents,
				log.FieldOperation, log.OpPublish,
				"event_id", e.EventID,
				"type", e.Type,
				"buyer_id", e.BuyerID,
				log.FieldError, err.Error())
		}
	}
}

func (n notifier) entry(entryType string) {
	n.metrics.LedgerEntry(entryType)
}
