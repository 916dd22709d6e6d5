package insurance

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/warp/motor-insurance/metrics"
)

// deps is shared by every engine service.
type deps struct {
	store     TxStore
	sequencer SequenceStore
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Metrics
	newID     func() string
}

type Option func(d *deps)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *deps) {
		d.logger = logger
	}
}

// WithMetrics sets the Prometheus metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *deps) {
		d.metrics = m
	}
}

// WithClock overrides the wall clock; used by tests and the premium calculator.
func WithClock(now func() time.Time) Option {
	return func(d *deps) {
		d.now = now
	}
}

// WithSequencer mints human codes from an external atomic counter instead
// of the store's counters table.
func WithSequencer(s SequenceStore) Option {
	return func(d *deps) {
		d.sequencer = s
	}
}

func newDeps(store TxStore, opts []Option) deps {
	d := deps{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func (d *deps) clock() time.Time {
	return d.now().UTC()
}

// notify records a notification in its own transaction. Delivery is
// fire-and-forget: failures are logged and counted, never returned.
func (d *deps) notify(ctx context.Context, n Notification) {
	err := d.store.WithTx(ctx, func(tx Store) error {
		code, err := d.mintCode(ctx, tx, CounterNotification, PrefixNotification)
		if err != nil {
			return err
		}
		n.ID = d.newID()
		n.Code = code
		n.SentAt = d.clock()
		n.DeliveryStatus = DeliverySent
		return tx.CreateNotification(ctx, n)
	})
	if err != nil {
		d.metrics.IncrementNotificationFailures()
		d.logger.WarnContext(ctx, "notification not recorded",
			"customer_id", n.CustomerID,
			"type", n.Type,
			"error", err)
	}
}
