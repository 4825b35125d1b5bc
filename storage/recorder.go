package storage

import (
	"context"

	"coinpulse/internal/event"
	"coinpulse/logger"
	"coinpulse/models"
)

// Recorder subscribes to the venue's tick and order streams and persists
// every published snapshot. Persistence failures are logged, never
// propagated back into the pipeline.
type Recorder struct {
	store *Postgres
	log   *logger.Log
}

func NewRecorder(store *Postgres) *Recorder {
	return &Recorder{store: store, log: logger.GetLogger()}
}

// Bind attaches the recorder to a venue's streams on the bus.
func (r *Recorder) Bind(bus *event.Bus, venue string) {
	bus.Ticks(venue).Subscribe(r.recordTicks)
	bus.Orders(venue).Subscribe(r.recordOrders)

	r.log.WithComponent("recorder").WithFields(logger.Fields{
		"venue": venue,
	}).Info("recorder subscribed")
}

func (r *Recorder) recordTicks(set models.TickerSet) {
	if len(set) == 0 {
		return
	}
	if err := r.store.InsertTicks(context.Background(), set); err != nil {
		r.log.WithComponent("recorder").WithError(err).Warn("failed to persist tick snapshot")
		return
	}
	r.log.WithComponent("recorder").WithFields(logger.Fields{
		"coins": len(set),
	}).Debug("tick snapshot persisted")
}

func (r *Recorder) recordOrders(set models.OrderSet) {
	var rows []models.OrderRow
	for _, coinRows := range set {
		rows = append(rows, coinRows...)
	}
	if len(rows) == 0 {
		return
	}
	if err := r.store.InsertOrders(context.Background(), rows); err != nil {
		r.log.WithComponent("recorder").WithError(err).Warn("failed to persist order rows")
		return
	}
	r.log.WithComponent("recorder").WithFields(logger.Fields{
		"rows": len(rows),
	}).Debug("order rows persisted")
}
