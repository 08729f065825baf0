package service

import (
	"context"
	"time"

	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"go.uber.org/zap"
)

// Reaper periodically releases holds that were never paid.
type Reaper struct {
	svc      InventoryService
	interval time.Duration
	batch    int
	logger   *zap.Logger
}

func NewReaper(svc InventoryService, interval time.Duration, batch int, logger *zap.Logger) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}

	return &Reaper{svc: svc, interval: interval, batch: batch, logger: logger}
}

func (r *Reaper) Start(ctx context.Context) {
	mylogger.Info(ctx, r.logger, "Starting reservation reaper", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(ctx, r.logger, "Reservation reaper stopping")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep keeps draining while full batches come back.
func (r *Reaper) sweep(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := r.svc.ReleaseExpired(ctx, time.Now().UTC(), r.batch)
		if err != nil {
			mylogger.Error(ctx, r.logger, "Error releasing expired reservations", zap.Error(err))
			return
		}
		if n > 0 {
			mylogger.Info(ctx, r.logger, "Released expired reservations", zap.Int("orders", n))
		}
		if r.batch <= 0 || n < r.batch {
			return
		}
	}
}
