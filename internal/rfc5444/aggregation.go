package rfc5444

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AggregationTimer batches the messages a Writer has queued for one
// Target and flushes them together once per protocol.AggregationInterval
// instead of sending each message as its own packet. Grounded on
// olsr_rfc5444.c: CreateMessage/ForwardMessage "start the aggregation
// timer if not running" and the timer's fire callback calls
// rfc5444_writer_flush.
type AggregationTimer struct {
	mu       sync.Mutex
	writer   *Writer
	target   *Target
	interval time.Duration
	timer    *time.Timer
	logger   *slog.Logger
}

// NewAggregationTimer creates a timer for target, flushing writer's
// queue for it every interval while armed.
func NewAggregationTimer(writer *Writer, target *Target, interval time.Duration, logger *slog.Logger) *AggregationTimer {
	if logger == nil {
		logger = slog.Default()
	}
	return &AggregationTimer{
		writer:   writer,
		target:   target,
		interval: interval,
		logger:   logger.With(slog.String("component", "rfc5444.aggregation")),
	}
}

// Arm starts the timer if it is not already running. Calling Arm
// repeatedly while armed is a no-op, so every CreateMessage/
// ForwardMessage call for this target can unconditionally call Arm.
func (a *AggregationTimer) Arm(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		return
	}
	a.timer = time.AfterFunc(a.interval, func() { a.fire(ctx) })
}

// Stop cancels a pending, not-yet-fired timer. It does not flush.
func (a *AggregationTimer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// fire flushes the target's pending messages into packets and sends
// each one. A send failure is logged and does not stop the remaining
// packets from being attempted (spec §7: no error here is fatal).
func (a *AggregationTimer) fire(ctx context.Context) {
	a.mu.Lock()
	a.timer = nil
	a.mu.Unlock()

	packets, err := a.writer.Flush(a.target)
	if err != nil {
		a.logger.Warn("aggregation flush failed", slog.String("error", err.Error()))
		return
	}
	for _, pkt := range packets {
		if err := a.target.Send(ctx, pkt); err != nil {
			a.logger.Warn("aggregation send failed", slog.String("error", err.Error()))
		}
	}
}

// FlushNow cancels the pending timer (if any) and flushes immediately,
// for the admin surface's forced-flush operation (internal/server).
func (a *AggregationTimer) FlushNow(ctx context.Context) error {
	a.Stop()
	a.fire(ctx)
	return nil
}
