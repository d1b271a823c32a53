package workers

import (
	"chat-relay/contract"
	"chat-relay/observability"
	"context"
	"log/slog"
	"time"
)

var _ contract.Worker = (*ChannelCapacityWorker)(nil)

// QueueGauge is one sampled queue.
type QueueGauge struct {
	Name     string
	Length   int
	Capacity int
}

// ChannelCapacityWorker periodically reports how full the topic queues are.
// Reading len and cap of a channel is non-blocking, so sampling never slows the
// topics down. A queue at or above lowCapacity of its size is logged.
type ChannelCapacityWorker struct {
	log         *slog.Logger
	sample      func() []QueueGauge
	interval    time.Duration
	lowCapacity float64
}

func NewChannelCapacityWorker(log *slog.Logger, sample func() []QueueGauge,
	interval time.Duration, lowCapacity float64) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:         log,
		sample:      sample,
		interval:    interval,
		lowCapacity: lowCapacity,
	}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping capacity sampling")
			return nil
		case <-ticker.C:
			w.Report()
		}
	}
}

// Report samples every queue once and updates the queue gauges.
func (w *ChannelCapacityWorker) Report() {
	queued, fullest := 0, 0.0
	for _, q := range w.sample() {
		queued += q.Length
		if q.Capacity == 0 {
			continue
		}
		ratio := float64(q.Length) / float64(q.Capacity)
		if ratio > fullest {
			fullest = ratio
		}
		if w.lowCapacity > 0 && ratio >= w.lowCapacity {
			w.log.Warn("Topic queue nearly full", "queue", q.Name, "length", q.Length, "capacity", q.Capacity)
		}
	}
	observability.QueuedMessages.Set(float64(queued))
	observability.FullestQueueRatio.Set(fullest)
}
