package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/nurpe/freight/internal/metrics"
	"github.com/nurpe/freight/internal/model"
)

const sendTimeout = 10 * time.Second

// Sink delivers contract events to one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, event model.ContractEvent) error
}

// Dispatcher decouples event producers from delivery. Publish never blocks;
// delivery failures are logged and counted only.
type Dispatcher struct {
	queue   chan model.ContractEvent
	sinks   []Sink
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewDispatcher(size int, m *metrics.Metrics, log zerolog.Logger, sinks ...Sink) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	return &Dispatcher{
		queue:   make(chan model.ContractEvent, size),
		sinks:   sinks,
		metrics: m,
		log:     log.With().Str("component", "notify").Logger(),
	}
}

func (d *Dispatcher) Publish(event model.ContractEvent) {
	select {
	case d.queue <- event:
	default:
		d.metrics.NotificationDropped()
		d.log.Warn().
			Int64("contract_id", event.ContractID).
			Str("kind", string(event.Kind)).
			Msg("notification queue full, event dropped")
	}
}

// Run delivers queued events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.queue:
			d.deliver(ctx, event)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event model.ContractEvent) {
	for _, sink := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := sink.Send(sctx, event)
		cancel()

		d.metrics.NotificationSent(sink.Name(), err)
		if err != nil {
			d.log.Error().
				Err(err).
				Str("sink", sink.Name()).
				Int64("contract_id", event.ContractID).
				Str("kind", string(event.Kind)).
				Msg("notification delivery failed")
		}
	}
}
