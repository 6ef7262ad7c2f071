package relayer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/bitgreen/bridge-relayers/pkg/metrics"
	"github.com/bitgreen/bridge-relayers/pkg/source"
	"github.com/bitgreen/bridge-relayers/pkg/types"
)

// Subscriber blocks and feeds events to callback until ctx is done or the subscription fails
type Subscriber func(ctx context.Context, callback source.Callback) error

// Handler processes one event. Errors wrapping ErrConsistency or ErrLockdown stop the loop.
type Handler func(ctx context.Context, event types.BridgeEvent) error

type CheckpointStore interface {
	UpdateCheckpoint(ctx context.Context, process string, chain types.ChainID, position types.ChainPosition, kind string) error
}

// Runner is a long running part of a service
type Runner interface {
	Name() string
	Run(ctx context.Context) error
}

// RelayLoop hands the events of one source over to a single sequential consumer
type RelayLoop struct {
	name        string
	process     string
	chain       types.ChainID
	subscribe   Subscriber
	handler     Handler
	checkpoints CheckpointStore
	metrics     *metrics.Metrics
}

func NewRelayLoop(name string, process string, chain types.ChainID, subscribe Subscriber, handler Handler) *RelayLoop {
	return &RelayLoop{
		name:      name,
		process:   process,
		chain:     chain,
		subscribe: subscribe,
		handler:   handler,
	}
}

func (l *RelayLoop) WithCheckpoints(store CheckpointStore) *RelayLoop {
	l.checkpoints = store
	return l
}

func (l *RelayLoop) WithMetrics(m *metrics.Metrics) *RelayLoop {
	l.metrics = m
	return l
}

func (l *RelayLoop) Name() string {
	return l.name
}

// Run returns when ctx is done, the subscription ends or the handler fails fatally
func (l *RelayLoop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan types.BridgeEvent, 1)
	subErr := make(chan error, 1)
	go func() {
		subErr <- l.subscribe(ctx, func(event types.BridgeEvent) {
			select {
			case queue <- event:
			case <-ctx.Done():
			}
		})
	}()

	log.Info().Str("loop", l.name).Msg("[RelayLoop] [Run] started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-subErr:
			if drainErr := l.drain(ctx, queue); drainErr != nil {
				return drainErr
			}
			if err == nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			return fmt.Errorf("%s subscription ended: %w", l.name, err)
		case event := <-queue:
			if err := l.handle(ctx, event); err != nil {
				return err
			}
		}
	}
}

// drain handles the event left in the queue by a finished subscription
func (l *RelayLoop) drain(ctx context.Context, queue <-chan types.BridgeEvent) error {
	for {
		select {
		case event := <-queue:
			if err := l.handle(ctx, event); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (l *RelayLoop) handle(ctx context.Context, event types.BridgeEvent) error {
	meta := event.Meta()
	err := l.handler(ctx, event)
	if err != nil {
		if types.IsFatal(err) {
			log.Error().Err(err).Str("loop", l.name).Str("event", event.Kind().String()).
				Msg("[RelayLoop] [handle] fatal error, stopping")
			return err
		}
		log.Warn().Err(err).Str("loop", l.name).Str("event", event.Kind().String()).
			Str("position", meta.Position.String()).Msg("[RelayLoop] [handle] event dropped")
	}
	l.metrics.LastBlock(string(meta.Chain), meta.Position.BlockNumber)
	if l.checkpoints != nil {
		chain := meta.Chain
		if chain == "" {
			chain = l.chain
		}
		if err := l.checkpoints.UpdateCheckpoint(ctx, l.process, chain, meta.Position, event.Kind().String()); err != nil {
			log.Warn().Err(err).Str("loop", l.name).Msg("[RelayLoop] [handle] failed to update checkpoint")
		}
	}
	return nil
}
