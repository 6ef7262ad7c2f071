package relayer_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitgreen/bridge-relayers/internal/relayer"
	"github.com/bitgreen/bridge-relayers/pkg/metrics"
	"github.com/bitgreen/bridge-relayers/pkg/source"
	"github.com/bitgreen/bridge-relayers/pkg/types"
)

func event(block uint64, index uint16) types.BridgeEvent {
	return &types.MintedEvent{EventMeta: types.EventMeta{
		Chain:    types.ChainPallet,
		Position: types.ChainPosition{BlockNumber: block, Index: index},
		Success:  true,
	}}
}

// emit pushes events then waits for ctx, like a live subscription
func emit(events ...types.BridgeEvent) relayer.Subscriber {
	return func(ctx context.Context, callback source.Callback) error {
		for _, e := range events {
			callback(e)
		}
		<-ctx.Done()
		return ctx.Err()
	}
}

type checkpointRecorder struct {
	mu        sync.Mutex
	positions []types.ChainPosition
}

func (r *checkpointRecorder) UpdateCheckpoint(ctx context.Context, process string, chain types.ChainID, position types.ChainPosition, kind string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = append(r.positions, position)
	return nil
}

func TestRelayLoopHandlesEventsInOrder(t *testing.T) {
	var (
		mu      sync.Mutex
		handled []types.ChainPosition
		active  int
		overlap bool
	)
	done := make(chan struct{})
	handler := func(ctx context.Context, e types.BridgeEvent) error {
		mu.Lock()
		active++
		overlap = overlap || active > 1
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		active--
		handled = append(handled, e.Meta().Position)
		if len(handled) == 4 {
			close(done)
		}
		mu.Unlock()
		if e.Meta().Position.Index == 1 {
			return errors.New("dispatch failed")
		}
		return nil
	}
	checkpoints := &checkpointRecorder{}
	loop := relayer.NewRelayLoop("test", "keeper", types.ChainPallet,
		emit(event(1, 0), event(1, 1), event(2, 0), event(3, 5)), handler).
		WithCheckpoints(checkpoints).WithMetrics(metrics.New("keeper"))

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- loop.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("events not handled")
	}
	cancel()
	require.ErrorIs(t, <-result, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, overlap)
	assert.Equal(t, []types.ChainPosition{{BlockNumber: 1, Index: 0}, {BlockNumber: 1, Index: 1}, {BlockNumber: 2, Index: 0}, {BlockNumber: 3, Index: 5}}, handled)
	assert.Len(t, checkpoints.positions, 4)
}

func TestRelayLoopStopsOnFatalError(t *testing.T) {
	var handled []types.ChainPosition
	handler := func(ctx context.Context, e types.BridgeEvent) error {
		handled = append(handled, e.Meta().Position)
		if e.Meta().Position.BlockNumber == 2 {
			return fmt.Errorf("minted 70 for 68: %w", types.ErrConsistency)
		}
		return nil
	}
	loop := relayer.NewRelayLoop("test", "watchdog", types.ChainPallet, emit(event(1, 0), event(2, 0), event(3, 0)), handler)

	err := loop.Run(context.Background())
	require.ErrorIs(t, err, types.ErrConsistency)
	assert.Equal(t, []types.ChainPosition{{BlockNumber: 1, Index: 0}, {BlockNumber: 2, Index: 0}}, handled)
}

func TestRelayLoopReportsSubscriptionFailure(t *testing.T) {
	var handled int
	subscribe := func(ctx context.Context, callback source.Callback) error {
		callback(event(7, 0))
		return errors.New("connection reset")
	}
	loop := relayer.NewRelayLoop("test", "keeper", types.ChainEvm, subscribe, func(ctx context.Context, e types.BridgeEvent) error {
		handled++
		return nil
	})

	err := loop.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 1, handled)
}

type runnerFunc struct {
	name string
	run  func(ctx context.Context) error
}

func (r runnerFunc) Name() string                  { return r.name }
func (r runnerFunc) Run(ctx context.Context) error { return r.run(ctx) }

func TestServiceReportsFirstFailureAndStopsOthers(t *testing.T) {
	stopped := make(chan struct{})
	waiting := runnerFunc{name: "waiting", run: func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return ctx.Err()
	}}
	failing := runnerFunc{name: "failing", run: func(ctx context.Context) error {
		return fmt.Errorf("mismatch: %w", types.ErrConsistency)
	}}
	service := relayer.NewServiceWithRunners(relayer.ModeWatchdog, waiting, failing)
	require.NoError(t, service.Start(context.Background()))

	select {
	case err := <-service.Err():
		require.ErrorIs(t, err, types.ErrConsistency)
		assert.Contains(t, err.Error(), "failing")
	case <-time.After(5 * time.Second):
		t.Fatal("no failure reported")
	}
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("other runner not stopped")
	}
	service.Stop()
}

func TestServiceWithoutRunners(t *testing.T) {
	service := relayer.NewServiceWithRunners(relayer.ModeKeeper)
	require.Error(t, service.Start(context.Background()))
}

func TestTickerRunnerRunsImmediately(t *testing.T) {
	calls := make(chan struct{}, 4)
	runner := relayer.NewTickerRunner("sync", time.Hour, func(ctx context.Context) error {
		calls <- struct{}{}
		return errors.New("node unavailable")
	})
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- runner.Run(ctx) }()

	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("ticker did not run")
	}
	cancel()
	require.ErrorIs(t, <-result, context.Canceled)
}
