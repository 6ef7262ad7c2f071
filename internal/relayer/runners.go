package relayer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"
)

const DEFAULT_LOCKDOWN_SYNC_INTERVAL = 30 * time.Second

// TickerRunner calls fn right away and then on every tick. Errors of fn are logged only.
type TickerRunner struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error
}

func NewTickerRunner(name string, interval time.Duration, fn func(ctx context.Context) error) *TickerRunner {
	return &TickerRunner{name: name, interval: interval, fn: fn}
}

func (r *TickerRunner) Name() string {
	return r.name
}

func (r *TickerRunner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if err := r.fn(ctx); err != nil {
			log.Warn().Err(err).Str("runner", r.name).Msg("[TickerRunner] [Run] tick failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type PendingSubscriber interface {
	SubscribePendingTransactions(ctx context.Context, sink chan<- common.Hash) (ethereum.Subscription, error)
}

type HeadSubscriber interface {
	SubscribeNewHead(ctx context.Context, sink chan<- *ethTypes.Header) (ethereum.Subscription, error)
}

type PendingHandler interface {
	HandlePending(ctx context.Context, hash common.Hash) error
}

type HeadHandler interface {
	HandleHead(ctx context.Context, number uint64) (*ethTypes.Transaction, error)
}

// MempoolRunner feeds the pending transaction hashes of the node to a handler
type MempoolRunner struct {
	chain   PendingSubscriber
	handler PendingHandler
}

func NewMempoolRunner(chain PendingSubscriber, handler PendingHandler) *MempoolRunner {
	return &MempoolRunner{chain: chain, handler: handler}
}

func (r *MempoolRunner) Name() string {
	return "mempool"
}

func (r *MempoolRunner) Run(ctx context.Context) error {
	sink := make(chan common.Hash, 64)
	sub, err := r.chain.SubscribePendingTransactions(ctx, sink)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("pending transactions subscription failed: %w", err)
		case hash := <-sink:
			if err := r.handler.HandlePending(ctx, hash); err != nil {
				log.Warn().Err(err).Str("txHash", hash.Hex()).Msg("[MempoolRunner] [Run] failed to handle pending transaction")
			}
		}
	}
}

// HeadRunner calls the handler with every new evm head
type HeadRunner struct {
	chain   HeadSubscriber
	handler HeadHandler
}

func NewHeadRunner(chain HeadSubscriber, handler HeadHandler) *HeadRunner {
	return &HeadRunner{chain: chain, handler: handler}
}

func (r *HeadRunner) Name() string {
	return "heads"
}

func (r *HeadRunner) Run(ctx context.Context) error {
	sink := make(chan *ethTypes.Header, 1)
	sub, err := r.chain.SubscribeNewHead(ctx, sink)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("new heads subscription failed: %w", err)
		case header := <-sink:
			if _, err := r.handler.HandleHead(ctx, header.Number.Uint64()); err != nil {
				log.Error().Err(err).Uint64("block", header.Number.Uint64()).Msg("[HeadRunner] [Run] failed to handle head")
			}
		}
	}
}
