package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/bitgreen/bridge-relayers/pkg/clients/evm/parser"
	"github.com/bitgreen/bridge-relayers/pkg/types"
)

// EvmChain is the part of the evm client read by the source
type EvmChain interface {
	SubscribeRouterLogs(ctx context.Context, sink chan<- ethTypes.Log) (ethereum.Subscription, error)
}

type EvmSource struct {
	chain EvmChain
	last  types.ChainPosition
}

func NewEvmSource(chain EvmChain) *EvmSource {
	return &EvmSource{chain: chain}
}

func (s *EvmSource) LastPosition() types.ChainPosition {
	return s.last
}

// Subscribe emits router events as the node delivers them.
// It blocks until ctx is done or the subscription fails.
func (s *EvmSource) Subscribe(ctx context.Context, callback Callback) error {
	sink := make(chan ethTypes.Log)
	sub, err := s.chain.SubscribeRouterLogs(ctx, sink)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				return fmt.Errorf("router logs subscription closed")
			}
			return fmt.Errorf("router logs subscription failed: %w", err)
		case receiptLog := <-sink:
			s.HandleLog(&receiptLog, callback)
		}
	}
}

// HandleLog parses one router log and forwards it to callback
func (s *EvmSource) HandleLog(receiptLog *ethTypes.Log, callback Callback) {
	if receiptLog.Removed {
		log.Warn().Str("txHash", receiptLog.TxHash.Hex()).Uint64("block", receiptLog.BlockNumber).
			Msg("[EvmSource] [HandleLog] drop log removed by reorg")
		return
	}
	event, err := parser.ParseLog(receiptLog)
	if err != nil {
		if !errors.Is(err, parser.ErrUnknownEvent) {
			log.Warn().Err(err).Str("txHash", receiptLog.TxHash.Hex()).Msg("[EvmSource] [HandleLog] skip undecodable log")
		}
		return
	}
	s.last = event.Meta().Position
	log.Info().Str("event", event.Kind().String()).Str("txHash", receiptLog.TxHash.Hex()).
		Uint64("block", receiptLog.BlockNumber).Msg("[EvmSource] [HandleLog] received")
	callback(event)
}
