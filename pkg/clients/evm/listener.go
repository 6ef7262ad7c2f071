package evm

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/bitgreen/bridge-relayers/pkg/clients/evm/parser"
)

// SubscribeRouterLogs streams the router bridge events into sink
func (c *EvmClient) SubscribeRouterLogs(ctx context.Context, sink chan<- ethTypes.Log) (ethereum.Subscription, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.RouterAddress},
		Topics:    [][]common.Hash{parser.EventTopics()},
	}
	sub, err := c.Client.SubscribeFilterLogs(ctx, query, sink)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe router logs: %w", err)
	}
	log.Info().Str("router", c.RouterAddress.Hex()).Msg("[EvmClient] [SubscribeRouterLogs] subscribed")
	return sub, nil
}

func (c *EvmClient) SubscribeNewHead(ctx context.Context, sink chan<- *ethTypes.Header) (ethereum.Subscription, error) {
	sub, err := c.Client.SubscribeNewHead(ctx, sink)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe new heads: %w", err)
	}
	return sub, nil
}

// SubscribePendingTransactions streams the hashes of transactions entering the node mempool
func (c *EvmClient) SubscribePendingTransactions(ctx context.Context, sink chan<- common.Hash) (ethereum.Subscription, error) {
	if c.gethClient == nil {
		return nil, fmt.Errorf("pending transactions need a raw rpc connection")
	}
	sub, err := c.gethClient.SubscribePendingTransactions(ctx, sink)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe pending transactions: %w", err)
	}
	return sub, nil
}

// Sender recovers the signer of tx
func (c *EvmClient) Sender(tx *ethTypes.Transaction) (common.Address, error) {
	chainID := c.ChainID
	if chainID == nil {
		chainID = tx.ChainId()
	}
	return ethTypes.Sender(ethTypes.LatestSignerForChainID(chainID), tx)
}

func (c *EvmClient) BlockNumber(ctx context.Context) (uint64, error) {
	return c.Client.BlockNumber(ctx)
}
