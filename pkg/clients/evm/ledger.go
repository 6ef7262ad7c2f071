package evm

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bitgreen/bridge-relayers/pkg/threshold"
)

// RouterLedger exposes the router vote state to the threshold tracker
type RouterLedger struct {
	client *EvmClient
}

func (c *EvmClient) Ledger() *RouterLedger {
	return &RouterLedger{client: c}
}

func ballotTxID(ballot threshold.Ballot) [32]byte {
	var txid [32]byte
	copy(txid[:], ballot.TransactionID)
	return txid
}

// Confirmed is always false, the router clears its queue entry once the transfer is paid out
func (l *RouterLedger) Confirmed(ctx context.Context, ballot threshold.Ballot) (bool, error) {
	return false, nil
}

func (l *RouterLedger) QueueCount(ctx context.Context, ballot threshold.Ballot) (uint64, error) {
	entry, err := l.client.TxQueue(ctx, ballotTxID(ballot))
	if err != nil {
		return 0, err
	}
	return entry.Count, nil
}

func (l *RouterLedger) Threshold(ctx context.Context, token string) (uint64, error) {
	return l.client.GetThreshold(ctx)
}

func (l *RouterLedger) HasVoted(ctx context.Context, ballot threshold.Ballot) (bool, error) {
	return l.client.TxVotes(ctx, ballotTxID(ballot), common.BytesToAddress(ballot.Voter))
}
