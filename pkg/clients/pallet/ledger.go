package pallet

import (
	"context"

	"github.com/bitgreen/bridge-relayers/pkg/threshold"
	"github.com/bitgreen/bridge-relayers/pkg/types"
)

// Ledger reads the mint or burn vote state of the bridge pallet
type Ledger struct {
	client       *Client
	confirmation func(ctx context.Context, key []byte) (bool, error)
	counter      func(ctx context.Context, key []byte) (uint64, error)
	tracker      func(ctx context.Context, transactionID []byte, account types.AccountID) (uint64, error)
}

func (c *Client) MintLedger() *Ledger {
	return &Ledger{
		client:       c,
		confirmation: c.MintConfirmation,
		counter:      c.MintCounter,
		tracker:      c.TransactionMintTracker,
	}
}

func (c *Client) BurnLedger() *Ledger {
	return &Ledger{
		client:       c,
		confirmation: c.BurnConfirmation,
		counter:      c.BurnCounter,
		tracker:      c.TransactionBurnTracker,
	}
}

func ballotKey(ballot threshold.Ballot) []byte {
	return ConfirmationKey(ballot.Token, ballot.Recipient, ballot.TransactionID)
}

func (l *Ledger) Confirmed(ctx context.Context, ballot threshold.Ballot) (bool, error) {
	return l.confirmation(ctx, ballotKey(ballot))
}

func (l *Ledger) QueueCount(ctx context.Context, ballot threshold.Ballot) (uint64, error) {
	return l.counter(ctx, ballotKey(ballot))
}

func (l *Ledger) Threshold(ctx context.Context, token string) (uint64, error) {
	settings, err := l.client.Settings(ctx, token)
	if err != nil {
		return 0, err
	}
	return settings.Threshold(), nil
}

func (l *Ledger) HasVoted(ctx context.Context, ballot threshold.Ballot) (bool, error) {
	voter, err := types.AccountIDFromBytes(ballot.Voter)
	if err != nil {
		return false, err
	}
	votes, err := l.tracker(ctx, ballot.TransactionID, voter)
	if err != nil {
		return false, err
	}
	return votes > 0, nil
}
