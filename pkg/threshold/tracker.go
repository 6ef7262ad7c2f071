package threshold

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

type Reason string

const (
	ReasonAct              Reason = "act"
	ReasonAlreadyConfirmed Reason = "already_confirmed"
	ReasonThresholdReached Reason = "threshold_reached"
	ReasonAlreadyVoted     Reason = "already_voted"
)

// Ballot identifies one bridge transaction on the chain where the vote is cast.
// Recipient and Voter hold raw account bytes: 32 bytes on the pallet chain, 20 on the evm chain.
type Ballot struct {
	Token         string
	Recipient     []byte
	TransactionID []byte
	Voter         []byte
}

// Ledger reads the vote state kept on-chain
type Ledger interface {
	Confirmed(ctx context.Context, ballot Ballot) (bool, error)
	QueueCount(ctx context.Context, ballot Ballot) (uint64, error)
	Threshold(ctx context.Context, token string) (uint64, error)
	HasVoted(ctx context.Context, ballot Ballot) (bool, error)
}

type Decision struct {
	Act        bool
	Reason     Reason
	QueueCount uint64
	Threshold  uint64
}

type Tracker struct{}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Decide tells whether this keeper should submit its vote for the ballot.
// The checks run in order and stop at the first one that refuses.
func (t *Tracker) Decide(ctx context.Context, ledger Ledger, ballot Ballot) (Decision, error) {
	confirmed, err := ledger.Confirmed(ctx, ballot)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to read confirmation: %w", err)
	}
	if confirmed {
		return Decision{Reason: ReasonAlreadyConfirmed}, nil
	}
	count, err := ledger.QueueCount(ctx, ballot)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to read queue count: %w", err)
	}
	threshold, err := ledger.Threshold(ctx, ballot.Token)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to read threshold: %w", err)
	}
	decision := Decision{QueueCount: count, Threshold: threshold}
	if count >= threshold {
		decision.Reason = ReasonThresholdReached
		return decision, nil
	}
	voted, err := ledger.HasVoted(ctx, ballot)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to read vote tracker: %w", err)
	}
	if voted {
		decision.Reason = ReasonAlreadyVoted
		return decision, nil
	}
	decision.Act = true
	decision.Reason = ReasonAct
	log.Debug().Uint64("queueCount", count).Uint64("threshold", threshold).Msg("[Tracker] [Decide] vote allowed")
	return decision, nil
}
