package source

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/rs/zerolog/log"

	"github.com/bitgreen/bridge-relayers/pkg/clients/pallet"
	"github.com/bitgreen/bridge-relayers/pkg/types"
)

// Callback receives the decoded bridge events, one call per event
type Callback func(event types.BridgeEvent)

// PalletChain is the part of the pallet client read by the source
type PalletChain interface {
	SubscribeNewHeads(ctx context.Context, callback func(number uint64)) error
	EventsAt(ctx context.Context, number uint64) ([]pallet.EventRecord, error)
	Metadata() *gsrpc.Metadata
}

type PalletSource struct {
	chain PalletChain
	// last processed block, heads at or below it are ignored
	lastBlock atomic.Uint64
	started   atomic.Bool
}

func NewPalletSource(chain PalletChain) *PalletSource {
	return &PalletSource{chain: chain}
}

// LastBlock is the highest block whose events have been emitted
func (s *PalletSource) LastBlock() uint64 {
	return s.lastBlock.Load()
}

// Subscribe emits the bridge events of succeeded extrinsics for every new head.
// It blocks until ctx is done or the head subscription fails.
func (s *PalletSource) Subscribe(ctx context.Context, callback Callback) error {
	return s.chain.SubscribeNewHeads(ctx, func(number uint64) {
		if err := s.ProcessUpTo(ctx, number, callback); err != nil {
			log.Error().Err(err).Uint64("head", number).Msg("[PalletSource] [Subscribe] failed to process block")
		}
	})
}

// ProcessUpTo processes every block after the last processed one up to number,
// so heads skipped by the subscription are caught up. The first head only
// processes itself. A failing block stops the walk and is read again on the next head.
func (s *PalletSource) ProcessUpTo(ctx context.Context, number uint64, callback Callback) error {
	from := number
	if s.started.Load() && s.lastBlock.Load() < number {
		from = s.lastBlock.Load() + 1
	}
	for block := from; block <= number; block++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.ProcessBlock(ctx, block, callback); err != nil {
			return err
		}
	}
	return nil
}

// ProcessBlock reads the events of block number and emits them in extrinsic order
func (s *PalletSource) ProcessBlock(ctx context.Context, number uint64, callback Callback) error {
	if s.started.Load() && number <= s.lastBlock.Load() {
		log.Debug().Uint64("block", number).Msg("[PalletSource] [ProcessBlock] block already processed")
		return nil
	}
	records, err := s.chain.EventsAt(ctx, number)
	if err != nil {
		return fmt.Errorf("failed to read events of block %d: %w", number, err)
	}
	for _, event := range s.decodeBlock(number, records) {
		callback(event)
	}
	s.lastBlock.Store(number)
	s.started.Store(true)
	return nil
}

type extrinsicEvents struct {
	index   uint32
	records []*pallet.EventRecord
	success bool
	failed  *pallet.EventRecord
}

// decodeBlock groups records by extrinsic and keeps the bridge events of succeeded extrinsics only
func (s *PalletSource) decodeBlock(number uint64, records []pallet.EventRecord) []types.BridgeEvent {
	groups := make(map[uint32]*extrinsicEvents)
	for i := range records {
		record := &records[i]
		if !record.ApplyExtrinsic {
			continue
		}
		group, ok := groups[record.Phase]
		if !ok {
			group = &extrinsicEvents{index: record.Phase}
			groups[record.Phase] = group
		}
		switch {
		case record.Is(pallet.SectionSystem, pallet.MethodExtrinsicSuccess):
			group.success = true
		case record.Is(pallet.SectionSystem, pallet.MethodExtrinsicFailed):
			group.failed = record
		case pallet.IsBridgeEvent(record):
			group.records = append(group.records, record)
		}
	}
	ordered := make([]*extrinsicEvents, 0, len(groups))
	for _, group := range groups {
		ordered = append(ordered, group)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].index < ordered[j].index })

	var events []types.BridgeEvent
	for _, group := range ordered {
		if len(group.records) == 0 {
			continue
		}
		if !group.success {
			s.logFailure(number, group)
			continue
		}
		for _, record := range group.records {
			event, err := pallet.DecodeBridgeEvent(record, number, true)
			if err != nil {
				log.Warn().Err(err).Uint64("block", number).Uint32("index", group.index).
					Msg("[PalletSource] [decodeBlock] skip undecodable event")
				continue
			}
			events = append(events, event)
		}
	}
	return events
}

func (s *PalletSource) logFailure(number uint64, group *extrinsicEvents) {
	reason := "no ExtrinsicSuccess"
	if group.failed != nil && len(group.failed.Fields) > 0 {
		reason = pallet.DecodeDispatchError(s.chain.Metadata(), group.failed.Fields[0].Value).Error()
	}
	log.Info().Uint64("block", number).Uint32("index", group.index).Str("reason", reason).
		Msg("[PalletSource] [decodeBlock] skip events of failed extrinsic")
}
