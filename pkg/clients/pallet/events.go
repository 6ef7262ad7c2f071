package pallet

import (
	"context"
	"fmt"
	"strings"

	"github.com/centrifuge/go-substrate-rpc-client/v4/registry"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/parser"
	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4/types"

	"github.com/bitgreen/bridge-relayers/pkg/types"
)

const (
	SectionBridge = "Bridge"
	SectionSystem = "System"

	MethodMintQueued       = "MintQueued"
	MethodBurnQueued       = "BurnQueued"
	MethodMinted           = "Minted"
	MethodBurned           = "Burned"
	MethodRequest          = "Request"
	MethodExtrinsicSuccess = "ExtrinsicSuccess"
	MethodExtrinsicFailed  = "ExtrinsicFailed"
)

// EventRecord is one entry of System.Events decoded with the runtime metadata
type EventRecord struct {
	// Extrinsic index, valid only when ApplyExtrinsic is set
	Phase          uint32
	ApplyExtrinsic bool
	Section        string
	Method         string
	Fields         registry.DecodedFields
}

func (r *EventRecord) Is(section, method string) bool {
	return r.Section == section && r.Method == method
}

func (r *EventRecord) Name() string {
	return r.Section + "." + r.Method
}

func (r *EventRecord) field(i int) (any, error) {
	if i >= len(r.Fields) || r.Fields[i] == nil {
		return nil, fmt.Errorf("%s has no field %d", r.Name(), i)
	}
	return r.Fields[i].Value, nil
}

func recordFromParsed(event *parser.Event) EventRecord {
	record := EventRecord{Fields: event.Fields}
	record.Section, record.Method, _ = strings.Cut(event.Name, ".")
	if event.Phase != nil && event.Phase.IsApplyExtrinsic {
		record.ApplyExtrinsic = true
		record.Phase = event.Phase.AsApplyExtrinsic
	}
	return record
}

// EventsAt returns the decoded event records of block number
func (c *Client) EventsAt(ctx context.Context, number uint64) ([]EventRecord, error) {
	hash, err := c.api.RPC.Chain.GetBlockHash(number)
	if err != nil {
		return nil, fmt.Errorf("failed to get block hash %d: %w", number, err)
	}
	return c.EventsAtHash(ctx, hash)
}

func (c *Client) EventsAtHash(ctx context.Context, hash gsrpc.Hash) ([]EventRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	events, err := c.retriever.GetEvents(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get events at %s: %w", hash.Hex(), err)
	}
	records := make([]EventRecord, 0, len(events))
	for _, event := range events {
		records = append(records, recordFromParsed(event))
	}
	return records, nil
}

func decodeTransfer(record *EventRecord) (types.Transfer, error) {
	var transfer types.Transfer
	values := make([]any, 6)
	for i := range values {
		value, err := record.field(i)
		if err != nil {
			return transfer, err
		}
		values[i] = value
	}
	var err error
	if transfer.Signer, err = toAccountID(values[0]); err != nil {
		return transfer, fmt.Errorf("signer: %w", err)
	}
	assetID, err := toUint64(values[1])
	if err != nil {
		return transfer, fmt.Errorf("asset_id: %w", err)
	}
	transfer.AssetID = uint32(assetID)
	if transfer.Recipient, err = toAccountID(values[2]); err != nil {
		return transfer, fmt.Errorf("recipient: %w", err)
	}
	if transfer.Amount, err = toBigInt(values[3]); err != nil {
		return transfer, fmt.Errorf("amount: %w", err)
	}
	if transfer.TransactionID, err = toBytes(values[4]); err != nil {
		return transfer, fmt.Errorf("transaction_id: %w", err)
	}
	token, err := toBytes(values[5])
	if err != nil {
		return transfer, fmt.Errorf("token: %w", err)
	}
	transfer.Token = string(token)
	return transfer, nil
}

func decodeRequest(record *EventRecord, meta types.EventMeta) (*types.RequestEvent, error) {
	event := &types.RequestEvent{EventMeta: meta}
	values := make([]any, 4)
	for i := range values {
		value, err := record.field(i)
		if err != nil {
			return nil, err
		}
		values[i] = value
	}
	var err error
	if event.Signer, err = toAccountID(values[0]); err != nil {
		return nil, fmt.Errorf("signer: %w", err)
	}
	token, err := toBytes(values[1])
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}
	event.Token = string(token)
	if event.Destination, err = toBytes(values[2]); err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}
	if event.Amount, err = toBigInt(values[3]); err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	return event, nil
}

// IsBridgeEvent reports whether the record is one of the relayed bridge events
func IsBridgeEvent(record *EventRecord) bool {
	if record.Section != SectionBridge {
		return false
	}
	switch record.Method {
	case MethodMintQueued, MethodBurnQueued, MethodMinted, MethodBurned, MethodRequest:
		return true
	}
	return false
}

// DecodeBridgeEvent turns a Bridge event record of block number into a typed bridge event
func DecodeBridgeEvent(record *EventRecord, blockNumber uint64, success bool) (types.BridgeEvent, error) {
	meta := types.EventMeta{
		Chain:    types.ChainPallet,
		Position: types.ChainPosition{BlockNumber: blockNumber, Index: uint16(record.Phase)},
		Success:  success,
	}
	if !IsBridgeEvent(record) {
		return nil, fmt.Errorf("%s is not a bridge event", record.Name())
	}
	if record.Method == MethodRequest {
		event, err := decodeRequest(record, meta)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", record.Name(), err)
		}
		return event, nil
	}
	transfer, err := decodeTransfer(record)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", record.Name(), err)
	}
	switch record.Method {
	case MethodMintQueued:
		return &types.MintQueuedEvent{EventMeta: meta, Transfer: transfer}, nil
	case MethodBurnQueued:
		return &types.BurnQueuedEvent{EventMeta: meta, Transfer: transfer}, nil
	case MethodMinted:
		return &types.MintedEvent{EventMeta: meta, Transfer: transfer}, nil
	default:
		return &types.BurnedEvent{EventMeta: meta, Transfer: transfer}, nil
	}
}

// RequestAt returns the succeeded Request event emitted by the extrinsic at key
func (c *Client) RequestAt(ctx context.Context, key types.TransactionKey) (*types.RequestEvent, error) {
	records, err := c.EventsAt(ctx, key.BlockNumber)
	if err != nil {
		return nil, err
	}
	var request *EventRecord
	succeeded := false
	for i := range records {
		record := &records[i]
		if !record.ApplyExtrinsic || record.Phase != uint32(key.Index) {
			continue
		}
		switch {
		case record.Is(SectionBridge, MethodRequest):
			request = record
		case record.Is(SectionSystem, MethodExtrinsicSuccess):
			succeeded = true
		}
	}
	if request == nil || !succeeded {
		return nil, fmt.Errorf("%w: no succeeded request at %s", types.ErrNotRequest, key.Position())
	}
	event, err := DecodeBridgeEvent(request, key.BlockNumber, true)
	if err != nil {
		return nil, err
	}
	return event.(*types.RequestEvent), nil
}
