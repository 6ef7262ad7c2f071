package types

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type ChainID string

const (
	ChainPallet ChainID = "pallet"
	ChainEvm    ChainID = "evm"
)

type EventKind int

const (
	KindMintQueued EventKind = iota + 1
	KindBurnQueued
	KindRequest
	KindMinted
	KindBurned
	KindTransferQueued
	KindDepositRequest
	KindTransfer
)

var eventKindNames = map[EventKind]string{
	KindMintQueued:     "MintQueued",
	KindBurnQueued:     "BurnQueued",
	KindRequest:        "Request",
	KindMinted:         "Minted",
	KindBurned:         "Burned",
	KindTransferQueued: "BridgeTransferQueued",
	KindDepositRequest: "BridgeDepositRequest",
	KindTransfer:       "BridgeTransfer",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// ChainPosition orders an event inside its source chain.
// On the pallet chain Index is the extrinsic index, on the evm chain the transaction index.
type ChainPosition struct {
	BlockNumber uint64
	Index       uint16
}

func (p ChainPosition) Less(other ChainPosition) bool {
	if p.BlockNumber != other.BlockNumber {
		return p.BlockNumber < other.BlockNumber
	}
	return p.Index < other.Index
}

func (p ChainPosition) String() string {
	return fmt.Sprintf("%d-%d", p.BlockNumber, p.Index)
}

// AccountID is a 32 bytes pallet account
type AccountID [32]byte

func AccountIDFromBytes(bz []byte) (AccountID, error) {
	var id AccountID
	if len(bz) != len(id) {
		return id, fmt.Errorf("invalid account id length %d", len(bz))
	}
	copy(id[:], bz)
	return id, nil
}

func (a AccountID) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a AccountID) Bytes() []byte {
	return a[:]
}

type EventMeta struct {
	Chain    ChainID
	Position ChainPosition
	// Evm transaction hash, empty for pallet events
	TxHash  common.Hash
	Success bool
}

// BridgeEvent is implemented by every decoded bridge event.
// Consumers switch on the concrete type.
type BridgeEvent interface {
	Kind() EventKind
	Meta() EventMeta
}

// Transfer is the payload shared by the pallet queue and settlement events
type Transfer struct {
	Signer        AccountID
	AssetID       uint32
	Recipient     AccountID
	Amount        *big.Int
	TransactionID []byte
	Token         string
}

type MintQueuedEvent struct {
	EventMeta
	Transfer
}

func (e *MintQueuedEvent) Kind() EventKind { return KindMintQueued }
func (e *MintQueuedEvent) Meta() EventMeta { return e.EventMeta }

type BurnQueuedEvent struct {
	EventMeta
	Transfer
}

func (e *BurnQueuedEvent) Kind() EventKind { return KindBurnQueued }
func (e *BurnQueuedEvent) Meta() EventMeta { return e.EventMeta }

type MintedEvent struct {
	EventMeta
	Transfer
}

func (e *MintedEvent) Kind() EventKind { return KindMinted }
func (e *MintedEvent) Meta() EventMeta { return e.EventMeta }

type BurnedEvent struct {
	EventMeta
	Transfer
}

func (e *BurnedEvent) Kind() EventKind { return KindBurned }
func (e *BurnedEvent) Meta() EventMeta { return e.EventMeta }

// RequestEvent is emitted by the pallet when an account asks to move tokens to the evm chain.
// Destination holds the raw bytes submitted with the request, normally the 20 bytes of an evm address.
type RequestEvent struct {
	EventMeta
	Signer      AccountID
	Token       string
	Destination []byte
	Amount      *big.Int
}

func (e *RequestEvent) Kind() EventKind { return KindRequest }
func (e *RequestEvent) Meta() EventMeta { return e.EventMeta }

// DestinationAddress renders a request destination as a 0x address string.
// The pallet stores the 20 raw address bytes; any other length is kept as submitted text.
func DestinationAddress(destination []byte) string {
	if len(destination) == common.AddressLength {
		return hexutil.Encode(destination)
	}
	return string(destination)
}

// TransactionKey of a request is derived from its own position
func (e *RequestEvent) TransactionKey() TransactionKey {
	return NewTransactionKey(ChainPallet, e.Position.BlockNumber, e.Position.Index)
}

type Deposit struct {
	Destination [32]byte
	Amount      *big.Int
	Sender      common.Address
}

type TransferQueuedEvent struct {
	EventMeta
	Deposit
}

func (e *TransferQueuedEvent) Kind() EventKind { return KindTransferQueued }
func (e *TransferQueuedEvent) Meta() EventMeta { return e.EventMeta }

type DepositRequestEvent struct {
	EventMeta
	Deposit
}

func (e *DepositRequestEvent) Kind() EventKind { return KindDepositRequest }
func (e *DepositRequestEvent) Meta() EventMeta { return e.EventMeta }

// TransferEvent is the router BridgeTransfer event, emitted when a pallet burn has been paid out
type TransferEvent struct {
	EventMeta
	TxID          [32]byte
	Recipient     common.Address
	Amount        *big.Int
	ERC20         common.Address
	WithdrawalFee *big.Int
}

func (e *TransferEvent) Kind() EventKind { return KindTransfer }
func (e *TransferEvent) Meta() EventMeta { return e.EventMeta }
