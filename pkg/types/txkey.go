package types

import (
	"fmt"
	"strings"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
)

// TransactionKeySize is the SCALE size of (u64,u16)
const TransactionKeySize = 10

// TransactionKey identifies a bridge transaction across both chains.
// It is the SCALE encoding of (block_number, index) and is used as the key of the
// pallet vote trackers and of the router txvotes/txqueue maps.
type TransactionKey struct {
	Origin      ChainID
	BlockNumber uint64
	Index       uint16
}

type scaleTransactionKey struct {
	BlockNumber gsrpc.U64
	Index       gsrpc.U16
}

func NewTransactionKey(origin ChainID, blockNumber uint64, index uint16) TransactionKey {
	return TransactionKey{Origin: origin, BlockNumber: blockNumber, Index: index}
}

// Pack encodes (blockNumber, index) into the fixed hex form "0x" + 20 hex chars
func Pack(blockNumber uint64, index uint16) string {
	return NewTransactionKey(ChainPallet, blockNumber, index).Hex()
}

// Unpack is the inverse of Pack
func Unpack(hexKey string) (TransactionKey, error) {
	raw := strings.TrimPrefix(hexKey, "0x")
	if len(raw) != TransactionKeySize*2 {
		return TransactionKey{}, fmt.Errorf("invalid transaction key length %d", len(raw))
	}
	var key scaleTransactionKey
	if err := codec.DecodeFromHex("0x"+raw, &key); err != nil {
		return TransactionKey{}, fmt.Errorf("failed to decode transaction key %s: %w", hexKey, err)
	}
	return NewTransactionKey(ChainPallet, uint64(key.BlockNumber), uint16(key.Index)), nil
}

// TransactionKeyFromBytes decodes the first TransactionKeySize bytes of bz
func TransactionKeyFromBytes(bz []byte) (TransactionKey, error) {
	if len(bz) < TransactionKeySize {
		return TransactionKey{}, fmt.Errorf("transaction key too short: %d bytes", len(bz))
	}
	var key scaleTransactionKey
	if err := codec.Decode(bz[:TransactionKeySize], &key); err != nil {
		return TransactionKey{}, fmt.Errorf("failed to decode transaction key: %w", err)
	}
	return NewTransactionKey(ChainPallet, uint64(key.BlockNumber), uint16(key.Index)), nil
}

// KeyFromBytes32 reads a key from the router bytes32 txid
func KeyFromBytes32(txid [32]byte) (TransactionKey, error) {
	return TransactionKeyFromBytes(txid[:])
}

func (k TransactionKey) Bytes() []byte {
	bz, err := codec.Encode(scaleTransactionKey{
		BlockNumber: gsrpc.U64(k.BlockNumber),
		Index:       gsrpc.U16(k.Index),
	})
	if err != nil {
		// fixed size integers always encode
		panic(fmt.Sprintf("failed to encode transaction key: %v", err))
	}
	return bz
}

func (k TransactionKey) Hex() string {
	return codec.HexEncodeToString(k.Bytes())
}

// Bytes32 is the key right padded with zeros, as the router stores it
func (k TransactionKey) Bytes32() [32]byte {
	var out [32]byte
	copy(out[:], k.Bytes())
	return out
}

func (k TransactionKey) Position() ChainPosition {
	return ChainPosition{BlockNumber: k.BlockNumber, Index: k.Index}
}

func (k TransactionKey) String() string {
	return k.Hex()
}
