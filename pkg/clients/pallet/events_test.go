package pallet_test

import (
	"math/big"
	"testing"

	"github.com/centrifuge/go-substrate-rpc-client/v4/registry"
	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitgreen/bridge-relayers/pkg/clients/pallet"
	"github.com/bitgreen/bridge-relayers/pkg/types"
)

func account(b byte) gsrpc.AccountID {
	var id gsrpc.AccountID
	for i := range id {
		id[i] = b
	}
	return id
}

func byteSequence(bz []byte) []any {
	out := make([]any, len(bz))
	for i, b := range bz {
		out[i] = gsrpc.U8(b)
	}
	return out
}

func fields(values ...any) registry.DecodedFields {
	out := make(registry.DecodedFields, len(values))
	for i, value := range values {
		out[i] = &registry.DecodedField{Value: value}
	}
	return out
}

func TestDecodeTransferEvents(t *testing.T) {
	recipient := account(2)
	signer := account(1)
	record := &pallet.EventRecord{
		ApplyExtrinsic: true,
		Phase:          4,
		Section:        pallet.SectionBridge,
		Method:         pallet.MethodMintQueued,
		Fields: fields(
			registry.DecodedFields{{Name: "", Value: byteSequence(signer[:])}},
			gsrpc.U32(1),
			recipient,
			gsrpc.NewU128(*big.NewInt(1_000_000)),
			byteSequence([]byte("0xabcdef")),
			byteSequence([]byte("WETH")),
		),
	}
	event, err := pallet.DecodeBridgeEvent(record, 55, true)
	require.NoError(t, err)
	queued, ok := event.(*types.MintQueuedEvent)
	require.True(t, ok)
	assert.Equal(t, types.AccountID(account(1)), queued.Signer)
	assert.Equal(t, types.AccountID(recipient), queued.Recipient)
	assert.Equal(t, uint32(1), queued.AssetID)
	assert.Equal(t, int64(1_000_000), queued.Amount.Int64())
	assert.Equal(t, []byte("0xabcdef"), queued.TransactionID)
	assert.Equal(t, "WETH", queued.Token)
	assert.Equal(t, types.ChainPosition{BlockNumber: 55, Index: 4}, queued.Meta().Position)
	assert.True(t, queued.Meta().Success)

	for method, kind := range map[string]types.EventKind{
		pallet.MethodBurnQueued: types.KindBurnQueued,
		pallet.MethodMinted:     types.KindMinted,
		pallet.MethodBurned:     types.KindBurned,
	} {
		record.Method = method
		event, err := pallet.DecodeBridgeEvent(record, 55, true)
		require.NoError(t, err)
		assert.Equal(t, kind, event.Kind())
	}
}

func TestDecodeRequestEvent(t *testing.T) {
	record := &pallet.EventRecord{
		ApplyExtrinsic: true,
		Phase:          2,
		Section:        pallet.SectionBridge,
		Method:         pallet.MethodRequest,
		Fields: fields(
			account(9),
			[]byte("BBB"),
			gsrpc.NewBytes([]byte("0x0b6Ac598caE6d1ef48AC79FF34975f890dC677D9")),
			gsrpc.NewU128(*big.NewInt(42)),
		),
	}
	event, err := pallet.DecodeBridgeEvent(record, 100, true)
	require.NoError(t, err)
	request, ok := event.(*types.RequestEvent)
	require.True(t, ok)
	assert.Equal(t, "BBB", request.Token)
	assert.Equal(t, "0x0b6Ac598caE6d1ef48AC79FF34975f890dC677D9", string(request.Destination))
	assert.Equal(t, int64(42), request.Amount.Int64())
	assert.Equal(t, "0x64000000000000000200", request.TransactionKey().Hex())
}

func TestDecodeBridgeEventErrors(t *testing.T) {
	_, err := pallet.DecodeBridgeEvent(&pallet.EventRecord{Section: "Balances", Method: "Transfer"}, 1, true)
	require.Error(t, err)

	short := &pallet.EventRecord{Section: pallet.SectionBridge, Method: pallet.MethodMinted, Fields: fields(account(1))}
	_, err = pallet.DecodeBridgeEvent(short, 1, true)
	require.Error(t, err)

	badAccount := &pallet.EventRecord{
		Section: pallet.SectionBridge,
		Method:  pallet.MethodRequest,
		Fields:  fields([]byte{1, 2}, []byte("BBB"), []byte("0x"), gsrpc.NewU128(*big.NewInt(1))),
	}
	_, err = pallet.DecodeBridgeEvent(badAccount, 1, true)
	require.Error(t, err)
}

func TestDecodeDispatchError(t *testing.T) {
	moduleError := registry.DecodedFields{{
		Name: "Module",
		Value: registry.DecodedFields{
			{Name: "index", Value: gsrpc.U8(42)},
			{Name: "error", Value: byteSequence([]byte{3, 0, 0, 0})},
		},
	}}
	dispatchError := pallet.DecodeDispatchError(nil, moduleError)
	assert.Equal(t, "module error 42:3", dispatchError.Error())
	assert.Empty(t, dispatchError.Section)

	other := pallet.DecodeDispatchError(nil, "BadOrigin")
	assert.Equal(t, "BadOrigin", other.Error())

	named := &pallet.DispatchError{Section: "Bridge", Name: "MintingNotAllowedTwice"}
	assert.Equal(t, "Bridge.MintingNotAllowedTwice", named.Error())
}

func bridgeMetadata() *gsrpc.Metadata {
	errorType := gsrpc.NewSi1LookupTypeIDFromUInt(7)
	return &gsrpc.Metadata{
		Version: 14,
		AsMetadataV14: gsrpc.MetadataV14{
			Pallets: []gsrpc.PalletMetadataV14{{
				Name:      "Bridge",
				Index:     42,
				HasErrors: true,
				Errors:    gsrpc.ErrorMetadataV14{Type: errorType},
			}},
			EfficientLookup: map[int64]*gsrpc.Si1Type{
				errorType.Int64(): {
					Def: gsrpc.Si1TypeDef{
						IsVariant: true,
						Variant: gsrpc.Si1TypeDefVariant{Variants: []gsrpc.Si1Variant{
							{Name: "MintingNotAllowedTwice", Index: 2},
							{Name: "BurnNotAllowedTwice", Index: 3},
						}},
					},
				},
			},
		},
	}
}

func TestDecodeDispatchErrorResolvesNames(t *testing.T) {
	moduleError := registry.DecodedFields{{
		Name: "Module",
		Value: registry.DecodedFields{
			{Name: "index", Value: gsrpc.U8(42)},
			{Name: "error", Value: byteSequence([]byte{3, 0, 0, 0})},
		},
	}}
	dispatchError := pallet.DecodeDispatchError(bridgeMetadata(), moduleError)
	assert.Equal(t, "Bridge", dispatchError.Section)
	assert.Equal(t, "BurnNotAllowedTwice", dispatchError.Name)
	assert.Equal(t, "Bridge.BurnNotAllowedTwice", dispatchError.Error())

	legacy := bridgeMetadata()
	legacy.Version = 13
	assert.Equal(t, "module error 42:3", pallet.DecodeDispatchError(legacy, moduleError).Error())
}

func TestConfirmationKey(t *testing.T) {
	recipient := account(7)
	key := pallet.ConfirmationKey("WETH", recipient[:], []byte("0x01"))
	assert.Equal(t, "WETH-", string(key[:5]))
	assert.Equal(t, recipient[:], key[5:37])
	assert.Equal(t, "-0x01", string(key[37:]))
}

func TestDecodeRequestCall(t *testing.T) {
	requestIndex := gsrpc.CallIndex{SectionIndex: 50, MethodIndex: 3}
	args, err := codec.Encode(struct {
		Token       gsrpc.Bytes
		Destination gsrpc.Bytes
		Amount      gsrpc.U128
	}{
		Token:       gsrpc.NewBytes([]byte("BBB")),
		Destination: gsrpc.NewBytes([]byte("0x0b6Ac598caE6d1ef48AC79FF34975f890dC677D9")),
		Amount:      gsrpc.NewU128(*big.NewInt(5000)),
	})
	require.NoError(t, err)

	call, err := pallet.DecodeRequestCall(gsrpc.Call{CallIndex: requestIndex, Args: args}, requestIndex)
	require.NoError(t, err)
	assert.Equal(t, "BBB", call.Token)
	assert.Equal(t, "0x0b6Ac598caE6d1ef48AC79FF34975f890dC677D9", string(call.Destination))
	assert.Equal(t, int64(5000), call.Amount.Int64())

	_, err = pallet.DecodeRequestCall(gsrpc.Call{CallIndex: gsrpc.CallIndex{SectionIndex: 50, MethodIndex: 1}, Args: args}, requestIndex)
	require.ErrorIs(t, err, types.ErrNotRequest)
}
