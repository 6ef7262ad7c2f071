package pallet

import (
	"fmt"
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/registry"
	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4/types"

	"github.com/bitgreen/bridge-relayers/pkg/types"
)

// The registry decoder returns nested DecodedFields for composites and []any for sequences.
// The helpers below flatten those shapes into plain go values.

func unwrap(value any) any {
	for {
		switch v := value.(type) {
		case registry.DecodedFields:
			if len(v) != 1 || v[0] == nil {
				return value
			}
			value = v[0].Value
		case *registry.DecodedField:
			if v == nil {
				return nil
			}
			value = v.Value
		default:
			return value
		}
	}
}

func toBytes(value any) ([]byte, error) {
	switch v := unwrap(value).(type) {
	case []byte:
		return v, nil
	case gsrpc.Bytes:
		return v, nil
	case string:
		return []byte(v), nil
	case gsrpc.Text:
		return []byte(v), nil
	case gsrpc.AccountID:
		return v[:], nil
	case *gsrpc.AccountID:
		return v[:], nil
	case [32]byte:
		return v[:], nil
	case []gsrpc.U8:
		out := make([]byte, len(v))
		for i, b := range v {
			out[i] = byte(b)
		}
		return out, nil
	case []any:
		out := make([]byte, len(v))
		for i, item := range v {
			n, err := toUint64(item)
			if err != nil || n > 0xff {
				return nil, fmt.Errorf("element %d is not a byte: %v", i, item)
			}
			out[i] = byte(n)
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("nil value")
	default:
		return nil, fmt.Errorf("unsupported bytes value %T", v)
	}
}

func toBigInt(value any) (*big.Int, error) {
	switch v := unwrap(value).(type) {
	case gsrpc.U128:
		if v.Int == nil {
			return new(big.Int), nil
		}
		return new(big.Int).Set(v.Int), nil
	case gsrpc.U256:
		if v.Int == nil {
			return new(big.Int), nil
		}
		return new(big.Int).Set(v.Int), nil
	case gsrpc.UCompact:
		n := big.Int(v)
		return new(big.Int).Set(&n), nil
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case gsrpc.U8:
		return big.NewInt(int64(v)), nil
	case gsrpc.U16:
		return big.NewInt(int64(v)), nil
	case gsrpc.U32:
		return big.NewInt(int64(v)), nil
	case gsrpc.U64:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint8:
		return big.NewInt(int64(v)), nil
	case uint16:
		return big.NewInt(int64(v)), nil
	case uint32:
		return big.NewInt(int64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int:
		return big.NewInt(int64(v)), nil
	default:
		return nil, fmt.Errorf("unsupported integer value %T", v)
	}
}

func toUint64(value any) (uint64, error) {
	n, err := toBigInt(value)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("integer %s overflows uint64", n)
	}
	return n.Uint64(), nil
}

func toAccountID(value any) (types.AccountID, error) {
	bz, err := toBytes(value)
	if err != nil {
		return types.AccountID{}, err
	}
	return types.AccountIDFromBytes(bz)
}

// findField walks a decoded value depth first and returns the first field called name
func findField(value any, name string) (any, bool) {
	switch v := value.(type) {
	case registry.DecodedFields:
		for _, field := range v {
			if field == nil {
				continue
			}
			if field.Name == name {
				return field.Value, true
			}
			if found, ok := findField(field.Value, name); ok {
				return found, true
			}
		}
	case *registry.DecodedField:
		if v != nil {
			if v.Name == name {
				return v.Value, true
			}
			return findField(v.Value, name)
		}
	case []any:
		for _, item := range v {
			if found, ok := findField(item, name); ok {
				return found, true
			}
		}
	}
	return nil, false
}
