package pallet

import (
	"fmt"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// DispatchError is the reason a submitted extrinsic failed on-chain
type DispatchError struct {
	Section string
	Name    string
	// Set for non module errors such as BadOrigin
	Other string
}

func (e *DispatchError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("%s.%s", e.Section, e.Name)
	}
	return e.Other
}

// ModuleError locates a pallet error inside the runtime metadata
type ModuleError struct {
	Index uint8
	Error uint8
}

// moduleErrorOf extracts the pallet and error indices of a decoded DispatchError::Module
func moduleErrorOf(dispatchError any) (*ModuleError, bool) {
	indexValue, ok := findField(dispatchError, "index")
	if !ok {
		return nil, false
	}
	errorValue, ok := findField(dispatchError, "error")
	if !ok {
		return nil, false
	}
	index, err := toUint64(indexValue)
	if err != nil {
		return nil, false
	}
	moduleError := &ModuleError{Index: uint8(index)}
	// [u8; 4] on recent runtimes, a single u8 on older ones
	if bz, err := toBytes(errorValue); err == nil && len(bz) > 0 {
		moduleError.Error = bz[0]
	} else if n, err := toUint64(errorValue); err == nil {
		moduleError.Error = uint8(n)
	} else {
		return nil, false
	}
	return moduleError, true
}

// resolveModuleError finds the pallet and variant names of a module error
func resolveModuleError(meta *gsrpc.Metadata, moduleError *ModuleError) (string, string, bool) {
	if meta == nil || meta.Version != 14 {
		return "", "", false
	}
	section := ""
	for _, pallet := range meta.AsMetadataV14.Pallets {
		if uint8(pallet.Index) == moduleError.Index {
			section = string(pallet.Name)
			break
		}
	}
	if section == "" {
		return "", "", false
	}
	metadataError, err := meta.FindError(gsrpc.U8(moduleError.Index), [4]gsrpc.U8{gsrpc.U8(moduleError.Error)})
	if err != nil {
		return section, "", false
	}
	return section, metadataError.Name, true
}

// DecodeDispatchError builds a DispatchError from the first field of System.ExtrinsicFailed
func DecodeDispatchError(meta *gsrpc.Metadata, dispatchError any) *DispatchError {
	moduleError, ok := moduleErrorOf(dispatchError)
	if !ok {
		return &DispatchError{Other: describeOther(dispatchError)}
	}
	section, name, ok := resolveModuleError(meta, moduleError)
	if !ok {
		return &DispatchError{Other: fmt.Sprintf("module error %d:%d", moduleError.Index, moduleError.Error)}
	}
	return &DispatchError{Section: section, Name: name}
}

func describeOther(value any) string {
	value = unwrap(value)
	if value == nil {
		return "unknown dispatch error"
	}
	return fmt.Sprintf("%v", value)
}
