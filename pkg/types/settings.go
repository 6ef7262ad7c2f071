package types

import (
	"encoding/json"
	"fmt"
	"slices"
)

// BridgeSettings is the json document stored by the pallet under Settings(token)
type BridgeSettings struct {
	ChainID           uint64   `json:"chainid"`
	Description       string   `json:"description"`
	Address           string   `json:"address"`
	AssetID           uint32   `json:"assetid"`
	InternalThreshold uint64   `json:"internalthreshold"`
	ExternalThreshold uint64   `json:"externathreshold"`
	InternalKeepers   []string `json:"internalkeepers"`
	ExternalKeepers   []string `json:"externalkeepers"`
	InternalWatchdogs []string `json:"internalwatchdogs"`
	ExternalWatchdogs []string `json:"externalwatchdogs"`
	InternalWatchcats []string `json:"internalwatchcats"`
	ExternalWatchcats []string `json:"externalwatchcats"`
}

func ParseBridgeSettings(data []byte) (*BridgeSettings, error) {
	var settings BridgeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse bridge settings: %w", err)
	}
	return &settings, nil
}

// Threshold is the number of keeper confirmations required on the pallet chain.
// A zero threshold is treated as one.
func (s *BridgeSettings) Threshold() uint64 {
	if s.InternalThreshold == 0 {
		return 1
	}
	return s.InternalThreshold
}

func (s *BridgeSettings) IsKeeper(address string) bool {
	return slices.Contains(s.InternalKeepers, address)
}

func (s *BridgeSettings) IsWatchdog(address string) bool {
	return slices.Contains(s.InternalWatchdogs, address)
}
