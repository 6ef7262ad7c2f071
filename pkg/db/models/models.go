package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RelayStatus string

const (
	RelayStatusSubmitted RelayStatus = "submitted"
	RelayStatusSkipped   RelayStatus = "skipped"
	RelayStatusFailed    RelayStatus = "failed"
)

// RelayRecord keeps the outcome of every event handled by a relayer process
type RelayRecord struct {
	ID            string      `gorm:"primaryKey;type:varchar(36)"`
	Process       string      `gorm:"index;type:varchar(32)"`
	SourceChain   string      `gorm:"index:idx_relay_source;type:varchar(16)"`
	EventKind     string      `gorm:"type:varchar(64)"`
	BlockNumber   uint64      `gorm:"index:idx_relay_source;type:bigint"`
	Index         uint16      `gorm:"column:event_index;index:idx_relay_source"`
	TransactionID string      `gorm:"index;type:varchar(130)"`
	Action        string      `gorm:"type:varchar(64)"`
	Status        RelayStatus `gorm:"type:varchar(16)"`
	Reason        string      `gorm:"type:varchar(64)"`
	TxHash        string      `gorm:"type:varchar(130)"`
	Amount        string      `gorm:"type:varchar(80)"`
	Error         string      `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (r *RelayRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// EventCheckPoint stores the last position handled per chain and process
type EventCheckPoint struct {
	gorm.Model
	Process     string `gorm:"uniqueIndex:idx_checkpoint;type:varchar(32)"`
	ChainName   string `gorm:"uniqueIndex:idx_checkpoint;type:varchar(16)"`
	BlockNumber uint64 `gorm:"type:bigint"`
	Index       uint16 `gorm:"column:event_index"`
	EventKind   string `gorm:"type:varchar(64)"`
}
