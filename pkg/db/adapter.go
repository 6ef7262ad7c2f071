package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bitgreen/bridge-relayers/pkg/db/models"
	"github.com/bitgreen/bridge-relayers/pkg/types"
)

type DatabaseAdapter struct {
	PostgresClient *gorm.DB
}

const sqlitePrefix = "sqlite://"

// NewDatabaseAdapter opens postgres, or a sqlite file when the url starts with sqlite://
func NewDatabaseAdapter(databaseURL string) (*DatabaseAdapter, error) {
	dialector := postgres.Open(databaseURL)
	if path, ok := strings.CutPrefix(databaseURL, sqlitePrefix); ok {
		dialector = sqlite.Open(path)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewDatabaseAdapterWithDB(db)
}

// NewDatabaseAdapterWithDB wraps an opened gorm connection and migrates the schema
func NewDatabaseAdapterWithDB(db *gorm.DB) (*DatabaseAdapter, error) {
	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return &DatabaseAdapter{PostgresClient: db}, nil
}

func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.RelayRecord{}, &models.EventCheckPoint{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (da *DatabaseAdapter) RecordRelay(ctx context.Context, record *models.RelayRecord) error {
	if err := da.PostgresClient.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create relay record: %w", err)
	}
	log.Debug().Str("id", record.ID).Str("status", string(record.Status)).Msg("[DatabaseAdapter] [RecordRelay] saved")
	return nil
}

// LatestRelays returns the last limit records, newest first
func (da *DatabaseAdapter) LatestRelays(ctx context.Context, limit int) ([]models.RelayRecord, error) {
	var records []models.RelayRecord
	err := da.PostgresClient.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list relay records: %w", err)
	}
	return records, nil
}

func (da *DatabaseAdapter) FindRelaysByTransaction(ctx context.Context, transactionID string) ([]models.RelayRecord, error) {
	var records []models.RelayRecord
	err := da.PostgresClient.WithContext(ctx).Where("transaction_id = ?", transactionID).Order("created_at asc").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find relay records of %s: %w", transactionID, err)
	}
	return records, nil
}

// UpdateCheckpoint upserts the last handled position of process on chain
func (da *DatabaseAdapter) UpdateCheckpoint(ctx context.Context, process string, chain types.ChainID, position types.ChainPosition, kind string) error {
	checkpoint := models.EventCheckPoint{
		Process:     process,
		ChainName:   string(chain),
		BlockNumber: position.BlockNumber,
		Index:       position.Index,
		EventKind:   kind,
	}
	err := da.PostgresClient.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "process"}, {Name: "chain_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"block_number", "event_index", "event_kind", "updated_at"}),
	}).Create(&checkpoint).Error
	if err != nil {
		return fmt.Errorf("failed to update checkpoint: %w", err)
	}
	return nil
}

func (da *DatabaseAdapter) GetCheckpoint(ctx context.Context, process string, chain types.ChainID) (*models.EventCheckPoint, error) {
	var checkpoint models.EventCheckPoint
	err := da.PostgresClient.WithContext(ctx).
		Where("process = ? AND chain_name = ?", process, string(chain)).
		First(&checkpoint).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return &checkpoint, nil
}

func (da *DatabaseAdapter) Close() error {
	sqlDB, err := da.PostgresClient.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
