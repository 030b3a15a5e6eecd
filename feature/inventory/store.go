package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"catalog-sync/core/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FolderIndex persists the records discovered in one scanned folder so later
// collections can serve them without re-walking the tree.
type FolderIndex struct {
	Folder  string `gorm:"primaryKey;size:512"`
	Payload string `gorm:"type:text"`
	BuiltAt time.Time
}

// TableName keeps the table in the catalog namespace.
func (FolderIndex) TableName() string {
	return "catalog_folder_index"
}

// Store reads and writes persisted folder indexes.
type Store struct {
	db *gorm.DB
}

// NewStore migrates the folder index table and returns a store.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&FolderIndex{}); err != nil {
		return nil, fmt.Errorf("migrate folder index: %w", err)
	}
	return &Store{db: db}, nil
}

func folderKey(folder string) string {
	return strings.ToLower(strings.TrimSpace(folder))
}

// LoadFolder returns the persisted records for folder, or (nil, nil) when no
// index exists yet.
func (s *Store) LoadFolder(ctx context.Context, folder string) ([]model.InventoryRecord, error) {
	var row FolderIndex
	err := s.db.WithContext(ctx).First(&row, "folder = ?", folderKey(folder)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load folder index %q: %w", folder, err)
	}
	var records []model.InventoryRecord
	if err := json.Unmarshal([]byte(row.Payload), &records); err != nil {
		return nil, fmt.Errorf("decode folder index %q: %w", folder, err)
	}
	return records, nil
}

// SaveFolder replaces the persisted index for folder.
func (s *Store) SaveFolder(ctx context.Context, folder string, records []model.InventoryRecord) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode folder index %q: %w", folder, err)
	}
	row := FolderIndex{
		Folder:  folderKey(folder),
		Payload: string(payload),
		BuiltAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "folder"}},
		UpdateAll: true,
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("save folder index %q: %w", folder, err)
	}
	return nil
}

// DeleteFolder drops a persisted index, forcing the next collection to
// stream scan that folder.
func (s *Store) DeleteFolder(ctx context.Context, folder string) error {
	if err := s.db.WithContext(ctx).Delete(&FolderIndex{}, "folder = ?", folderKey(folder)).Error; err != nil {
		return fmt.Errorf("delete folder index %q: %w", folder, err)
	}
	return nil
}
