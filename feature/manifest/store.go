package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"catalog-sync/core/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// chunkSize is the derived-view page size.
const chunkSize = 500

// errStaleRebuild aborts a chunk rebuild whose index moved on in the
// meantime; the rollback discards the stale result.
var errStaleRebuild = errors.New("index advanced during rebuild")

// IndexEntry is one persisted manifest record.
type IndexEntry struct {
	ID uint `gorm:"primaryKey"`
	// Kind and PathKey identify an entry; PathKey is the lowercased path.
	Kind    string `gorm:"size:16;uniqueIndex:idx_entry_kind_path,priority:1"`
	PathKey string `gorm:"size:512;uniqueIndex:idx_entry_kind_path,priority:2"`
	Path    string `gorm:"size:512"`
	// Payload is the raw cloud-schema record.
	Payload   []byte
	UpdatedAt time.Time
}

// IndexMeta is the durable per-kind state record. ChunksLatest and
// ChunksBuiltAt mark the derived re-sorted representation, which may lag
// the primary index.
type IndexMeta struct {
	Kind          string `gorm:"primaryKey;size:16"`
	Latest        string `gorm:"size:128"`
	Count         int64
	BuiltAt       time.Time
	ChunksLatest  string `gorm:"size:128"`
	ChunksBuiltAt time.Time
}

// TableName names the table explicitly; "meta" has no plural form.
func (IndexMeta) TableName() string {
	return "index_meta"
}

// IndexChunk is one page of the derived, re-sorted view.
type IndexChunk struct {
	ID      uint   `gorm:"primaryKey"`
	Kind    string `gorm:"size:16;index:idx_chunk_kind_seq,priority:1"`
	Seq     int    `gorm:"index:idx_chunk_kind_seq,priority:2"`
	Payload []byte
}

// Store owns the persisted index. Only the sync engine mutates it.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore migrates the index schema and returns the store.
func NewStore(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if err := db.AutoMigrate(&IndexEntry{}, &IndexMeta{}, &IndexChunk{}); err != nil {
		return nil, fmt.Errorf("migrate index schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Meta reads the per-kind metadata. A kind never synced yields a zero meta.
func (s *Store) Meta(ctx context.Context, kind model.Kind) (IndexMeta, error) {
	var meta IndexMeta
	err := s.db.WithContext(ctx).First(&meta, "kind = ?", string(kind)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return IndexMeta{Kind: string(kind)}, nil
	}
	if err != nil {
		return IndexMeta{}, fmt.Errorf("read index meta: %w", err)
	}
	return meta, nil
}

// WriteMeta stores the per-kind metadata record.
func (s *Store) WriteMeta(ctx context.Context, meta IndexMeta) error {
	if err := s.db.WithContext(ctx).Save(&meta).Error; err != nil {
		return fmt.Errorf("write index meta: %w", err)
	}
	return nil
}

// ReplaceAll swaps the entire index for kind in one transaction, so readers
// see either the old complete index or the new one. Progress is reported
// once per batch of progressBatch entries.
func (s *Store) ReplaceAll(ctx context.Context, kind model.Kind, records []json.RawMessage, progressBatch int, onProgress func(done, total int)) error {
	if progressBatch <= 0 {
		progressBatch = chunkSize
	}

	entries := make([]IndexEntry, 0, len(records))
	for _, raw := range records {
		entry, err := entryFromRaw(kind, raw)
		if err != nil {
			// A record without a usable path cannot be indexed.
			s.logger.Warn("Skipping malformed manifest record", zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}

	total := len(entries)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("kind = ?", string(kind)).Delete(&IndexEntry{}).Error; err != nil {
			return err
		}
		for start := 0; start < total; start += progressBatch {
			end := start + progressBatch
			if end > total {
				end = total
			}
			if err := tx.Create(entries[start:end]).Error; err != nil {
				return err
			}
			if onProgress != nil {
				onProgress(end, total)
			}
		}
		return s.rebuildChunksTx(tx, kind)
	})
	if err != nil {
		return fmt.Errorf("replace index for %s: %w", kind, err)
	}
	return nil
}

// ApplyDelta applies one operation record to the index.
func (s *Store) ApplyDelta(ctx context.Context, kind model.Kind, op DeltaOp) error {
	key := strings.ToLower(strings.TrimSpace(op.Path))
	if key == "" {
		return fmt.Errorf("%w: delta op missing path", ErrUnexpectedResponse)
	}

	db := s.db.WithContext(ctx)
	switch op.Op {
	case OpPut:
		entry := IndexEntry{
			Kind:    string(kind),
			PathKey: key,
			Path:    op.Path,
			Payload: op.Record,
		}
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "kind"}, {Name: "path_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"path", "payload", "updated_at"}),
		}).Create(&entry).Error
		if err != nil {
			return fmt.Errorf("apply put %q: %w", op.Path, err)
		}
		return nil
	case OpDelete:
		if err := db.Where("kind = ? AND path_key = ?", string(kind), key).Delete(&IndexEntry{}).Error; err != nil {
			return fmt.Errorf("apply delete %q: %w", op.Path, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown delta op %q", ErrUnexpectedResponse, op.Op)
	}
}

// Count returns the number of entries persisted for kind.
func (s *Store) Count(ctx context.Context, kind model.Kind) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&IndexEntry{}).Where("kind = ?", string(kind)).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count index entries: %w", err)
	}
	return count, nil
}

// Records decodes the persisted entries for kind into canonical records.
// Undecodable entries are skipped, not fatal.
func (s *Store) Records(ctx context.Context, kind model.Kind) ([]model.InventoryRecord, error) {
	var entries []IndexEntry
	if err := s.db.WithContext(ctx).Where("kind = ?", string(kind)).Order("path_key").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("read index entries: %w", err)
	}

	records := make([]model.InventoryRecord, 0, len(entries))
	for _, entry := range entries {
		var cloud CloudRecord
		if err := json.Unmarshal(entry.Payload, &cloud); err != nil {
			s.logger.Warn("Skipping undecodable index entry",
				zap.String("path", entry.Path), zap.Error(err))
			continue
		}
		if cloud.Path == "" {
			cloud.Path = entry.Path
		}
		r, err := cloud.ToInventoryRecord(kind)
		if err != nil {
			s.logger.Warn("Skipping invalid index entry",
				zap.String("path", entry.Path), zap.Error(err))
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

// RebuildChunks regenerates the derived sorted view for kind, tied to the
// hash the rebuild was scheduled for. If the index has moved on by commit
// time the result is discarded.
func (s *Store) RebuildChunks(ctx context.Context, kind model.Kind, latest string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var meta IndexMeta
		if err := tx.First(&meta, "kind = ?", string(kind)).Error; err != nil {
			return err
		}
		if meta.Latest != latest {
			return errStaleRebuild
		}
		if err := s.rebuildChunksTx(tx, kind); err != nil {
			return err
		}
		meta.ChunksLatest = latest
		meta.ChunksBuiltAt = time.Now()
		return tx.Save(&meta).Error
	})
	if errors.Is(err, errStaleRebuild) {
		s.logger.Debug("Discarding stale chunk rebuild",
			zap.String("kind", string(kind)), zap.String("latest", latest))
		return nil
	}
	if err != nil {
		return fmt.Errorf("rebuild chunks for %s: %w", kind, err)
	}
	return nil
}

// rebuildChunksTx rewrites the chunk rows from the current entries, sorted
// by path key, inside the caller's transaction.
func (s *Store) rebuildChunksTx(tx *gorm.DB, kind model.Kind) error {
	if err := tx.Where("kind = ?", string(kind)).Delete(&IndexChunk{}).Error; err != nil {
		return err
	}

	var entries []IndexEntry
	if err := tx.Where("kind = ?", string(kind)).Order("path_key").Find(&entries).Error; err != nil {
		return err
	}

	seq := 0
	for start := 0; start < len(entries); start += chunkSize {
		end := start + chunkSize
		if end > len(entries) {
			end = len(entries)
		}
		page := make([]json.RawMessage, 0, end-start)
		for _, e := range entries[start:end] {
			page = append(page, e.Payload)
		}
		payload, err := json.Marshal(page)
		if err != nil {
			return err
		}
		if err := tx.Create(&IndexChunk{Kind: string(kind), Seq: seq, Payload: payload}).Error; err != nil {
			return err
		}
		seq++
	}
	return nil
}

func entryFromRaw(kind model.Kind, raw json.RawMessage) (IndexEntry, error) {
	var cloud CloudRecord
	if err := json.Unmarshal(raw, &cloud); err != nil {
		return IndexEntry{}, fmt.Errorf("decode record: %w", err)
	}
	path := strings.TrimSpace(cloud.Path)
	if path == "" {
		return IndexEntry{}, fmt.Errorf("record missing path")
	}
	return IndexEntry{
		Kind:    string(kind),
		PathKey: strings.ToLower(path),
		Path:    path,
		Payload: raw,
	}, nil
}
