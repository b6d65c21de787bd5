// Package postgres stores metadata records in PostgreSQL through gorm. The
// data column is jsonb and filters are lowered to jsonb path expressions.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/metadata/domain/repository"
	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

var _ repository.MetadataStore = (*Store)(nil)

// Config holds the connection settings
type Config struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Store implements repository.MetadataStore on PostgreSQL
type Store struct {
	db     *gorm.DB
	logger logger.Logger
	now    func() time.Time
}

// Connect opens the database and migrates the schema
func Connect(ctx context.Context, cfg Config, log logger.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	store := NewStore(db, log)
	if err := store.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return store, nil
}

// NewStore wraps an open gorm handle
func NewStore(db *gorm.DB, log logger.Logger) *Store {
	return &Store{db: db, logger: log.WithComponent("postgres-store"), now: time.Now}
}

// Migrate creates or updates the tables
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(&metadataRow{}, &aliasRow{}, &indexPathRow{})
	return apperrors.WrapStoreError(err, "failed to migrate schema")
}

func notFound(guid string) error {
	return apperrors.NewNotFoundError(fmt.Sprintf("guid %q", guid))
}

func (s *Store) Get(ctx context.Context, guid string) (*model.MetadataRecord, error) {
	var row metadataRow
	err := s.db.WithContext(ctx).First(&row, "guid = ?", guid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(guid)
	}
	if err != nil {
		return nil, apperrors.WrapStoreError(err, "failed to read record")
	}
	rec, err := row.toModel()
	return rec, apperrors.WrapStoreError(err, "failed to decode record")
}

func (s *Store) List(ctx context.Context, q repository.ListQuery) ([]*model.MetadataRecord, error) {
	tx := s.db.WithContext(ctx).Model(&metadataRow{})
	if where, args := buildSQLFilter(q.Filter); where != "" {
		tx = tx.Where(where, args...)
	}
	tx = tx.Order("guid").Offset(q.Offset)
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []metadataRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, apperrors.WrapStoreError(err, "failed to query records")
	}
	out := make([]*model.MetadataRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toModel()
		if err != nil {
			return nil, apperrors.WrapStoreError(err, "failed to decode record")
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, records []*model.MetadataRecord, overwrite bool) error {
	if len(records) == 0 {
		return nil
	}
	now := s.now().UTC()
	rows := make([]metadataRow, 0, len(records))
	for _, rec := range records {
		row, err := toRow(rec)
		if err != nil {
			return apperrors.NewValidationError("record is not serializable").WithCause(err)
		}
		if row.CreatedDate == nil {
			row.CreatedDate = &now
		}
		rows = append(rows, row)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if overwrite {
			tx = tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "guid"}},
				DoUpdates: clause.AssignmentColumns([]string{"data", "authz", "baseid"}),
			})
		}
		return tx.Create(&rows).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.NewConflictError("one or more guids already exist").WithCause(err)
	}
	return apperrors.WrapStoreError(err, "failed to create records")
}

func (s *Store) Update(ctx context.Context, guid string, data map[string]interface{}, merge bool) (*model.MetadataRecord, error) {
	var updated *model.MetadataRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row metadataRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "guid = ?", guid).Error; err != nil {
			return err
		}
		rec, err := row.toModel()
		if err != nil {
			return err
		}
		if merge {
			rec.Data = model.ShallowMerge(rec.Data, data)
		} else if data != nil {
			rec.Data = data
		} else {
			rec.Data = map[string]interface{}{}
		}
		raw, err := json.Marshal(rec.Data)
		if err != nil {
			return apperrors.NewValidationError("data is not serializable").WithCause(err)
		}
		if err := tx.Model(&metadataRow{}).Where("guid = ?", guid).Update("data", datatypes.JSON(raw)).Error; err != nil {
			return err
		}
		updated = rec
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(guid)
	}
	if err != nil {
		return nil, apperrors.WrapStoreError(err, "failed to update record")
	}
	return updated, nil
}

func (s *Store) Delete(ctx context.Context, guid string) (*model.MetadataRecord, error) {
	var deleted metadataRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&deleted, "guid = ?", guid).Error; err != nil {
			return err
		}
		if err := tx.Where("guid = ?", guid).Delete(&aliasRow{}).Error; err != nil {
			return err
		}
		return tx.Where("guid = ?", guid).Delete(&metadataRow{}).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(guid)
	}
	if err != nil {
		return nil, apperrors.WrapStoreError(err, "failed to delete record")
	}
	rec, err := deleted.toModel()
	return rec, apperrors.WrapStoreError(err, "failed to decode record")
}

func requireRecord(tx *gorm.DB, guid string) error {
	var n int64
	if err := tx.Model(&metadataRow{}).Where("guid = ?", guid).Count(&n).Error; err != nil {
		return apperrors.WrapStoreError(err, "failed to look up record")
	}
	if n == 0 {
		return notFound(guid)
	}
	return nil
}

func aliasRows(guid string, aliases []string) []aliasRow {
	rows := make([]aliasRow, 0, len(aliases))
	for _, a := range aliases {
		rows = append(rows, aliasRow{Alias: a, GUID: guid})
	}
	return rows
}

func (s *Store) GetAlias(ctx context.Context, alias string) (string, error) {
	var row aliasRow
	err := s.db.WithContext(ctx).Omit(clause.Associations).First(&row, "alias = ?", alias).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperrors.NewNotFoundError(fmt.Sprintf("alias %q", alias))
	}
	if err != nil {
		return "", apperrors.WrapStoreError(err, "failed to read alias")
	}
	return row.GUID, nil
}

func (s *Store) ListAliases(ctx context.Context, guid string) ([]string, error) {
	db := s.db.WithContext(ctx)
	if err := requireRecord(db, guid); err != nil {
		return nil, err
	}
	var out []string
	err := db.Model(&aliasRow{}).Where("guid = ?", guid).Order("alias").Pluck("alias", &out).Error
	if err != nil {
		return nil, apperrors.WrapStoreError(err, "failed to list aliases")
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (s *Store) CreateAliases(ctx context.Context, guid string, aliases []string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRecord(tx, guid); err != nil {
			return err
		}
		if len(aliases) == 0 {
			return nil
		}
		rows := aliasRows(guid, aliases)
		return tx.Omit(clause.Associations).Create(&rows).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.NewConflictError("one or more aliases already exist").WithCause(err)
	}
	return apperrors.WrapStoreError(err, "failed to create aliases")
}

func (s *Store) ReplaceAliases(ctx context.Context, guid string, aliases []string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRecord(tx, guid); err != nil {
			return err
		}
		if len(aliases) > 0 {
			var taken int64
			err := tx.Model(&aliasRow{}).Where("alias IN ? AND guid <> ?", aliases, guid).Count(&taken).Error
			if err != nil {
				return err
			}
			if taken > 0 {
				return apperrors.NewConflictError("one or more aliases belong to another guid")
			}
		}
		if err := tx.Where("guid = ?", guid).Delete(&aliasRow{}).Error; err != nil {
			return err
		}
		if len(aliases) == 0 {
			return nil
		}
		rows := aliasRows(guid, aliases)
		return tx.Omit(clause.Associations).Create(&rows).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.NewConflictError("one or more aliases already exist").WithCause(err)
	}
	return apperrors.WrapStoreError(err, "failed to replace aliases")
}

func (s *Store) DeleteAlias(ctx context.Context, guid, alias string) error {
	res := s.db.WithContext(ctx).Where("alias = ? AND guid = ?", alias, guid).Delete(&aliasRow{})
	if res.Error != nil {
		return apperrors.WrapStoreError(res.Error, "failed to delete alias")
	}
	if res.RowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("alias %q for guid %q", alias, guid))
	}
	return nil
}

func (s *Store) DeleteAliases(ctx context.Context, guid string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRecord(tx, guid); err != nil {
			return err
		}
		return tx.Where("guid = ?", guid).Delete(&aliasRow{}).Error
	})
	return apperrors.WrapStoreError(err, "failed to delete aliases")
}

// IndexName is the database index backing a registered path
func IndexName(path string) string {
	return "path_idx_" + path
}

func (s *Store) ListIndexPaths(ctx context.Context) ([]string, error) {
	var out []string
	err := s.db.WithContext(ctx).Model(&indexPathRow{}).Order("path").Pluck("path", &out).Error
	if err != nil {
		return nil, apperrors.WrapStoreError(err, "failed to list index paths")
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (s *Store) CreateIndexPath(ctx context.Context, path string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&indexPathRow{Path: path, CreatedAt: s.now().UTC()}).Error; err != nil {
			return err
		}
		return tx.Exec(createIndexSQL(path)).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.NewConflictError(fmt.Sprintf("index path %q already exists", path)).WithCause(err)
	}
	if err == nil {
		s.logger.Info("created index", "path", path, "index", IndexName(path))
	}
	return apperrors.WrapStoreError(err, "failed to create index")
}

func (s *Store) DeleteIndexPath(ctx context.Context, path string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("path = ?", path).Delete(&indexPathRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.NewNotFoundError(fmt.Sprintf("index path %q", path))
		}
		return tx.Exec(dropIndexSQL(path)).Error
	})
	return apperrors.WrapStoreError(err, "failed to delete index")
}

func createIndexSQL(path string) string {
	return fmt.Sprintf(`CREATE INDEX IF NOT EXISTS "%s" ON metadata ((data #>> %s))`,
		IndexName(path), jsonPathLiteral(path))
}

func dropIndexSQL(path string) string {
	return fmt.Sprintf(`DROP INDEX IF EXISTS "%s"`, IndexName(path))
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
