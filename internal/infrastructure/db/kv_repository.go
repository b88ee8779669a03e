package db

import (
	"context"
	"errors"
	"strings"

	"github.com/cklxx/NanoBee/internal/core/ports"
	"github.com/cklxx/NanoBee/internal/domain"
	"github.com/cklxx/NanoBee/internal/infrastructure/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type kvRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKVRepository(db *gorm.DB, log *logger.Logger) ports.KVStore {
	return &kvRepository{db: db, log: log}
}

func (r *kvRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var entry domain.KVEntry
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		r.log.Errorw("kv_repo_get_failed", "key", key, "error", err)
		return "", false, err
	}
	return entry.Value, true, nil
}

// Set upserts by key. A soft-deleted row with the same key is revived.
func (r *kvRepository) Set(ctx context.Context, key, value string) error {
	entry := domain.KVEntry{Key: key, Value: value, Namespace: namespaceOf(key)}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "namespace", "updated_at", "deleted_at"}),
	}).Create(&entry).Error
	if err != nil {
		r.log.Errorw("kv_repo_set_failed", "key", key, "error", err)
		return err
	}
	r.log.Debugw("kv_repo_set_ok", "key", key, "bytes", len(value))
	return nil
}

func (r *kvRepository) Delete(ctx context.Context, key string) error {
	if err := r.db.WithContext(ctx).Where("key = ?", key).Delete(&domain.KVEntry{}).Error; err != nil {
		r.log.Errorw("kv_repo_delete_failed", "key", key, "error", err)
		return err
	}
	r.log.Debugw("kv_repo_delete_ok", "key", key)
	return nil
}

// namespaceOf files console keys under the area that owns them.
func namespaceOf(key string) string {
	switch {
	case strings.HasPrefix(key, "nanobee_ppt_"):
		return domain.KVNamespacePPT
	case strings.HasPrefix(key, "nanobee_tasks"):
		return domain.KVNamespaceTasks
	default:
		return domain.KVNamespaceDefault
	}
}
