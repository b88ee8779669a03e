package domain

import (
	"time"

	"gorm.io/gorm"
)

// JSONB carries free-form event payloads from the harness.
type JSONB map[string]interface{}

// ==================== ENTITIES ====================

// KV namespaces group keys written by the console.
const (
	KVNamespaceDefault = "default"
	KVNamespacePPT     = "ppt"
	KVNamespaceTasks   = "tasks"
)

// KVEntry is one row of the key-value table that stands in for browser storage.
type KVEntry struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Key       string `gorm:"size:255;uniqueIndex;not null" json:"key"`
	Value     string `gorm:"type:text" json:"value"`
	Namespace string `gorm:"size:100;index;default:'default'" json:"namespace"`
}

func (KVEntry) TableName() string {
	return "kv_entries"
}
