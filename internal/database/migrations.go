package database

import (
	"fmt"
	"log"

	"gorm.io/gorm"
)

type index struct {
	table   string
	name    string
	columns string
}

// Composite indexes backing the offline reads and the ordered outbox drain.
var indexes = []index{
	{"cached_tasks", "idx_cached_tasks_creator_updated", "created_by, updated_at"},
	{"cached_tasks", "idx_cached_tasks_family_updated", "family_id, updated_at"},
	{"pending_operations", "idx_pending_operations_status_seq", "status, seq"},
	{"history_items", "idx_history_items_family_timestamp", "family_id, timestamp"},
	{"family_members", "idx_family_members_user_id", "user_id"},
}

// AddIndexes creates the composite indexes that are missing. It is safe to run repeatedly.
func AddIndexes(db *gorm.DB) error {
	migrator := db.Migrator()
	for _, idx := range indexes {
		if migrator.HasIndex(idx.table, idx.name) {
			continue
		}

		sql := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.name, idx.table, idx.columns)
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
		log.Printf("Created index %s on %s(%s)", idx.name, idx.table, idx.columns)
	}
	return nil
}
