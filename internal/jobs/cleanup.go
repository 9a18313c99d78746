package jobs

import (
	"log/slog"
	"time"
)

const orphanCleanupBatchSize = 1000

// OrphanScanCleanupJob removes scan records whose QR code no longer exists.
// Foreign keys normally cascade; this catches rows written while they were
// not enforced.
type OrphanScanCleanupJob struct {
	dbManager DBManager
	logger    *slog.Logger
}

func NewOrphanScanCleanupJob(dbManager DBManager, logger *slog.Logger) *OrphanScanCleanupJob {
	return &OrphanScanCleanupJob{dbManager: dbManager, logger: logger}
}

func (j *OrphanScanCleanupJob) Name() string {
	return "orphan_scan_cleanup"
}

// Run deletes orphaned scan records in batches.
func (j *OrphanScanCleanupJob) Run() error {
	db := j.dbManager.GetConnection()

	const orphans = "qr_code_id NOT IN (SELECT id FROM qr_codes)"

	var countToDelete int64
	if err := db.Table("scan_records").Where(orphans).Count(&countToDelete).Error; err != nil {
		j.logger.Error("Failed to count orphaned scan records", slog.Any("error", err))
		return err
	}

	if countToDelete == 0 {
		j.logger.Debug("No orphaned scan records to clean up")
		return nil
	}

	// Delete in batches to avoid locking the database for too long
	totalDeleted := int64(0)
	for {
		result := db.Exec(
			"DELETE FROM scan_records WHERE id IN (SELECT id FROM scan_records WHERE "+orphans+" LIMIT ?)",
			orphanCleanupBatchSize,
		)
		if result.Error != nil {
			j.logger.Error("Failed to delete orphaned scan records",
				slog.Any("error", result.Error),
				slog.Int64("deleted_so_far", totalDeleted))
			return result.Error
		}

		totalDeleted += result.RowsAffected
		if result.RowsAffected < orphanCleanupBatchSize {
			break
		}

		// Small delay between batches to prevent database lock contention
		time.Sleep(100 * time.Millisecond)
	}

	j.logger.Info("Cleaned up orphaned scan records", slog.Int64("deleted_count", totalDeleted))
	return nil
}

// WALCheckpointJob keeps the SQLite write-ahead log from growing unbounded.
type WALCheckpointJob struct {
	dbManager DBManager
	logger    *slog.Logger
}

func NewWALCheckpointJob(dbManager DBManager, logger *slog.Logger) *WALCheckpointJob {
	return &WALCheckpointJob{dbManager: dbManager, logger: logger}
}

func (j *WALCheckpointJob) Name() string {
	return "wal_checkpoint"
}

func (j *WALCheckpointJob) Run() error {
	if err := j.dbManager.CheckpointWAL("PASSIVE"); err != nil {
		return err
	}
	j.logger.Debug("WAL checkpoint completed")
	return nil
}
