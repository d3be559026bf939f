package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/zapsender/zapsender-backend/models"
	"gorm.io/gorm"
)

// BatchScheduleRepositoryImpl implements the BatchScheduleRepository interface
type BatchScheduleRepositoryImpl struct {
	*BaseRepository[models.BatchSchedule, models.BatchScheduleFilter]
}

// NewBatchScheduleRepository creates a new batch schedule repository
func NewBatchScheduleRepository(db *gorm.DB) BatchScheduleRepository {
	return &BatchScheduleRepositoryImpl{
		BaseRepository: NewBaseRepository[models.BatchSchedule, models.BatchScheduleFilter](db),
	}
}

// ListBySchedule retrieves every batch under a schedule in batch order
func (r *BatchScheduleRepositoryImpl) ListBySchedule(ctx context.Context, scheduleID uint) ([]*models.BatchSchedule, error) {
	filter := models.BatchScheduleFilter{ScheduleID: &scheduleID}
	return r.ByFilter(ctx, filter, "batch_number ASC", 0, 0)
}

// UpdateStatus updates only the status of a batch schedule
func (r *BatchScheduleRepositoryImpl) UpdateStatus(ctx context.Context, id uint, status models.BatchStatus) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Model(&models.BatchSchedule{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error

	if err != nil {
		return fmt.Errorf("failed to update batch schedule status: %w", err)
	}

	return nil
}

// ByFilter retrieves batch schedules based on filter criteria
func (r *BatchScheduleRepositoryImpl) ByFilter(ctx context.Context, filter models.BatchScheduleFilter, orderBy string, limit, offset int) ([]*models.BatchSchedule, error) {
	db := r.getDB(ctx)

	var batches []*models.BatchSchedule
	query := r.applyFilter(db, filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&batches).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find batch schedules by filter: %w", err)
	}

	return batches, nil
}

// Count returns the number of batch schedules matching the filter
func (r *BatchScheduleRepositoryImpl) Count(ctx context.Context, filter models.BatchScheduleFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.BatchSchedule{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count batch schedules: %w", err)
	}

	return count, nil
}

// Exists checks if any batch schedule matching the filter exists
func (r *BatchScheduleRepositoryImpl) Exists(ctx context.Context, filter models.BatchScheduleFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *BatchScheduleRepositoryImpl) applyFilter(db *gorm.DB, filter models.BatchScheduleFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.ScheduleID != nil {
		db = db.Where("schedule_id = ?", *filter.ScheduleID)
	}
	if filter.CompanyID != nil {
		db = db.Where("company_id = ?", *filter.CompanyID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.IsDynamic != nil {
		db = db.Where("is_dynamic = ?", *filter.IsDynamic)
	}
	if filter.RunAfter != nil {
		db = db.Where("run_at >= ?", *filter.RunAfter)
	}
	if filter.RunBefore != nil {
		db = db.Where("run_at <= ?", *filter.RunBefore)
	}

	return db
}
