package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/zapsender/zapsender-backend/models"
	"github.com/zapsender/zapsender-backend/utils"
	"gorm.io/gorm"
)

// ScheduleRepositoryImpl implements the ScheduleRepository interface
type ScheduleRepositoryImpl struct {
	*BaseRepository[models.Schedule, models.ScheduleFilter]
}

// NewScheduleRepository creates a new schedule repository
func NewScheduleRepository(db *gorm.DB) ScheduleRepository {
	return &ScheduleRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Schedule, models.ScheduleFilter](db),
	}
}

// ByUUID retrieves a schedule by UUID
func (r *ScheduleRepositoryImpl) ByUUID(ctx context.Context, uuidStr string) (*models.Schedule, error) {
	parsedUUID, err := utils.ParseUUID(uuidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID format: %w", err)
	}

	filter := models.ScheduleFilter{UUID: &parsedUUID}
	schedules, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find schedule by UUID: %w", err)
	}

	if len(schedules) == 0 {
		return nil, nil
	}

	return schedules[0], nil
}

// ByCompanyID retrieves schedules for a tenant with pagination
func (r *ScheduleRepositoryImpl) ByCompanyID(ctx context.Context, companyID uint, limit, offset int) ([]*models.Schedule, error) {
	filter := models.ScheduleFilter{CompanyID: &companyID}
	return r.ByFilter(ctx, filter, "created_at DESC", limit, offset)
}

// UpdateStatus updates only the status of a schedule
func (r *ScheduleRepositoryImpl) UpdateStatus(ctx context.Context, id uint, status models.ScheduleStatus) error {
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

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": now,
	}
	switch status {
	case models.ScheduleStatusProcessing:
		updates["started_at"] = now
	case models.ScheduleStatusCompleted, models.ScheduleStatusFailed:
		updates["completed_at"] = now
	case models.ScheduleStatusCancelled:
		updates["cancelled_at"] = now
	}

	err = db.Model(&models.Schedule{}).
		Where("id = ?", id).
		Updates(updates).Error

	if err != nil {
		return fmt.Errorf("failed to update schedule status: %w", err)
	}

	return nil
}

// IncrementCounters atomically bumps the sent/failed aggregates of a schedule
func (r *ScheduleRepositoryImpl) IncrementCounters(ctx context.Context, id uint, sentDelta, failedDelta int) error {
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

	err = db.Model(&models.Schedule{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sent_count":   gorm.Expr("sent_count + ?", sentDelta),
			"failed_count": gorm.Expr("failed_count + ?", failedDelta),
			"updated_at":   time.Now().UTC(),
		}).Error

	if err != nil {
		return fmt.Errorf("failed to increment schedule counters: %w", err)
	}

	return nil
}

// ByFilter retrieves schedules based on filter criteria
func (r *ScheduleRepositoryImpl) ByFilter(ctx context.Context, filter models.ScheduleFilter, orderBy string, limit, offset int) ([]*models.Schedule, error) {
	db := r.getDB(ctx)

	var schedules []*models.Schedule
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

	err := query.Find(&schedules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find schedules by filter: %w", err)
	}

	return schedules, nil
}

// Count returns the number of schedules matching the filter
func (r *ScheduleRepositoryImpl) Count(ctx context.Context, filter models.ScheduleFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.Schedule{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count schedules: %w", err)
	}

	return count, nil
}

// Exists checks if any schedule matching the filter exists
func (r *ScheduleRepositoryImpl) Exists(ctx context.Context, filter models.ScheduleFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *ScheduleRepositoryImpl) applyFilter(db *gorm.DB, filter models.ScheduleFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.CompanyID != nil {
		db = db.Where("company_id = ?", *filter.CompanyID)
	}
	if filter.UserID != nil {
		db = db.Where("user_id = ?", *filter.UserID)
	}
	if filter.Type != nil {
		db = db.Where("type = ?", *filter.Type)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.IsDynamic != nil {
		db = db.Where("is_dynamic_campaign = ?", *filter.IsDynamic)
	}
	if filter.RunAfter != nil {
		db = db.Where("run_at >= ?", *filter.RunAfter)
	}
	if filter.RunBefore != nil {
		db = db.Where("run_at <= ?", *filter.RunBefore)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at <= ?", *filter.CreatedBefore)
	}

	return db
}
