package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/zapsender/zapsender-backend/models"
	"gorm.io/gorm"
)

// MessageRepositoryImpl implements the MessageRepository interface
type MessageRepositoryImpl struct {
	*BaseRepository[models.Message, models.MessageFilter]
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &MessageRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Message, models.MessageFilter](db),
	}
}

// ByCompanyAndJobID retrieves the message correlated with an external scheduler job.
// The (company_id, scheduler_job_id) pair is unique, so at most one row matches.
func (r *MessageRepositoryImpl) ByCompanyAndJobID(ctx context.Context, companyID uint, jobID string) (*models.Message, error) {
	if jobID == "" {
		return nil, nil
	}
	filter := models.MessageFilter{CompanyID: &companyID, SchedulerJobID: &jobID}
	messages, err := r.ByFilter(ctx, filter, "", 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find message by scheduler job ID: %w", err)
	}
	if len(messages) == 0 {
		return nil, nil
	}
	return messages[0], nil
}

// ListBySchedule retrieves messages under a schedule, optionally restricted to statuses
func (r *MessageRepositoryImpl) ListBySchedule(ctx context.Context, scheduleID uint, statuses []models.MessageStatus) ([]*models.Message, error) {
	filter := models.MessageFilter{ScheduleID: &scheduleID, StatusIn: statuses}
	return r.ByFilter(ctx, filter, "id ASC", 0, 0)
}

// ListByBatch retrieves messages under a batch, optionally restricted to statuses
func (r *MessageRepositoryImpl) ListByBatch(ctx context.Context, batchID uint, statuses []models.MessageStatus) ([]*models.Message, error) {
	filter := models.MessageFilter{BatchID: &batchID, StatusIn: statuses}
	return r.ByFilter(ctx, filter, "id ASC", 0, 0)
}

// UpdateStatusByIDs sets the status of the given messages and returns the number updated
func (r *MessageRepositoryImpl) UpdateStatusByIDs(ctx context.Context, ids []uint, status models.MessageStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return 0, err
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

	res := db.Model(&models.Message{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		err = res.Error
		return 0, fmt.Errorf("failed to update message statuses: %w", res.Error)
	}

	return res.RowsAffected, nil
}

// DeleteByIDs hard-deletes the given message rows and returns the number removed.
// Used only for never-approved pre-materialized work; delivery history is kept
// everywhere else via status transitions.
func (r *MessageRepositoryImpl) DeleteByIDs(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return 0, err
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

	res := db.Where("id IN ?", ids).Delete(&models.Message{})
	if res.Error != nil {
		err = res.Error
		return 0, fmt.Errorf("failed to delete messages: %w", res.Error)
	}

	return res.RowsAffected, nil
}

// ListOrphanedPending retrieves pending messages older than the given time that
// never received an external scheduler job ID
func (r *MessageRepositoryImpl) ListOrphanedPending(ctx context.Context, olderThan time.Time, limit int) ([]*models.Message, error) {
	db := r.getDB(ctx)

	var messages []*models.Message
	query := db.Where("status = ?", models.MessageStatusPending).
		Where("scheduler_job_id IS NULL").
		Where("created_at < ?", olderThan).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list orphaned pending messages: %w", err)
	}

	return messages, nil
}

// ByFilter retrieves messages based on filter criteria
func (r *MessageRepositoryImpl) ByFilter(ctx context.Context, filter models.MessageFilter, orderBy string, limit, offset int) ([]*models.Message, error) {
	db := r.getDB(ctx)

	var messages []*models.Message
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

	err := query.Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find messages by filter: %w", err)
	}

	return messages, nil
}

// Count returns the number of messages matching the filter
func (r *MessageRepositoryImpl) Count(ctx context.Context, filter models.MessageFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.Message{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}

	return count, nil
}

// Exists checks if any message matching the filter exists
func (r *MessageRepositoryImpl) Exists(ctx context.Context, filter models.MessageFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *MessageRepositoryImpl) applyFilter(db *gorm.DB, filter models.MessageFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.CompanyID != nil {
		db = db.Where("company_id = ?", *filter.CompanyID)
	}
	if filter.ScheduleID != nil {
		db = db.Where("schedule_id = ?", *filter.ScheduleID)
	}
	if filter.BatchID != nil {
		db = db.Where("batch_id = ?", *filter.BatchID)
	}
	if filter.ContactID != nil {
		db = db.Where("contact_id = ?", *filter.ContactID)
	}
	if filter.SessionName != nil {
		db = db.Where("session_name = ?", *filter.SessionName)
	}
	if filter.ChatID != nil {
		db = db.Where("chat_id = ?", *filter.ChatID)
	}
	if filter.Direction != nil {
		db = db.Where("direction = ?", *filter.Direction)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if len(filter.StatusIn) > 0 {
		db = db.Where("status IN ?", filter.StatusIn)
	}
	if filter.SchedulerJobID != nil {
		db = db.Where("scheduler_job_id = ?", *filter.SchedulerJobID)
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
