package repository

import (
	"context"
	"fmt"

	"github.com/zapsender/zapsender-backend/models"
	"gorm.io/gorm"
)

// MessageTemplateRepositoryImpl implements the MessageTemplateRepository interface
type MessageTemplateRepositoryImpl struct {
	*BaseRepository[models.MessageTemplate, models.MessageTemplateFilter]
}

// NewMessageTemplateRepository creates a new template repository
func NewMessageTemplateRepository(db *gorm.DB) MessageTemplateRepository {
	return &MessageTemplateRepositoryImpl{
		BaseRepository: NewBaseRepository[models.MessageTemplate, models.MessageTemplateFilter](db),
	}
}

// ListByIDs retrieves the tenant's templates matching the given IDs
func (r *MessageTemplateRepositoryImpl) ListByIDs(ctx context.Context, companyID uint, ids []int64) ([]*models.MessageTemplate, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	filter := models.MessageTemplateFilter{CompanyID: &companyID, IDIn: ids}
	return r.ByFilter(ctx, filter, "id ASC", 0, 0)
}

// ByFilter retrieves templates based on filter criteria
func (r *MessageTemplateRepositoryImpl) ByFilter(ctx context.Context, filter models.MessageTemplateFilter, orderBy string, limit, offset int) ([]*models.MessageTemplate, error) {
	db := r.getDB(ctx)

	var templates []*models.MessageTemplate
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

	err := query.Find(&templates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find templates by filter: %w", err)
	}

	return templates, nil
}

// Count returns the number of templates matching the filter
func (r *MessageTemplateRepositoryImpl) Count(ctx context.Context, filter models.MessageTemplateFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.MessageTemplate{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count templates: %w", err)
	}

	return count, nil
}

// Exists checks if any template matching the filter exists
func (r *MessageTemplateRepositoryImpl) Exists(ctx context.Context, filter models.MessageTemplateFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *MessageTemplateRepositoryImpl) applyFilter(db *gorm.DB, filter models.MessageTemplateFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.CompanyID != nil {
		db = db.Where("company_id = ?", *filter.CompanyID)
	}
	if len(filter.IDIn) > 0 {
		db = db.Where("id IN ?", filter.IDIn)
	}
	if filter.IsActive != nil {
		db = db.Where("is_active = ?", *filter.IsActive)
	}

	return db
}
