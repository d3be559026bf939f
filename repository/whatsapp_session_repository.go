package repository

import (
	"context"
	"fmt"

	"github.com/zapsender/zapsender-backend/models"
	"gorm.io/gorm"
)

// WhatsAppSessionRepositoryImpl implements the WhatsAppSessionRepository interface
type WhatsAppSessionRepositoryImpl struct {
	*BaseRepository[models.WhatsAppSession, models.WhatsAppSessionFilter]
}

// NewWhatsAppSessionRepository creates a new session repository
func NewWhatsAppSessionRepository(db *gorm.DB) WhatsAppSessionRepository {
	return &WhatsAppSessionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.WhatsAppSession, models.WhatsAppSessionFilter](db),
	}
}

// ByName retrieves a session by tenant and name
func (r *WhatsAppSessionRepositoryImpl) ByName(ctx context.Context, companyID uint, sessionName string) (*models.WhatsAppSession, error) {
	filter := models.WhatsAppSessionFilter{CompanyID: &companyID, SessionName: &sessionName}
	sessions, err := r.ByFilter(ctx, filter, "", 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find session by name: %w", err)
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return sessions[0], nil
}

// ListByNames retrieves the tenant's sessions matching the given names,
// preserving no particular order
func (r *WhatsAppSessionRepositoryImpl) ListByNames(ctx context.Context, companyID uint, names []string) ([]*models.WhatsAppSession, error) {
	if len(names) == 0 {
		return nil, nil
	}
	filter := models.WhatsAppSessionFilter{CompanyID: &companyID, NameIn: names}
	return r.ByFilter(ctx, filter, "id ASC", 0, 0)
}

// ByFilter retrieves sessions based on filter criteria
func (r *WhatsAppSessionRepositoryImpl) ByFilter(ctx context.Context, filter models.WhatsAppSessionFilter, orderBy string, limit, offset int) ([]*models.WhatsAppSession, error) {
	db := r.getDB(ctx)

	var sessions []*models.WhatsAppSession
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

	err := query.Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find sessions by filter: %w", err)
	}

	return sessions, nil
}

// Count returns the number of sessions matching the filter
func (r *WhatsAppSessionRepositoryImpl) Count(ctx context.Context, filter models.WhatsAppSessionFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.WhatsAppSession{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	return count, nil
}

// Exists checks if any session matching the filter exists
func (r *WhatsAppSessionRepositoryImpl) Exists(ctx context.Context, filter models.WhatsAppSessionFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *WhatsAppSessionRepositoryImpl) applyFilter(db *gorm.DB, filter models.WhatsAppSessionFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.CompanyID != nil {
		db = db.Where("company_id = ?", *filter.CompanyID)
	}
	if filter.SessionName != nil {
		db = db.Where("session_name = ?", *filter.SessionName)
	}
	if len(filter.NameIn) > 0 {
		db = db.Where("session_name IN ?", filter.NameIn)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}

	return db
}
