package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/zapsender/zapsender-backend/models"
	"gorm.io/gorm"
)

// ContactRepositoryImpl implements the ContactRepository interface
type ContactRepositoryImpl struct {
	*BaseRepository[models.Contact, models.ContactFilter]
}

// NewContactRepository creates a new contact repository
func NewContactRepository(db *gorm.DB) ContactRepository {
	return &ContactRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Contact, models.ContactFilter](db),
	}
}

// ByPhoneVariations finds a contact whose primary phone or any alternate
// identifier matches one of the given identifiers. The identifiers slice is
// expected to already contain the full Brazilian variation set. Non-deleted
// matches are preferred; a soft-deleted match is returned only when
// includeDeleted is set, so the caller can resurrect it.
func (r *ContactRepositoryImpl) ByPhoneVariations(ctx context.Context, companyID uint, identifiers []string, includeDeleted bool) (*models.Contact, error) {
	if len(identifiers) == 0 {
		return nil, nil
	}

	db := r.getDB(ctx)

	// Primary phone OR any phones[] jsonb entry matching one of the identifiers
	match := db.Where("phone IN ?", identifiers)
	for _, id := range identifiers {
		entry, err := json.Marshal([]map[string]string{{"phone": id}})
		if err != nil {
			continue
		}
		match = match.Or("phones @> ?", string(entry))
	}

	query := db.Where("company_id = ?", companyID).Where(match)
	if !includeDeleted {
		query = query.Where("deleted_at IS NULL")
	}

	var contacts []*models.Contact
	// Active rows first so a live contact always wins over a soft-deleted one
	err := query.Order("(deleted_at IS NULL) DESC, id ASC").Limit(1).Find(&contacts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find contact by phone variations: %w", err)
	}
	if len(contacts) == 0 {
		return nil, nil
	}

	return contacts[0], nil
}

// ListByDynamicFilter evaluates a dynamic campaign filter against current contacts
func (r *ContactRepositoryImpl) ListByDynamicFilter(ctx context.Context, companyID uint, filter models.DynamicFilter, limit int) ([]*models.Contact, error) {
	db := r.getDB(ctx)

	query := db.Where("company_id = ?", companyID).Where("deleted_at IS NULL")

	if len(filter.Tags) > 0 {
		query = query.Where("tags && ?", pq.StringArray(filter.Tags))
	}
	if len(filter.Temperature) > 0 {
		query = query.Where("temperature IN ?", filter.Temperature)
	}
	now := time.Now().UTC()
	if filter.InteractedAfterDays != nil {
		cutoff := now.AddDate(0, 0, -*filter.InteractedAfterDays)
		query = query.Where("last_interaction_at >= ?", cutoff)
	}
	if filter.InteractedBeforeDays != nil {
		cutoff := now.AddDate(0, 0, -*filter.InteractedBeforeDays)
		query = query.Where("last_interaction_at < ?", cutoff)
	}

	query = query.Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var contacts []*models.Contact
	err := query.Find(&contacts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts by dynamic filter: %w", err)
	}

	return contacts, nil
}

// ByFilter retrieves contacts based on filter criteria
func (r *ContactRepositoryImpl) ByFilter(ctx context.Context, filter models.ContactFilter, orderBy string, limit, offset int) ([]*models.Contact, error) {
	db := r.getDB(ctx)

	var contacts []*models.Contact
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

	err := query.Find(&contacts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find contacts by filter: %w", err)
	}

	return contacts, nil
}

// Count returns the number of contacts matching the filter
func (r *ContactRepositoryImpl) Count(ctx context.Context, filter models.ContactFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.Contact{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count contacts: %w", err)
	}

	return count, nil
}

// Exists checks if any contact matching the filter exists
func (r *ContactRepositoryImpl) Exists(ctx context.Context, filter models.ContactFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *ContactRepositoryImpl) applyFilter(db *gorm.DB, filter models.ContactFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.CompanyID != nil {
		db = db.Where("company_id = ?", *filter.CompanyID)
	}
	if filter.Phone != nil {
		db = db.Where("phone = ?", *filter.Phone)
	}
	if len(filter.PhoneIn) > 0 {
		db = db.Where("phone IN ?", filter.PhoneIn)
	}
	if filter.Temperature != nil {
		db = db.Where("temperature = ?", *filter.Temperature)
	}
	if filter.Tag != nil {
		db = db.Where("? = ANY(tags)", *filter.Tag)
	}
	if !filter.IncludeDeleted {
		db = db.Where("deleted_at IS NULL")
	}
	if filter.InteractedAfter != nil {
		db = db.Where("last_interaction_at >= ?", *filter.InteractedAfter)
	}
	if filter.InteractedBefore != nil {
		db = db.Where("last_interaction_at <= ?", *filter.InteractedBefore)
	}

	return db
}
