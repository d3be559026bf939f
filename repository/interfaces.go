// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/zapsender/zapsender-backend/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Update(ctx context.Context, entity *T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// ScheduleRepository defines operations for campaign schedules
type ScheduleRepository interface {
	Repository[models.Schedule, models.ScheduleFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Schedule, error)
	ByCompanyID(ctx context.Context, companyID uint, limit, offset int) ([]*models.Schedule, error)
	UpdateStatus(ctx context.Context, id uint, status models.ScheduleStatus) error
	IncrementCounters(ctx context.Context, id uint, sentDelta, failedDelta int) error
}

// BatchScheduleRepository defines operations for batch schedules
type BatchScheduleRepository interface {
	Repository[models.BatchSchedule, models.BatchScheduleFilter]
	ListBySchedule(ctx context.Context, scheduleID uint) ([]*models.BatchSchedule, error)
	UpdateStatus(ctx context.Context, id uint, status models.BatchStatus) error
}

// MessageRepository defines operations for messages
type MessageRepository interface {
	Repository[models.Message, models.MessageFilter]
	ByCompanyAndJobID(ctx context.Context, companyID uint, jobID string) (*models.Message, error)
	ListBySchedule(ctx context.Context, scheduleID uint, statuses []models.MessageStatus) ([]*models.Message, error)
	ListByBatch(ctx context.Context, batchID uint, statuses []models.MessageStatus) ([]*models.Message, error)
	UpdateStatusByIDs(ctx context.Context, ids []uint, status models.MessageStatus) (int64, error)
	DeleteByIDs(ctx context.Context, ids []uint) (int64, error)
	ListOrphanedPending(ctx context.Context, olderThan time.Time, limit int) ([]*models.Message, error)
}

// ContactRepository defines operations for contacts
type ContactRepository interface {
	Repository[models.Contact, models.ContactFilter]
	ByPhoneVariations(ctx context.Context, companyID uint, identifiers []string, includeDeleted bool) (*models.Contact, error)
	ListByDynamicFilter(ctx context.Context, companyID uint, filter models.DynamicFilter, limit int) ([]*models.Contact, error)
}

// WhatsAppSessionRepository defines operations for sending sessions
type WhatsAppSessionRepository interface {
	Repository[models.WhatsAppSession, models.WhatsAppSessionFilter]
	ByName(ctx context.Context, companyID uint, sessionName string) (*models.WhatsAppSession, error)
	ListByNames(ctx context.Context, companyID uint, names []string) ([]*models.WhatsAppSession, error)
}

// MessageTemplateRepository defines operations for message templates
type MessageTemplateRepository interface {
	Repository[models.MessageTemplate, models.MessageTemplateFilter]
	ListByIDs(ctx context.Context, companyID uint, ids []int64) ([]*models.MessageTemplate, error)
}
