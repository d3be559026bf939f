package businessflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/zapsender/zapsender-backend/models"
	"github.com/zapsender/zapsender-backend/utils"
)

// In-memory repository fakes shared by the flow tests. They enforce the same
// uniqueness rules as the store so conflict paths are exercised for real.

type fakeContactRepo struct {
	mu       sync.Mutex
	seq      uint
	contacts map[uint]*models.Contact
	saveErr  error
	// beforeSave runs once before the next Save, simulating a concurrent
	// writer landing between a lookup and an insert.
	beforeSave func()
}

func newFakeContactRepo() *fakeContactRepo {
	return &fakeContactRepo{contacts: make(map[uint]*models.Contact)}
}

func (r *fakeContactRepo) ByID(ctx context.Context, id uint) (*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.contacts[id]; ok {
		clone := *c
		return &clone, nil
	}
	return nil, nil
}

func (r *fakeContactRepo) ByFilter(ctx context.Context, filter models.ContactFilter, orderBy string, limit, offset int) ([]*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Contact
	for _, c := range r.contacts {
		if filter.CompanyID != nil && c.CompanyID != *filter.CompanyID {
			continue
		}
		if !filter.IncludeDeleted && c.IsDeleted() {
			continue
		}
		clone := *c
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeContactRepo) Save(ctx context.Context, contact *models.Contact) error {
	if r.beforeSave != nil {
		hook := r.beforeSave
		r.beforeSave = nil
		hook()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		err := r.saveErr
		r.saveErr = nil
		return err
	}
	for _, existing := range r.contacts {
		if existing.CompanyID != contact.CompanyID || existing.IsDeleted() {
			continue
		}
		if utils.SamePhone(existing.Phone, contact.Phone) {
			return gorm.ErrDuplicatedKey
		}
	}
	r.seq++
	contact.ID = r.seq
	clone := *contact
	r.contacts[contact.ID] = &clone
	return nil
}

func (r *fakeContactRepo) SaveBatch(ctx context.Context, contacts []*models.Contact) error {
	for _, c := range contacts {
		if err := r.Save(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeContactRepo) Update(ctx context.Context, contact *models.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *contact
	r.contacts[contact.ID] = &clone
	return nil
}

func (r *fakeContactRepo) Count(ctx context.Context, filter models.ContactFilter) (int64, error) {
	list, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(list)), nil
}

func (r *fakeContactRepo) Exists(ctx context.Context, filter models.ContactFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *fakeContactRepo) ByPhoneVariations(ctx context.Context, companyID uint, identifiers []string, includeDeleted bool) (*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idSet := make(map[string]struct{}, len(identifiers))
	for _, id := range identifiers {
		idSet[id] = struct{}{}
	}

	var best *models.Contact
	better := func(c *models.Contact) bool {
		if best == nil {
			return true
		}
		if best.IsDeleted() != c.IsDeleted() {
			return best.IsDeleted()
		}
		return c.ID < best.ID
	}
	for _, c := range r.contacts {
		if c.CompanyID != companyID {
			continue
		}
		if c.IsDeleted() && !includeDeleted {
			continue
		}
		for _, ident := range c.AllIdentifiers() {
			if _, ok := idSet[ident]; ok {
				if better(c) {
					best = c
				}
				break
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	clone := *best
	return &clone, nil
}

func (r *fakeContactRepo) ListByDynamicFilter(ctx context.Context, companyID uint, filter models.DynamicFilter, limit int) ([]*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Contact
	for _, c := range r.contacts {
		if c.CompanyID != companyID || c.IsDeleted() {
			continue
		}
		if len(filter.Tags) > 0 {
			matched := false
			for _, want := range filter.Tags {
				for _, have := range c.Tags {
					if want == have {
						matched = true
					}
				}
			}
			if !matched {
				continue
			}
		}
		if len(filter.Temperature) > 0 {
			matched := false
			for _, temp := range filter.Temperature {
				if string(c.Temperature) == temp {
					matched = true
				}
			}
			if !matched {
				continue
			}
		}
		clone := *c
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	seq      uint
	messages map[uint]*models.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[uint]*models.Message)}
}

func (r *fakeMessageRepo) ByID(ctx context.Context, id uint) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.messages[id]; ok {
		clone := *m
		return &clone, nil
	}
	return nil, nil
}

func (r *fakeMessageRepo) ByFilter(ctx context.Context, filter models.MessageFilter, orderBy string, limit, offset int) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Message
	for _, m := range r.messages {
		if filter.CompanyID != nil && m.CompanyID != *filter.CompanyID {
			continue
		}
		if filter.ScheduleID != nil && (m.ScheduleID == nil || *m.ScheduleID != *filter.ScheduleID) {
			continue
		}
		if filter.BatchID != nil && (m.BatchID == nil || *m.BatchID != *filter.BatchID) {
			continue
		}
		if filter.Status != nil && m.Status != *filter.Status {
			continue
		}
		if len(filter.StatusIn) > 0 {
			matched := false
			for _, s := range filter.StatusIn {
				if m.Status == s {
					matched = true
				}
			}
			if !matched {
				continue
			}
		}
		clone := *m
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeMessageRepo) Save(ctx context.Context, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.SchedulerJobID != nil {
		for _, existing := range r.messages {
			if existing.CompanyID == msg.CompanyID &&
				existing.SchedulerJobID != nil &&
				*existing.SchedulerJobID == *msg.SchedulerJobID {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	r.seq++
	msg.ID = r.seq
	clone := *msg
	r.messages[msg.ID] = &clone
	return nil
}

func (r *fakeMessageRepo) SaveBatch(ctx context.Context, msgs []*models.Message) error {
	for _, m := range msgs {
		if err := r.Save(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeMessageRepo) Update(ctx context.Context, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *msg
	r.messages[msg.ID] = &clone
	return nil
}

func (r *fakeMessageRepo) Count(ctx context.Context, filter models.MessageFilter) (int64, error) {
	list, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(list)), nil
}

func (r *fakeMessageRepo) Exists(ctx context.Context, filter models.MessageFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *fakeMessageRepo) ByCompanyAndJobID(ctx context.Context, companyID uint, jobID string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.CompanyID == companyID && m.SchedulerJobID != nil && *m.SchedulerJobID == jobID {
			clone := *m
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeMessageRepo) ListBySchedule(ctx context.Context, scheduleID uint, statuses []models.MessageStatus) ([]*models.Message, error) {
	return r.ByFilter(ctx, models.MessageFilter{ScheduleID: &scheduleID, StatusIn: statuses}, "", 0, 0)
}

func (r *fakeMessageRepo) ListByBatch(ctx context.Context, batchID uint, statuses []models.MessageStatus) ([]*models.Message, error) {
	return r.ByFilter(ctx, models.MessageFilter{BatchID: &batchID, StatusIn: statuses}, "", 0, 0)
}

func (r *fakeMessageRepo) UpdateStatusByIDs(ctx context.Context, ids []uint, status models.MessageStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range ids {
		if m, ok := r.messages[id]; ok {
			m.Status = status
			now := time.Now().UTC()
			m.UpdatedAt = &now
			n++
		}
	}
	return n, nil
}

func (r *fakeMessageRepo) DeleteByIDs(ctx context.Context, ids []uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := r.messages[id]; ok {
			delete(r.messages, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeMessageRepo) ListOrphanedPending(ctx context.Context, olderThan time.Time, limit int) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Message
	for _, m := range r.messages {
		if m.Status == models.MessageStatusPending && m.SchedulerJobID == nil && m.CreatedAt.Before(olderThan) {
			clone := *m
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeScheduleRepo struct {
	mu        sync.Mutex
	seq       uint
	schedules map[uint]*models.Schedule
}

func newFakeScheduleRepo() *fakeScheduleRepo {
	return &fakeScheduleRepo{schedules: make(map[uint]*models.Schedule)}
}

func (r *fakeScheduleRepo) ByID(ctx context.Context, id uint) (*models.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.schedules[id]; ok {
		clone := *s
		return &clone, nil
	}
	return nil, nil
}

func (r *fakeScheduleRepo) ByFilter(ctx context.Context, filter models.ScheduleFilter, orderBy string, limit, offset int) ([]*models.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Schedule
	for _, s := range r.schedules {
		if filter.CompanyID != nil && s.CompanyID != *filter.CompanyID {
			continue
		}
		if filter.Status != nil && s.Status != *filter.Status {
			continue
		}
		clone := *s
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeScheduleRepo) Save(ctx context.Context, s *models.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = s.BeforeCreate()
	r.seq++
	s.ID = r.seq
	clone := *s
	r.schedules[s.ID] = &clone
	return nil
}

func (r *fakeScheduleRepo) SaveBatch(ctx context.Context, list []*models.Schedule) error {
	for _, s := range list {
		if err := r.Save(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeScheduleRepo) Update(ctx context.Context, s *models.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *s
	r.schedules[s.ID] = &clone
	return nil
}

func (r *fakeScheduleRepo) Count(ctx context.Context, filter models.ScheduleFilter) (int64, error) {
	list, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(list)), nil
}

func (r *fakeScheduleRepo) Exists(ctx context.Context, filter models.ScheduleFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *fakeScheduleRepo) ByUUID(ctx context.Context, id string) (*models.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.schedules {
		if s.UUID.String() == id {
			clone := *s
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeScheduleRepo) ByCompanyID(ctx context.Context, companyID uint, limit, offset int) ([]*models.Schedule, error) {
	return r.ByFilter(ctx, models.ScheduleFilter{CompanyID: &companyID}, "", limit, offset)
}

func (r *fakeScheduleRepo) UpdateStatus(ctx context.Context, id uint, status models.ScheduleStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.schedules[id]; ok {
		s.Status = status
		now := time.Now().UTC()
		switch status {
		case models.ScheduleStatusProcessing:
			s.StartedAt = &now
		case models.ScheduleStatusCompleted:
			s.CompletedAt = &now
		case models.ScheduleStatusCancelled:
			s.CancelledAt = &now
		}
	}
	return nil
}

func (r *fakeScheduleRepo) IncrementCounters(ctx context.Context, id uint, sentDelta, failedDelta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.schedules[id]; ok {
		s.SentCount += sentDelta
		s.FailedCount += failedDelta
	}
	return nil
}

type fakeBatchRepo struct {
	mu      sync.Mutex
	seq     uint
	batches map[uint]*models.BatchSchedule
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{batches: make(map[uint]*models.BatchSchedule)}
}

func (r *fakeBatchRepo) ByID(ctx context.Context, id uint) (*models.BatchSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.batches[id]; ok {
		clone := *b
		return &clone, nil
	}
	return nil, nil
}

func (r *fakeBatchRepo) ByFilter(ctx context.Context, filter models.BatchScheduleFilter, orderBy string, limit, offset int) ([]*models.BatchSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.BatchSchedule
	for _, b := range r.batches {
		if filter.ScheduleID != nil && b.ScheduleID != *filter.ScheduleID {
			continue
		}
		if filter.Status != nil && b.Status != *filter.Status {
			continue
		}
		clone := *b
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BatchNumber < out[j].BatchNumber })
	return out, nil
}

func (r *fakeBatchRepo) Save(ctx context.Context, b *models.BatchSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = b.BeforeCreate()
	r.seq++
	b.ID = r.seq
	clone := *b
	r.batches[b.ID] = &clone
	return nil
}

func (r *fakeBatchRepo) SaveBatch(ctx context.Context, list []*models.BatchSchedule) error {
	for _, b := range list {
		if err := r.Save(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeBatchRepo) Update(ctx context.Context, b *models.BatchSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *b
	r.batches[b.ID] = &clone
	return nil
}

func (r *fakeBatchRepo) Count(ctx context.Context, filter models.BatchScheduleFilter) (int64, error) {
	list, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(list)), nil
}

func (r *fakeBatchRepo) Exists(ctx context.Context, filter models.BatchScheduleFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *fakeBatchRepo) ListBySchedule(ctx context.Context, scheduleID uint) ([]*models.BatchSchedule, error) {
	return r.ByFilter(ctx, models.BatchScheduleFilter{ScheduleID: &scheduleID}, "batch_number ASC", 0, 0)
}

func (r *fakeBatchRepo) UpdateStatus(ctx context.Context, id uint, status models.BatchStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.batches[id]; ok {
		b.Status = status
		now := time.Now().UTC()
		b.UpdatedAt = &now
	}
	return nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	seq      uint
	sessions map[uint]*models.WhatsAppSession
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[uint]*models.WhatsAppSession)}
}

func (r *fakeSessionRepo) ByID(ctx context.Context, id uint) (*models.WhatsAppSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		clone := *s
		return &clone, nil
	}
	return nil, nil
}

func (r *fakeSessionRepo) ByFilter(ctx context.Context, filter models.WhatsAppSessionFilter, orderBy string, limit, offset int) ([]*models.WhatsAppSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.WhatsAppSession
	for _, s := range r.sessions {
		if filter.CompanyID != nil && s.CompanyID != *filter.CompanyID {
			continue
		}
		clone := *s
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeSessionRepo) Save(ctx context.Context, s *models.WhatsAppSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	s.ID = r.seq
	clone := *s
	r.sessions[s.ID] = &clone
	return nil
}

func (r *fakeSessionRepo) SaveBatch(ctx context.Context, list []*models.WhatsAppSession) error {
	for _, s := range list {
		if err := r.Save(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeSessionRepo) Update(ctx context.Context, s *models.WhatsAppSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *s
	r.sessions[s.ID] = &clone
	return nil
}

func (r *fakeSessionRepo) Count(ctx context.Context, filter models.WhatsAppSessionFilter) (int64, error) {
	list, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(list)), nil
}

func (r *fakeSessionRepo) Exists(ctx context.Context, filter models.WhatsAppSessionFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *fakeSessionRepo) ByName(ctx context.Context, companyID uint, name string) (*models.WhatsAppSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.CompanyID == companyID && s.SessionName == name {
			clone := *s
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) ListByNames(ctx context.Context, companyID uint, names []string) ([]*models.WhatsAppSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byName := make(map[string]*models.WhatsAppSession)
	for _, s := range r.sessions {
		if s.CompanyID == companyID {
			byName[s.SessionName] = s
		}
	}
	// Preserve the requested order; the campaign's session list is ordered.
	var out []*models.WhatsAppSession
	for _, name := range names {
		if s, ok := byName[name]; ok {
			clone := *s
			out = append(out, &clone)
		}
	}
	return out, nil
}

type fakeTemplateRepo struct {
	mu        sync.Mutex
	seq       uint
	templates map[uint]*models.MessageTemplate
}

func newFakeTemplateRepo() *fakeTemplateRepo {
	return &fakeTemplateRepo{templates: make(map[uint]*models.MessageTemplate)}
}

func (r *fakeTemplateRepo) ByID(ctx context.Context, id uint) (*models.MessageTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.templates[id]; ok {
		clone := *t
		return &clone, nil
	}
	return nil, nil
}

func (r *fakeTemplateRepo) ByFilter(ctx context.Context, filter models.MessageTemplateFilter, orderBy string, limit, offset int) ([]*models.MessageTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.MessageTemplate
	for _, t := range r.templates {
		if filter.CompanyID != nil && t.CompanyID != *filter.CompanyID {
			continue
		}
		clone := *t
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeTemplateRepo) Save(ctx context.Context, t *models.MessageTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	t.ID = r.seq
	clone := *t
	r.templates[t.ID] = &clone
	return nil
}

func (r *fakeTemplateRepo) SaveBatch(ctx context.Context, list []*models.MessageTemplate) error {
	for _, t := range list {
		if err := r.Save(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeTemplateRepo) Update(ctx context.Context, t *models.MessageTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *t
	r.templates[t.ID] = &clone
	return nil
}

func (r *fakeTemplateRepo) Count(ctx context.Context, filter models.MessageTemplateFilter) (int64, error) {
	list, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(list)), nil
}

func (r *fakeTemplateRepo) Exists(ctx context.Context, filter models.MessageTemplateFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *fakeTemplateRepo) ListByIDs(ctx context.Context, companyID uint, ids []int64) ([]*models.MessageTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Preserve the requested order; template_order is ordered.
	var out []*models.MessageTemplate
	for _, id := range ids {
		if t, ok := r.templates[uint(id)]; ok && t.CompanyID == companyID {
			clone := *t
			out = append(out, &clone)
		}
	}
	return out, nil
}
