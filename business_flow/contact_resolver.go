package businessflow

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zapsender/zapsender-backend/config"
	"github.com/zapsender/zapsender-backend/models"
	"github.com/zapsender/zapsender-backend/repository"
	"github.com/zapsender/zapsender-backend/utils"
)

// ContactResolver finds or creates contacts from inbound message identifiers.
// Lookup always covers the full Brazilian phone-variation set, never the
// literal string alone.
type ContactResolver interface {
	Resolve(ctx context.Context, companyID uint, phone, altID, chatRef string) (*models.Contact, error)
	ResolveOrCreate(ctx context.Context, companyID uint, phone, name, chatRef string) (*models.Contact, bool, error)
}

// ContactResolverImpl implements ContactResolver
type ContactResolverImpl struct {
	contactRepo repository.ContactRepository
	rc          *redis.Client
	cacheConfig *config.CacheConfig
}

// NewContactResolver creates a new contact resolver
func NewContactResolver(
	contactRepo repository.ContactRepository,
	rc *redis.Client,
	cacheConfig *config.CacheConfig,
) ContactResolver {
	return &ContactResolverImpl{
		contactRepo: contactRepo,
		rc:          rc,
		cacheConfig: cacheConfig,
	}
}

func redisKey(cfg config.CacheConfig, key string) string {
	return cfg.RedisPrefix + key
}

// identifierSet builds the disjunctive lookup set: phone variations plus the
// alternate identifier and the raw chat reference.
func identifierSet(phone, altID, chatRef string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, 8)
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	cleaned := utils.CleanPhone(phone)
	for _, v := range utils.PhoneVariations(cleaned) {
		add(v)
	}
	add(cleaned)
	add(altID)
	if p := utils.ChatIDToPhone(chatRef); p != "" {
		for _, v := range utils.PhoneVariations(p) {
			add(v)
		}
		add(p)
	}
	add(chatRef)
	return out
}

// Resolve performs a single disjunctive lookup and returns the first match,
// or nil when no contact resolves to any identifier.
func (r *ContactResolverImpl) Resolve(ctx context.Context, companyID uint, phone, altID, chatRef string) (*models.Contact, error) {
	identifiers := identifierSet(phone, altID, chatRef)
	if len(identifiers) == 0 {
		return nil, ErrPhoneInvalid
	}
	return r.contactRepo.ByPhoneVariations(ctx, companyID, identifiers, false)
}

// ResolveOrCreate resolves the contact, creating it when absent. A Redis
// SETNX lock keyed on (company, normalized phone) narrows the race between
// concurrent duplicate webhook deliveries; the store's uniqueness constraint
// is the backstop. Returns the contact and whether it was newly created.
func (r *ContactResolverImpl) ResolveOrCreate(ctx context.Context, companyID uint, phone, name, chatRef string) (*models.Contact, bool, error) {
	cleaned := utils.CleanPhone(phone)
	if cleaned == "" {
		cleaned = utils.ChatIDToPhone(chatRef)
	}
	if cleaned == "" {
		return nil, false, ErrPhoneInvalid
	}
	normalized := utils.NormalizePhone(cleaned)

	// The lock is best effort; running without a cache, or through a cache
	// outage, must not block ingestion. The store's uniqueness constraint
	// still catches concurrent inserts below.
	if r.rc != nil {
		lockKey := redisKey(*r.cacheConfig, fmt.Sprintf("contact:lock:%d:%s", companyID, normalized))
		locked, err := r.rc.SetNX(ctx, lockKey, "1", utils.ContactLockTTL).Result()
		if err != nil {
			log.Printf("contact resolver: lock unavailable for company %d: %v", companyID, err)
		}
		if locked {
			defer func() {
				_ = r.rc.Del(context.Background(), lockKey).Err()
			}()
		} else if err == nil {
			// Another worker holds the lock; give it a moment to finish, then
			// resolve against whatever it wrote.
			time.Sleep(utils.ContactConflictRetryDelay)
		}
	}

	// Re-resolve under the lock, including soft-deleted rows
	identifiers := identifierSet(cleaned, "", chatRef)
	existing, err := r.contactRepo.ByPhoneVariations(ctx, companyID, identifiers, true)
	if err != nil {
		return nil, false, fmt.Errorf("contact lookup failed: %w", err)
	}

	now := utils.UTCNow()
	if existing != nil {
		if existing.IsDeleted() {
			existing.DeletedAt = nil
			existing.Temperature = models.TemperatureWarm
			existing.LastInteractionAt = &now
			if err := r.contactRepo.Update(ctx, existing); err != nil {
				return nil, false, fmt.Errorf("failed to resurrect contact %d: %w", existing.ID, err)
			}
			contactsResolved.WithLabelValues("resurrected").Inc()
			return existing, false, nil
		}

		existing.LastInteractionAt = &now
		if existing.Temperature == models.TemperatureCold {
			existing.Temperature = models.TemperatureWarm
		}
		if err := r.contactRepo.Update(ctx, existing); err != nil {
			return nil, false, fmt.Errorf("failed to refresh contact %d: %w", existing.ID, err)
		}
		contactsResolved.WithLabelValues("matched").Inc()
		return existing, false, nil
	}

	contact := &models.Contact{
		CompanyID:         companyID,
		Name:              name,
		Phone:             normalized,
		Temperature:       models.TemperatureWarm,
		LastInteractionAt: &now,
	}
	if chatRef != "" && utils.ChatIDToPhone(chatRef) == "" {
		// Non-phone chat reference (business LID) kept as alternate identifier
		contact.Phones = models.ContactPhoneList{{Phone: chatRef, Type: models.PhoneTypeBusiness}}
	}

	if err := r.contactRepo.Save(ctx, contact); err != nil {
		if !repository.IsUniqueViolation(err) {
			return nil, false, fmt.Errorf("failed to create contact: %w", err)
		}
		// A concurrent resolution won the insert; retry the lookup once
		time.Sleep(utils.ContactConflictRetryDelay)
		existing, lookupErr := r.contactRepo.ByPhoneVariations(ctx, companyID, identifiers, true)
		if lookupErr != nil || existing == nil {
			return nil, false, fmt.Errorf("duplicate contact insert and re-resolution failed: %w", err)
		}
		contactsResolved.WithLabelValues("matched").Inc()
		return existing, false, nil
	}

	contactsResolved.WithLabelValues("created").Inc()
	return contact, true, nil
}
