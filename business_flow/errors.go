// Package businessflow contains the core business logic and use cases for campaign workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Campaign-related errors
	ErrCampaignNotFound         = errors.New("campaign not found")
	ErrCampaignAccessDenied     = errors.New("campaign access denied")
	ErrCampaignNameRequired     = errors.New("campaign name is required")
	ErrCampaignAlreadyTerminal  = errors.New("campaign is already in a terminal state")
	ErrInvalidStatusTransition  = errors.New("invalid campaign status transition")
	ErrScheduleTimeNotPresent   = errors.New("schedule time is not present")
	ErrScheduleTimeInPast       = errors.New("schedule time is in the past")
	ErrNoRecipients             = errors.New("campaign has no recipients")
	ErrTemplateOrderRequired    = errors.New("at least one template is required")
	ErrTemplateNotFound         = errors.New("message template not found")

	// Batch-related errors
	ErrBatchNotFound        = errors.New("batch not found")
	ErrBatchNotPending      = errors.New("batch is not pending activation")
	ErrBatchAlreadyHandled  = errors.New("batch was already activated or cancelled")

	// Session and rotation errors
	ErrNoSelection          = errors.New("nothing selected to rotate over")
	ErrSessionNotFound      = errors.New("whatsapp session not found")
	ErrNoConnectedSession   = errors.New("no connected whatsapp session available")
	ErrSessionListRequired  = errors.New("at least one session is required")

	// Contact resolution errors
	ErrContactLockContended = errors.New("contact is locked by a concurrent resolution")
	ErrPhoneInvalid         = errors.New("phone number is invalid")
	ErrCacheNotAvailable    = errors.New("cache not available")

	// Scheduler integration errors
	ErrSchedulerUnavailable = errors.New("scheduler service unavailable")
	ErrJobSubmissionFailed  = errors.New("scheduler job submission failed")

	// Filter errors
	ErrInvalidPage           = errors.New("page must be at least 1")
	ErrInvalidPageSize       = errors.New("page size must be between 1 and 100")
	ErrStartDateAfterEndDate = errors.New("start date cannot be after end date")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

// AsBusinessError unpacks a BusinessError from anywhere in the chain.
func AsBusinessError(err error, target **BusinessError) bool {
	return errors.As(err, target)
}

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsCampaignAccessDenied(err error) bool {
	return errors.Is(err, ErrCampaignAccessDenied)
}

func IsCampaignNameRequired(err error) bool {
	return errors.Is(err, ErrCampaignNameRequired)
}

func IsCampaignAlreadyTerminal(err error) bool {
	return errors.Is(err, ErrCampaignAlreadyTerminal)
}

func IsInvalidStatusTransition(err error) bool {
	return errors.Is(err, ErrInvalidStatusTransition)
}

func IsScheduleTimeNotPresent(err error) bool {
	return errors.Is(err, ErrScheduleTimeNotPresent)
}

func IsScheduleTimeInPast(err error) bool {
	return errors.Is(err, ErrScheduleTimeInPast)
}

func IsNoRecipients(err error) bool {
	return errors.Is(err, ErrNoRecipients)
}

func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

func IsBatchNotFound(err error) bool {
	return errors.Is(err, ErrBatchNotFound)
}

func IsBatchNotPending(err error) bool {
	return errors.Is(err, ErrBatchNotPending)
}

func IsBatchAlreadyHandled(err error) bool {
	return errors.Is(err, ErrBatchAlreadyHandled)
}

func IsNoSelection(err error) bool {
	return errors.Is(err, ErrNoSelection)
}

func IsSessionNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}

func IsNoConnectedSession(err error) bool {
	return errors.Is(err, ErrNoConnectedSession)
}

func IsContactLockContended(err error) bool {
	return errors.Is(err, ErrContactLockContended)
}

func IsPhoneInvalid(err error) bool {
	return errors.Is(err, ErrPhoneInvalid)
}

func IsCacheNotAvailable(err error) bool {
	return errors.Is(err, ErrCacheNotAvailable)
}

func IsSchedulerUnavailable(err error) bool {
	return errors.Is(err, ErrSchedulerUnavailable)
}

func IsJobSubmissionFailed(err error) bool {
	return errors.Is(err, ErrJobSubmissionFailed)
}

func IsInvalidPage(err error) bool {
	return errors.Is(err, ErrInvalidPage)
}

func IsInvalidPageSize(err error) bool {
	return errors.Is(err, ErrInvalidPageSize)
}

func IsStartDateAfterEndDate(err error) bool {
	return errors.Is(err, ErrStartDateAfterEndDate)
}
