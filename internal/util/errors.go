package util

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation              = errors.New("validation error")
	ErrNotFound                = errors.New("resource not found")
	ErrPermissionDenied        = errors.New("permission denied")
	ErrProjectNotFound         = fmt.Errorf("project %w", ErrNotFound)
	ErrChallengeNotFound       = fmt.Errorf("challenge %w", ErrNotFound)
	ErrAttemptNotFound         = fmt.Errorf("attempt %w", ErrNotFound)
	ErrRecommendationNotFound  = fmt.Errorf("recommendation %w", ErrNotFound)
	ErrAlreadyMember           = errors.New("user is already a member of the project")
	ErrProjectNotRecruiting    = errors.New("project is not recruiting")
	ErrAttemptInCooldown       = errors.New("attempt in cooldown")
	ErrAttemptInProgress       = errors.New("attempt already in progress")
	ErrAttemptAlreadyFinalized = errors.New("attempt already finalized")
	ErrAttemptNotStarted       = errors.New("attempt has not been started")
	ErrAttemptDeadlinePassed   = errors.New("attempt deadline has passed")
	ErrEvaluationSandboxFault  = errors.New("evaluation sandbox fault")
	ErrChallengeLocked         = errors.New("challenge is referenced by an attempt and can no longer change")
	ErrNoChallengeAvailable    = errors.New("no challenge available for project")
	ErrLockTimeout             = errors.New("timed out waiting for attempt lock")
)

// ValidationError 输入校验失败，直接返回给调用方，不做内部重试
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// CooldownError carries the instant at which the user may retry.
type CooldownError struct {
	RetryAfter time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("attempt in cooldown until %s", e.RetryAfter.Format(time.RFC3339))
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrAttemptInCooldown
}
