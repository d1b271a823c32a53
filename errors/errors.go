package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic            = fmt.Errorf("worker panic")
	ErrSupervisorStopped      = fmt.Errorf("supervisor stopped")
	ErrOnlyCensoredFiles      = fmt.Errorf("censored directory contains directories")
	ErrEmptyWords             = fmt.Errorf("no words have been found")
	ErrNotFound               = fmt.Errorf("not found")
	ErrAlreadyExists          = fmt.Errorf("already exists")
	ErrUserNotFound           = fmt.Errorf("user not found: %w", ErrNotFound)
	ErrConversationNotFound   = fmt.Errorf("conversation not found: %w", ErrNotFound)
	ErrMessageNotFound        = fmt.Errorf("message not found: %w", ErrNotFound)
	ErrMediaNotFound          = fmt.Errorf("media not found: %w", ErrNotFound)
	ErrMediaTypeMismatch      = fmt.Errorf("declared content type does not match content")
	ErrMediaTypeUnreadable    = fmt.Errorf("content type cannot be determined")
	ErrEmptyMessage           = fmt.Errorf("message has neither text nor media")
	ErrSelfConversation       = fmt.Errorf("a dual conversation needs two distinct users")
	ErrRelayStopped           = fmt.Errorf("relay is stopped")
	ErrPublishTimeout         = fmt.Errorf("publish timed out")
	ErrSubscriberBackpressure = fmt.Errorf("subscriber buffer is full")
	ErrInvalidToken           = fmt.Errorf("invalid or expired token")
	ErrMissingToken           = fmt.Errorf("authorization token is missing")
	ErrRateLimited            = fmt.Errorf("rate limit exceeded")
	ErrInvalidRequest         = fmt.Errorf("invalid request")
	ErrForbidden              = fmt.Errorf("forbidden")
)

// ProvisioningError wraps any failure of the external conversation service other
// than a lookup miss. It aborts the operation that raised it.
type ProvisioningError struct {
	Op  string
	Key string
	Err error
}

func (e *ProvisioningError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("provisioning %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("provisioning %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

func NewProvisioningError(op, key string, err error) error {
	return &ProvisioningError{Op: op, Key: key, Err: err}
}

// MediaError reports a blob store failure or an attachment whose bytes do not
// match its declared type.
type MediaError struct {
	Op  string
	Key string
	Err error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("media %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *MediaError) Unwrap() error { return e.Err }

func NewMediaError(op, key string, err error) error {
	return &MediaError{Op: op, Key: key, Err: err}
}

// PartialMembershipWarning records one participant that could not be resolved or
// added while provisioning a conversation. It never aborts the operation.
type PartialMembershipWarning struct {
	UserID string
	Err    error
}

func (w PartialMembershipWarning) Error() string {
	return fmt.Sprintf("participant %s not added: %v", w.UserID, w.Err)
}

func (w PartialMembershipWarning) Unwrap() error { return w.Err }

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func Join(errs ...error) error { return errors.Join(errs...) }

// IsNotFound reports whether err is a lookup miss of any kind.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsProvisioning reports whether err carries a ProvisioningError.
func IsProvisioning(err error) bool {
	var p *ProvisioningError
	return errors.As(err, &p)
}

// IsMedia reports whether err carries a MediaError.
func IsMedia(err error) bool {
	var m *MediaError
	return errors.As(err, &m)
}

// MapToHTTPStatus picks the response status for an error returned by a service.
func MapToHTTPStatus(err error) int {
	var (
		provisioning *ProvisioningError
		media        *MediaError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMissingToken), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrMediaTypeMismatch), errors.Is(err, ErrMediaTypeUnreadable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrSelfConversation):
		return http.StatusBadRequest
	case errors.As(err, &provisioning):
		return http.StatusBadGateway
	case errors.As(err, &media):
		return http.StatusBadGateway
	case errors.Is(err, ErrRelayStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
