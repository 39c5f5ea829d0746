package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/sony/gobreaker/v2"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
)

// ErrorClassification tells the executor whether to retry an error and whether it
// counts against the circuit breaker.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

var (
	transient = ErrorClassification{Retryable: true, RecordFailure: true}
	permanent = ErrorClassification{Retryable: false, RecordFailure: true}
	ignored   = ErrorClassification{}
)

// Transient is the classification for failures worth retrying.
func Transient() ErrorClassification { return transient }

// Permanent is the classification for failures that count against the breaker but are not retried.
func Permanent() ErrorClassification { return permanent }

// TemporaryClassifier retries errors wrapped as domain.ErrTemporary. Cancellation is
// ignored and anything else counts against the breaker without a retry.
func TemporaryClassifier(err error) ErrorClassification {
	switch {
	case err == nil || IsCanceled(err) && !domain.IsKind(err, domain.ErrTemporary):
		return ignored
	case domain.IsKind(err, domain.ErrTemporary):
		return transient
	}
	return permanent
}

func defaultClassifier(error) ErrorClassification {
	return permanent
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// IsCanceled reports caller cancellation, which is never retried nor held against a dependency.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// WrapTemporary marks errors the classifier deems retryable, and breaker rejections,
// as domain.ErrTemporary so callers can degrade instead of failing hard.
func WrapTemporary(operation string, err error, classifier ErrorClassifier) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifier == nil {
		classifier = defaultClassifier
	}
	if classifier(err).Retryable || IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

// StatusError is a non-2xx answer from a JSON-over-HTTP dependency (Ollama, Qdrant).
type StatusError struct {
	Service    string
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e == nil {
		return "http status error"
	}
	if e.Body == "" {
		return fmt.Sprintf("%s %s status: %s", e.Service, e.Operation, e.Status)
	}
	return fmt.Sprintf("%s %s status: %s: %s", e.Service, e.Operation, e.Status, e.Body)
}

const statusBodyLimit = 2048

// NewStatusError captures up to 2 KiB of the response body for diagnostics.
func NewStatusError(service, operation string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, statusBodyLimit))
	return &StatusError{
		Service:    service,
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

func RetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	case http.StatusNotImplemented, http.StatusHTTPVersionNotSupported:
		return false
	default:
		return code >= 500
	}
}

// ClassifyHTTPError is the classifier for JSON-over-HTTP dependencies: retryable statuses
// and network errors are transient, other statuses are the caller's fault and ignored.
func ClassifyHTTPError(err error) ErrorClassification {
	switch {
	case err == nil, IsCanceled(err):
		return ignored
	case IsCircuitOpen(err):
		return transient
	}
	if code := StatusCode(err); code != 0 {
		if RetryableStatus(code) {
			return transient
		}
		return ignored
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return transient
	}
	return permanent
}
