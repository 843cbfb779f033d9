package exporter

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rgonek/confluence-space-export/internal/confluence"
)

// Error kinds observable by the pipeline.
const (
	KindNetwork        = "network"
	KindTimeout        = "timeout"
	KindRateLimit      = "rate_limit"
	KindAuthentication = "authentication"
	KindAuthorization  = "authorization"
	KindNotFound       = "not_found"
	KindContent        = "content"
	KindFilesystem     = "filesystem"
	KindConfiguration  = "configuration"
	KindValidation     = "validation"
	KindUnknown        = "unknown"
)

// Severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Fetch classifications. The first five never emit a Markdown file.
const (
	FetchPermissionDenied = "permission_denied"
	FetchNotFound         = "not_found"
	FetchArchived         = "archived"
	FetchDeleted          = "deleted"
	FetchRestrictedSpace  = "restricted_space"
	FetchAPIError         = "api_error"
	FetchTransient        = "transient"
)

// ProcessingError is a classified failure attributed to one page.
type ProcessingError struct {
	PageID    string        `json:"pageId"`
	Kind      string        `json:"kind"`
	Severity  string        `json:"severity"`
	Retryable bool          `json:"retryable"`
	Message   string        `json:"message"`
	Err       error         `json:"-"`
	RetryIn   time.Duration `json:"-"`
}

func (e *ProcessingError) Error() string {
	return "page " + e.PageID + ": " + e.Message
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// classifyFetch maps a page-fetch error to its classification and a
// ProcessingError. Transient and api_error outcomes are retryable.
func classifyFetch(pageID string, err error) (string, *ProcessingError) {
	pe := &ProcessingError{PageID: pageID, Err: err, Message: err.Error()}

	status := confluence.StatusOf(err)
	switch status {
	case 401:
		pe.Kind, pe.Severity = KindAuthentication, SeverityHigh
		return FetchPermissionDenied, pe
	case 403:
		pe.Kind, pe.Severity = KindAuthorization, SeverityMedium
		if isRestrictedSpace(err) {
			return FetchRestrictedSpace, pe
		}
		return FetchPermissionDenied, pe
	case 404:
		pe.Kind, pe.Severity = KindNotFound, SeverityLow
		if isArchived(err) {
			return FetchArchived, pe
		}
		return FetchNotFound, pe
	case 410:
		pe.Kind, pe.Severity = KindNotFound, SeverityLow
		return FetchDeleted, pe
	case 429:
		pe.Kind, pe.Severity, pe.Retryable = KindRateLimit, SeverityMedium, true
		pe.RetryIn = confluence.RetryAfterOf(err)
		return FetchTransient, pe
	}
	if status >= 500 {
		pe.Kind, pe.Severity, pe.Retryable = KindNetwork, SeverityMedium, true
		return FetchTransient, pe
	}
	if status >= 400 {
		pe.Kind, pe.Severity, pe.Retryable = KindUnknown, SeverityMedium, true
		return FetchAPIError, pe
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		pe.Kind, pe.Severity, pe.Retryable = KindTimeout, SeverityMedium, true
		return FetchTransient, pe
	case isNetworkError(err):
		pe.Kind, pe.Severity, pe.Retryable = KindNetwork, SeverityMedium, true
		return FetchTransient, pe
	}

	pe.Kind, pe.Severity, pe.Retryable = KindUnknown, SeverityMedium, true
	return FetchAPIError, pe
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}

// Confluence reports archived and space-restricted content through the
// message body rather than a dedicated status.
func isArchived(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "archived")
}

func isRestrictedSpace(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "space") && strings.Contains(msg, "restrict")
}
