package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/api/googleapi"
)

var (
	// ErrAuthentication is fatal: the run cannot start without credentials.
	ErrAuthentication = errors.New("youtube: authentication failed")
	// ErrQuotaExceeded means the daily API quota is spent; no call will
	// succeed until it resets.
	ErrQuotaExceeded = errors.New("youtube: API quota exceeded")
)

// classify tags quota failures with ErrQuotaExceeded so they can be told
// apart from other HTTP errors.
func classify(err error) error {
	if err == nil || !isQuotaError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
}

func isQuotaError(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusForbidden {
		return false
	}
	for _, item := range apiErr.Errors {
		if item.Reason == "quotaExceeded" {
			return true
		}
	}
	return strings.Contains(apiErr.Body, "quotaExceeded") || strings.Contains(apiErr.Message, "quotaExceeded")
}

// IsTransient reports whether a failed API call is worth retrying: HTTP
// failures other than quota exhaustion, and network errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrAuthentication) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// describe renders an API error the way the log lines expect.
func describe(err error) string {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		reason := apiErr.Message
		if len(apiErr.Errors) > 0 && apiErr.Errors[0].Reason != "" {
			reason = apiErr.Errors[0].Reason
		}
		return fmt.Sprintf("HTTP Error %d: %s", apiErr.Code, reason)
	}
	return err.Error()
}
