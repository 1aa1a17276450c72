package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrProviderUnavailable indicates the API could not be reached or
	// answered with a server-side failure. Safe to retry.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrRateLimited indicates the API rejected the call for quota reasons.
	// Safe to retry after waiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidInput indicates the request itself was rejected. Retrying
	// the same payload cannot succeed.
	ErrInvalidInput = errors.New("invalid input")
)

// Retryable reports whether err is transient and worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrProviderUnavailable)
}

// RateLimitError is a 429 response, carrying the server's suggested wait
// when the Retry-After header was present.
type RateLimitError struct {
	Wait time.Duration
}

func (e *RateLimitError) Error() string {
	if e.Wait > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.Wait)
	}
	return "rate limited"
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// RetryAfter returns the server-directed wait, or zero when none was given.
func (e *RateLimitError) RetryAfter() time.Duration { return e.Wait }

// ResponseError maps a non-2xx API response to the error taxonomy above.
// The body is consumed to extract the API's error message.
func ResponseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	msg := errorMessage(body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{Wait: retryAfter(resp.Header)}
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %d - %s", ErrProviderUnavailable, resp.StatusCode, msg)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
	default:
		return fmt.Errorf("API error: %d - %s", resp.StatusCode, msg)
	}
}

// errorMessage pulls the human-readable message out of an API error body,
// falling back to the raw body.
func errorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return string(body)
}

func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
