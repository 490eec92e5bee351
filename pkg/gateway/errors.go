package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/buymove/buymove-client/engine/domain"
)

// Error is a failed exchange with the backend: either the request never
// got an answer (StatusCode 0, Cause set) or the backend answered >= 400.
type Error struct {
	Method     string
	Path       string
	StatusCode int
	// Detail holds the backend's messages, from a string or a list of
	// {msg} objects under "detail".
	Detail []string
	Cause  error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode == 0:
		return fmt.Sprintf("gateway: %s %s: %v", e.Method, e.Path, e.Cause)
	case len(e.Detail) > 0:
		return fmt.Sprintf("gateway: %s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message())
	default:
		return fmt.Sprintf("gateway: %s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	}
}

// Unwrap exposes domain.ErrTransport, the status-specific sentinel and the
// cause to errors.Is.
func (e *Error) Unwrap() []error {
	errs := []error{domain.ErrTransport}
	switch e.StatusCode {
	case http.StatusNotFound:
		errs = append(errs, domain.ErrNotFound)
	case http.StatusUnauthorized:
		errs = append(errs, domain.ErrUnauthorized)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Message joins Detail into one user-facing sentence. Empty when the
// backend sent no detail.
func (e *Error) Message() string {
	return strings.Join(e.Detail, " ")
}

// Temporary reports whether the failure is the backend's or the network's
// rather than the request's. Only these count against the circuit breaker.
func (e *Error) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// extractDetail pulls messages out of an error body.
func extractDetail(body []byte) []string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}
	var envelope struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}
	if msgs := detailMessages(envelope.Detail); len(msgs) > 0 {
		return msgs
	}
	for _, s := range []string{envelope.Message, envelope.Error} {
		if s = strings.TrimSpace(s); s != "" {
			return []string{s}
		}
	}
	return nil
}

func detailMessages(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if s = strings.TrimSpace(s); s != "" {
			return []string{s}
		}
		return nil
	}
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return nil
	}
	var out []string
	for _, item := range items {
		var obj struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(item, &obj) == nil && strings.TrimSpace(obj.Msg) != "" {
			out = append(out, strings.TrimSpace(obj.Msg))
			continue
		}
		if json.Unmarshal(item, &s) == nil && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
