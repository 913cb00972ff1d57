package lessonapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind classifies a failed API call.
type Kind string

// Error kinds.
const (
	KindUnauthorized    Kind = "unauthorized"
	KindEndpointMissing Kind = "endpoint_missing"
	KindQuotaExhausted  Kind = "quota_exhausted"
	KindTimeout         Kind = "timeout"
	KindNetwork         Kind = "network"
	KindCORS            Kind = "cors"
	KindServer          Kind = "server"
)

// APIError is returned for every failed API call.
type APIError struct {
	Kind   Kind
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("lesson api %s (%d): %s", e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("lesson api %s: %s", e.Kind, e.Detail)
}

// IsKind reports whether err is an *APIError of kind k.
func IsKind(err error, k Kind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == k
}

func statusError(status int, body []byte) *APIError {
	detail := http.StatusText(status)
	var payload struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Detail != "" {
		detail = payload.Detail
	}
	kind := KindServer
	switch status {
	case http.StatusUnauthorized:
		kind = KindUnauthorized
	case http.StatusNotFound:
		kind = KindEndpointMissing
	case http.StatusTooManyRequests:
		kind = KindQuotaExhausted
	case http.StatusForbidden:
		// The API answers 403 when the calling origin is not allowed.
		kind = KindCORS
	}
	return &APIError{Kind: kind, Status: status, Detail: detail}
}

func transportError(err error) *APIError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &APIError{Kind: KindTimeout, Detail: err.Error()}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &APIError{Kind: KindTimeout, Detail: err.Error()}
	}
	if strings.Contains(err.Error(), "Client.Timeout") {
		return &APIError{Kind: KindTimeout, Detail: err.Error()}
	}
	return &APIError{Kind: KindNetwork, Detail: err.Error()}
}
