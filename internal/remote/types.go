package remote

import (
	"context"
	"net/http"
)

// Request is one outbound HTTP call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response is the status and body of a completed call.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport issues a single request. The error is non-nil only when no
// HTTP response was obtained.
type Transport interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// IsConflict reports the version-conflict status.
func IsConflict(status int) bool {
	return status == http.StatusConflict
}

// IsTransient reports statuses worth retrying unchanged on a later run.
func IsTransient(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return status >= 500
}
