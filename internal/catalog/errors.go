package catalog

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/oskvr37/tiddl/internal/auth"
)

var (
	// ErrUnauthorized means the catalog rejected the bearer token and a
	// refresh did not fix it. Aborts the run.
	ErrUnauthorized = errors.New("catalog: unauthorized")

	// ErrNoStreamingPrivilege means the account may not stream right now,
	// typically because another device is playing. Aborts the run.
	ErrNoStreamingPrivilege = errors.New("catalog: no streaming privilege")

	// ErrTransientDecode marks a 200 response whose body was not valid JSON.
	ErrTransientDecode = errors.New("catalog: invalid json response")
)

// Sub-status codes with special handling.
const (
	SubStatusNoStreamingPrivilege = 4006
	// SubStatusInvalidJSON is synthesized when a 200 response never decoded.
	SubStatusInvalidJSON = -1
)

// APIError is a non-2xx catalog response, or a 200 that never decoded.
type APIError struct {
	Status      int    `json:"status"`
	SubStatus   int    `json:"subStatus"`
	UserMessage string `json:"userMessage"`
	Path        string `json:"-"`

	Err error `json:"-"`
}

func (e *APIError) Error() string {
	msg := e.UserMessage
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("catalog: %s: %s, %d/%d", e.Path, msg, e.Status, e.SubStatus)
}

// Unwrap exposes the sentinel matching the status so callers can use errors.Is.
func (e *APIError) Unwrap() []error {
	var errs []error
	if e.Status == http.StatusUnauthorized {
		errs = append(errs, ErrUnauthorized)
	}
	if e.SubStatus == SubStatusNoStreamingPrivilege {
		errs = append(errs, ErrNoStreamingPrivilege)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrNoStreamingPrivilege) ||
		errors.Is(err, auth.ErrNotAuthenticated)
}

// IsNotFound reports whether err is a 404 from the catalog.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
