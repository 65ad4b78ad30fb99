package paypal

import "fmt"

// apiError is a non-2xx processor response. Rate limits, timeouts, and
// server-side failures are retryable; everything else (bad request, auth,
// business rejection) is not.
type apiError struct {
	Status    int
	Body      string
	transient bool
}

func newAPIError(status int, body string) *apiError {
	return &apiError{Status: status, Body: body}
}

func (e *apiError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("processor request failed: %s", e.Body)
	}
	return fmt.Sprintf("processor returned status %d: %s", e.Status, e.Body)
}

// Retryable reports whether a later retry of the same request may succeed.
func (e *apiError) Retryable() bool {
	if e.transient {
		return true
	}
	switch e.Status {
	case 408, 429:
		return true
	}
	return e.Status >= 500
}
