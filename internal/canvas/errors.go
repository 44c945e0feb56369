package canvas

import "fmt"

// APIError is a non-2xx response from the LMS. Transient classes (429, 5xx)
// are retried inside the client before one of these surfaces; any other 4xx
// surfaces immediately.
type APIError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Transient reports whether the error class is retryable.
func (e *APIError) Transient() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
