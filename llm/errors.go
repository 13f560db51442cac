package llm

import "fmt"

// ConfigError is a fatal configuration problem, such as a missing API key.
// It is never retried and terminates the call chain immediately.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

// APIError is a non-success response from the model endpoint. Transient
// statuses (429 and most 5xx) are retried before one of these surfaces.
type APIError struct {
	Status  int
	Body    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("OpenAI HTTP %d: %s", e.Status, e.Body)
}

// retryableStatus reports whether an HTTP status is worth retrying.
func retryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}
