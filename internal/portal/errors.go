package portal

import (
	"fmt"
	"net/http"

	"github.com/stemsi/exstem-exam-client/internal/response"
)

// APIError is a non-2xx portal response.
type APIError struct {
	Status    int
	Code      response.ErrCode
	Message   string
	Fields    map[string]string
	RequestID string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("portal %d %s: %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("portal %d: %s", e.Status, msg)
}

// Temporary reports whether retrying the same request could succeed.
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}
