package channel

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"autocatch/internal/domain"
)

var (
	// ErrUnauthorized means the platform rejected the token. It is fatal for
	// a running source.
	ErrUnauthorized = domain.ErrUnauthorized
	// ErrRateLimited is returned for HTTP 429.
	ErrRateLimited = errors.New("rate limited")
)

// APIError is a non-2xx response from a REST endpoint.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Body)
}

// Is maps status codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		// Discord answers a wrong email or password with 400.
		return e.Status == http.StatusUnauthorized ||
			(e.Op == opLogin && e.Status == http.StatusBadRequest)
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	}
	return false
}

// wrapDiscordErr converts a discordgo REST failure into an APIError so
// callers can match the sentinels.
func wrapDiscordErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return &APIError{Op: op, Status: restErr.Response.StatusCode, Body: string(restErr.ResponseBody)}
	}
	return fmt.Errorf("%s: %w", op, err)
}
