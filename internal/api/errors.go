package api

import (
	"errors"
	"fmt"
)

// AuthError indicates that authentication has failed or expired.
// It is returned when the API answers 401.
type AuthError struct {
	Method  string
	Path    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error on %s %s: %s", e.Method, e.Path, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// StatusError is returned for any other non-2xx response.
type StatusError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d on %s %s: %s", e.StatusCode, e.Method, e.Path, e.Body)
}

// apiErrorBody is the error envelope used by the backend.
type apiErrorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func (b apiErrorBody) message() string {
	if b.Detail != "" {
		return b.Detail
	}
	return b.Error
}
