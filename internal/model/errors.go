package model

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized marks a response in which the server no longer accepts the
// session. Any call failing this way moves the session to anonymous.
var ErrUnauthorized = errors.New("not authenticated")

// Fallback messages shown when the server supplies none.
const (
	MsgLoginFailed  = "Login failed."
	MsgLoginError   = "An error occurred. Please try again."
	MsgSignupFailed = "Registration failed."
	MsgTradeFailed  = "Trade failed"
)

// AuthError is a credential rejection.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return MsgLoginFailed
	}
	return e.Message
}

// RejectedError is a business rejection reported in the server payload.
type RejectedError struct {
	Reason string
	Status int
}

func (e *RejectedError) Error() string {
	if e.Reason == "" {
		return MsgTradeFailed
	}
	return e.Reason
}

func (e *RejectedError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// TransportError means no usable response arrived: the request failed, or
// the body could not be understood.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
