package session

import (
	"context"
	"strings"

	"apex-trader/internal/model"
)

// FormError is a signup form problem found before any network call.
type FormError struct {
	Field   string
	Message string
}

func (e *FormError) Error() string { return e.Message }

// ValidateSignup checks the form the way the signup screen does: every
// field is required and both passwords must match.
func ValidateSignup(f model.SignupForm) error {
	required := []struct {
		field string
		value string
	}{
		{"firstname", f.FirstName},
		{"lastname", f.LastName},
		{"username", f.Username},
		{"email", f.Email},
		{"password", f.Password},
		{"confirmPassword", f.ConfirmPassword},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &FormError{Field: r.field, Message: r.field + " is required."}
		}
	}
	if !strings.Contains(f.Email, "@") {
		return &FormError{Field: "email", Message: "A valid email address is required."}
	}
	if f.Password != f.ConfirmPassword {
		return &FormError{Field: "confirmPassword", Message: "Passwords don't match."}
	}
	return nil
}

// Signup registers a new account. It does not log the user in.
func (s *Store) Signup(ctx context.Context, form model.SignupForm) error {
	if err := ValidateSignup(form); err != nil {
		return err
	}
	return s.auth.Signup(ctx, form)
}
