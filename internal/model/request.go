package model

import (
	"fmt"
	"strings"
)

type LoginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Identifier returns whichever of username or email was supplied.
func (r LoginRequest) Identifier() string {
	if u := strings.TrimSpace(r.Username); u != "" {
		return u
	}
	return strings.TrimSpace(r.Email)
}

func (r LoginRequest) Validate() error {
	if r.Identifier() == "" {
		return fmt.Errorf("%w: username or email is required", ErrInvalidInput)
	}
	if r.Password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	return nil
}
