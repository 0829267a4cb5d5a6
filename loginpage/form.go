package loginpage

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MinIdentifierLength = 3
	MinPasswordLength   = 6
)

var ErrInvalidForm = errors.New("invalid login form")

// ValidateForm applies the login form's field rules: both fields required,
// identifier at least 3 characters, password at least 6.
func ValidateForm(identifier, password string) error {
	var problems []string
	switch id := strings.TrimSpace(identifier); {
	case id == "":
		problems = append(problems, "identifier is required")
	case utf8.RuneCountInString(id) < MinIdentifierLength:
		problems = append(problems, fmt.Sprintf("identifier must be at least %d characters", MinIdentifierLength))
	}
	switch {
	case password == "":
		problems = append(problems, "password is required")
	case utf8.RuneCountInString(password) < MinPasswordLength:
		problems = append(problems, fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidForm, strings.Join(problems, "; "))
}
