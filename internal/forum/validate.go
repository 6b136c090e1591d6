package forum

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode/utf16"

	"github.com/go-playground/validator/v10"
)

// Signup is a registration request as entered by a user.
type Signup struct {
	Username string `json:"username" validate:"required,utf16min=3"`
	Password string `json:"password" validate:"required,utf16min=4"`
	Confirm  string `json:"confirm" validate:"eqfield=Password"`
}

// Post is the body of a new question or answer.
type Post struct {
	Content string `json:"content" validate:"required"`
}

// ValidationError describes the first rule a request broke, in words fit
// for an end user.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		if err := validate.RegisterValidation("utf16min", utf16Min); err != nil {
			panic(err)
		}
	})
	return validate
}

// ValidateSignup trims the username and checks the registration rules.
func ValidateSignup(s *Signup) error {
	s.Username = strings.TrimSpace(s.Username)
	return translate(getValidator().Struct(s))
}

func validatePost(p Post) error {
	p.Content = strings.TrimSpace(p.Content)
	return translate(getValidator().Struct(p))
}

// utf16Min checks length in UTF-16 code units, so a character outside the
// BMP counts twice.
func utf16Min(fl validator.FieldLevel) bool {
	n, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(utf16.Encode([]rune(fl.Field().String()))) >= n
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: field, Message: fmt.Sprintf("%s must not be empty", strings.ToLower(field))}
	case "min", "utf16min":
		return &ValidationError{Field: field, Message: fmt.Sprintf("%s must be at least %s characters", strings.ToLower(field), fe.Param())}
	case "eqfield":
		return &ValidationError{Field: field, Message: "passwords do not match"}
	default:
		return &ValidationError{Field: field, Message: fmt.Sprintf("%s is invalid", strings.ToLower(field))}
	}
}
