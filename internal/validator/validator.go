// Package validator checks request payloads and uploaded files.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/Kevjes/liberal-api/internal/apperr"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
)

var contactPattern = regexp.MustCompile(`^\+?[0-9][0-9 ().-]{2,49}$`)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New()

	// report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	// Custom validators
	v.RegisterValidation("notblank", validateNotBlank)
	v.RegisterValidation("contact", validateContact)

	return &Validator{validate: v}
}

// Validate returns a BadRequest error describing every failed field.
func (v *Validator) Validate(i interface{}) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.BadRequest("invalid payload: %v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return apperr.BadRequest("%s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "contact":
		return fmt.Sprintf("%s must be a phone number", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
	}
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func validateContact(fl validator.FieldLevel) bool {
	return contactPattern.MatchString(strings.TrimSpace(fl.Field().String()))
}

// DetectImage sniffs the content type of an upload and checks it against allowed.
// It returns the detected MIME type and its usual file extension.
func DetectImage(head []byte, allowed []string) (string, string, error) {
	if len(head) == 0 {
		return "", "", apperr.BadRequest("uploaded file is empty")
	}
	mt := mimetype.Detect(head)
	if !slices.ContainsFunc(allowed, func(a string) bool { return mt.Is(a) }) {
		return "", "", apperr.BadRequest("file type %s is not allowed, expected one of %s",
			mt.String(), strings.Join(allowed, ", "))
	}
	return mt.String(), mt.Extension(), nil
}

// Email checks a single address.
func (v *Validator) Email(address string) error {
	if err := v.validate.Var(address, "required,email"); err != nil {
		return apperr.BadRequest("%q is not a valid email address", address)
	}
	return nil
}
