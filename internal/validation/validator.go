// Package validation collects field errors from explicit, composable rules.
//
//	v := validation.New()
//	v.Required("username", in.Username).MinLength("username", in.Username, 3)
//	if err := v.Err(); err != nil {
//	    return err
//	}
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"orgdesk.org/internal/apperr"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func engine() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validator accumulates field errors. Only the first failure per field is kept.
type Validator struct {
	fields []apperr.FieldError
	failed map[string]bool
}

// New returns an empty Validator.
func New() *Validator {
	return &Validator{failed: make(map[string]bool)}
}

func (v *Validator) check(field, tag string, value any, message string) *Validator {
	if v.failed[field] {
		return v
	}
	if err := engine().Var(value, tag); err != nil {
		v.add(field, message)
	}
	return v
}

func (v *Validator) add(field, message string) {
	v.failed[field] = true
	v.fields = append(v.fields, apperr.FieldError{Field: field, Message: message})
}

// Required rejects empty or whitespace-only strings.
func (v *Validator) Required(field, value string) *Validator {
	return v.check(field, "required", strings.TrimSpace(value), field+" should not be empty")
}

// MinLength rejects strings shorter than n characters.
func (v *Validator) MinLength(field, value string, n int) *Validator {
	return v.check(field, fmt.Sprintf("min=%d", n), value,
		fmt.Sprintf("%s must be longer than or equal to %d characters", field, n))
}

// MaxLength rejects strings longer than n characters.
func (v *Validator) MaxLength(field, value string, n int) *Validator {
	return v.check(field, fmt.Sprintf("max=%d", n), value,
		fmt.Sprintf("%s must be shorter than or equal to %d characters", field, n))
}

// Positive rejects ids below 1.
func (v *Validator) Positive(field string, value int64) *Validator {
	return v.check(field, "gte=1", value, field+" must not be less than 1")
}

// Matches rejects values not matching re.
func (v *Validator) Matches(field, value string, re *regexp.Regexp, message string) *Validator {
	if v.failed[field] {
		return v
	}
	if !re.MatchString(value) {
		v.add(field, message)
	}
	return v
}

// Fields returns collected field errors.
func (v *Validator) Fields() []apperr.FieldError {
	out := make([]apperr.FieldError, len(v.fields))
	copy(out, v.fields)
	return out
}

// Err returns a validation error when any rule failed.
func (v *Validator) Err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return apperr.Validation(v.fields[0].Message, v.Fields()...)
}
