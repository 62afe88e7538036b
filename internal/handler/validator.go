package handler

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/task-manager/internal/apperr"
)

// Validator adapts go-playground/validator to echo.Validator.  Field names
// in errors are the JSON names.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	_ = v.RegisterValidation("strongpassword", strongPassword)
	_ = v.RegisterValidation("isodate", isoDate)
	_ = v.RegisterValidation("notpast", notPast)
	return &Validator{v: v}
}

// Validate implements echo.Validator.  Failures come back as a
// ValidationFailed error listing every bad field.
func (cv *Validator) Validate(i any) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Internal(err)
	}
	fields := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperr.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return apperr.Validation(fields...)
}

// fieldMessages maps "field.tag" to the message shown to clients.
var fieldMessages = map[string]string{
	"name.required":           "Name is required",
	"name.min":                "Name must be between 2 and 50 characters",
	"name.max":                "Name must be between 2 and 50 characters",
	"email.required":          "Email is required",
	"email.email":             "Please provide a valid email",
	"password.required":       "Password is required",
	"password.min":            "Password must be at least 6 characters",
	"password.strongpassword": "Password must contain at least one uppercase letter, one lowercase letter, and one number",
	"title.required":          "Task title is required",
	"title.min":               "Title must be between 3 and 100 characters",
	"title.max":               "Title must be between 3 and 100 characters",
	"description.max":         "Description cannot exceed 500 characters",
	"status.oneof":            "Invalid status",
	"priority.oneof":          "Invalid priority",
	"dueDate.isodate":         "Invalid date format",
	"dueDate.notpast":         "Due date cannot be in the past",
	"tags.max":                "Tags cannot exceed 20 entries",
	"role.oneof":              "Invalid role",
	"refreshToken.required":   "Refresh token is required",
	"page.min":                "Page must be a positive number",
	"limit.min":               "Limit must be a positive number",
}

func fieldMessage(fe validator.FieldError) string {
	if msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]; ok {
		return msg
	}
	return "Invalid value for " + fe.Field()
}

// strongPassword requires a lower-case letter, an upper-case letter and a digit.
func strongPassword(fl validator.FieldLevel) bool {
	var lower, upper, digit bool
	for _, r := range fl.Field().String() {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return lower && upper && digit
}

func isoDate(fl validator.FieldLevel) bool {
	_, err := parseDate(fl.Field().String())
	return err == nil
}

// notPast accepts dates from the start of today (UTC) onwards.
func notPast(fl validator.FieldLevel) bool {
	t, err := parseDate(fl.Field().String())
	if err != nil {
		return false
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	return !t.Before(today)
}

// parseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	return t.UTC(), err
}

// bindAndValidate decodes the request into req, runs prepare (for
// trimming and normalization) and validates the result.
func bindAndValidate[T any](c echo.Context, req *T, prepare func(*T)) error {
	if err := c.Bind(req); err != nil {
		return bindError(err)
	}
	if prepare != nil {
		prepare(req)
	}
	return c.Validate(req)
}

func bindError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Internal != nil {
		err = he.Internal
	}
	var ute *json.UnmarshalTypeError
	if errors.As(err, &ute) && ute.Field != "" {
		msg := "Invalid value for " + ute.Field
		if ute.Field == "tags" {
			msg = "Tags must be an array"
		}
		return apperr.Validation(apperr.FieldError{Field: ute.Field, Message: msg})
	}
	return apperr.Validation(apperr.FieldError{Field: "body", Message: "Invalid request body"})
}

func trimPtr(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}

func lowerPtr(s *string) {
	if s != nil {
		*s = strings.ToLower(strings.TrimSpace(*s))
	}
}
