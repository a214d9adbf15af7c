package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tidyhome/scheduler/services/scheduling-service/internal/apperr"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/model"
)

type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation("clock", validateClock)
	_ = v.RegisterValidation("rfc3339", validateRFC3339)
	return &requestValidator{validate: v}
}

func validateClock(fl validator.FieldLevel) bool {
	_, err := model.ParseClock(strings.TrimSpace(fl.Field().String()))
	return err == nil
}

func validateRFC3339(fl validator.FieldLevel) bool {
	_, err := time.Parse(time.RFC3339, strings.TrimSpace(fl.Field().String()))
	return err == nil
}

// Struct validates v and converts failures into a single validation error
// listing every offending field.
func (rv *requestValidator) Struct(v any) error {
	err := rv.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("invalid request")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return apperr.Validation("%s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must have at most %s items", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "clock":
		return fmt.Sprintf("%s must be HH:MM", field)
	case "rfc3339":
		return fmt.Sprintf("%s must be an RFC3339 timestamp", field)
	case "email":
		return fmt.Sprintf("%s must be an email address", field)
	case "uuid":
		return fmt.Sprintf("%s must be a uuid", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func (rv *requestValidator) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("request body too large")
		}
		return apperr.Validation("invalid json body")
	}
	return rv.Struct(dst)
}

func parseTime(field, raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, apperr.Validation("%s must be an RFC3339 timestamp", field)
	}
	return t, nil
}

// optionalTime parses a query parameter that may be absent.
func optionalTime(r *http.Request, field string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(field))
	if raw == "" {
		return nil, nil
	}
	t, err := parseTime(field, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
