package httpx

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/clubspace/clubspace/internal/shared"
)

// Sentinel errors for the domain layer. The not-found and forbidden values
// alias shared so repositories need not import httpx.
var (
	ErrNotFound     = shared.ErrNotFound
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = shared.ErrForbidden
	ErrUnauthorized = errors.New("unauthorized")
)

// Messages shown to clients for auth failures. They stay generic on purpose.
const (
	MsgUnauthorized = "authentication required"
	MsgForbidden    = "forbidden"
	MsgInternal     = "internal server error"
)

// ValidationError carries field-level messages for a 400 response.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Fields, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError from one or more field messages.
func Invalid(fields ...string) error {
	return &ValidationError{Fields: fields}
}

// NewValidator returns a validator that reports fields by their json name.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate runs validator struct tags and converts failures into a
// ValidationError with one message per field.
func Validate(v *validator.Validate, payload any) error {
	err := v.Struct(payload)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fieldMessage(fe))
	}
	return &ValidationError{Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "email":
		return name + " must be a valid email"
	case "uuid", "uuid4":
		return name + " must be a valid uuid"
	case "oneof":
		return name + " must be one of [" + fe.Param() + "]"
	case "max":
		return name + " must be at most " + fe.Param() + " characters"
	case "min":
		return name + " must be at least " + fe.Param() + " characters"
	case "gtfield":
		return name + " must be after " + fe.Param()
	default:
		return name + " is invalid"
	}
}

// RespondError maps domain errors to HTTP responses using the API envelope.
// Unexpected errors are logged and reported as a bare 500.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		Fail(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, ErrValidation):
		Fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		Fail(w, http.StatusNotFound, "not found")
	case errors.Is(err, ErrDuplicate):
		Fail(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrForbidden):
		Fail(w, http.StatusForbidden, MsgForbidden)
	case errors.Is(err, ErrUnauthorized):
		Fail(w, http.StatusUnauthorized, MsgUnauthorized)
	default:
		if logger != nil {
			logger.Error("unhandled request error", slog.Any("error", err))
		}
		Fail(w, http.StatusInternalServerError, MsgInternal)
	}
}
