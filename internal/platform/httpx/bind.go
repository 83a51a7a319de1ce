package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// FieldError names one invalid request field.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ValidationProblem is a problem detail carrying field errors.
type ValidationProblem struct {
	ProblemDetail
	Errors []FieldError `json:"errors,omitempty"`
}

// BindError reports a malformed or invalid request body.
type BindError struct {
	Fields []FieldError
	Err    error
}

func (e *BindError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("invalid request body: %v", e.Err)
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Rule)
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

func (e *BindError) Unwrap() error {
	return ErrValidation
}

// Bind decodes the JSON body into target and validates its struct tags.
func Bind(r *http.Request, target any) error {
	if err := DecodeJSON(r, target); err != nil {
		return &BindError{Err: err}
	}
	if err := validate.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &BindError{Err: err}
		}
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fe.Namespace(), Rule: fe.Tag()})
		}
		return &BindError{Fields: fields, Err: err}
	}
	return nil
}

// RespondBindError writes a 400 problem listing the invalid fields.
func RespondBindError(w http.ResponseWriter, err error) {
	var be *BindError
	if !errors.As(err, &be) {
		RespondError(w, err)
		return
	}
	JSON(w, http.StatusBadRequest, ValidationProblem{
		ProblemDetail: ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Detail: be.Error()},
		Errors:        be.Fields,
	})
}
