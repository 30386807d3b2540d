package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// FieldError is one rejected field of a request body, named by its json key.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorDetails is the "details" object of an invalid_request response.
// JSON is set when the body itself could not be decoded.
type ErrorDetails struct {
	JSON   string       `json:"json,omitempty"`
	Field  string       `json:"field,omitempty"`
	Fields []FieldError `json:"fields,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

// BindJSON decodes and validates the body into out. On failure it has already
// written the error response and returns false.
func BindJSON(ctx *gin.Context, out any) bool {
	err := ctx.ShouldBindJSON(out)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		RespondError(ctx, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body is too large", nil)
		return false
	}

	RespondBadRequest(ctx, "Invalid request body", ValidationDetails(err, out))
	return false
}

// ValidationDetails describes a bind or validation failure on out. It accepts
// errors from gin's binder as well as from the registry's own validator.
func ValidationDetails(err error, out any) ErrorDetails {
	names := jsonNamesOf(out)

	var (
		verrs     validator.ValidationErrors
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)

	switch {
	case errors.As(err, &verrs):
		d := ErrorDetails{Fields: make([]FieldError, 0, len(verrs))}
		for _, fe := range verrs {
			d.Fields = append(d.Fields, FieldError{
				Field:   names.of(fe.StructField()),
				Rule:    fe.Tag(),
				Param:   fe.Param(),
				Message: ruleMessage(fe.Tag(), fe.Param()),
			})
		}
		return d

	case errors.Is(err, io.EOF):
		return ErrorDetails{JSON: "empty_body"}

	case errors.Is(err, io.ErrUnexpectedEOF), errors.As(err, &syntaxErr):
		return ErrorDetails{JSON: "invalid_json_syntax"}

	case errors.As(err, &typeErr):
		field := names.of(typeErr.Field)
		return ErrorDetails{
			JSON:  "invalid_json_type",
			Field: field,
			Fields: []FieldError{{
				Field:   field,
				Rule:    "type",
				Message: fmt.Sprintf("got a JSON %s, want %s", typeErr.Value, typeErr.Type),
			}},
		}
	}

	return ErrorDetails{Reason: err.Error()}
}

// jsonNames maps Go field names of a flat request struct to their json keys.
type jsonNames map[string]string

func jsonNamesOf(v any) jsonNames {
	names := jsonNames{}

	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return names
	}

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if name != "" && name != "-" {
			names[sf.Name] = name
		}
	}
	return names
}

// of falls back to field itself, which is already the json key for decode errors.
func (n jsonNames) of(field string) string {
	if name, ok := n[field]; ok {
		return name
	}
	return field
}

func ruleMessage(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + param + " characters"
	}

	if param != "" {
		return fmt.Sprintf("failed %s=%s", rule, param)
	}
	return "failed " + rule
}
