package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON field names instead of Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

// FieldError is a single violated constraint.
type FieldError struct {
	Field      string `json:"field"`           // JSON path, e.g. "messages[0].role"
	Constraint string `json:"constraint"`      // Human readable rule
	Value      any    `json:"value,omitempty"` // Offending value, when known
}

// ValidationError is returned for malformed or out-of-range request bodies.
// It is always a client error and never reaches the generation engine.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " " + f.Constraint
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// ParseChatCompletionRequest decodes body into a ChatCompletionRequest,
// applying defaults for absent or null fields, and validates it. Any failure
// is returned as a *ValidationError.
//
// Keys match field names exactly; a key differing only in case is ignored
// like any other unknown key. model and every message's content must be
// present and non-null, though either may be the empty string.
func ParseChatCompletionRequest(body []byte) (*ChatCompletionRequest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, decodeError(err)
	}

	req := NewChatCompletionRequest()
	d := &bodyDecoder{}

	if d.decode(fields, "model", "model", &req.Model) == absent {
		d.missing("model")
	}
	d.decode(fields, "temperature", "temperature", &req.Temperature)
	d.decode(fields, "max_tokens", "max_tokens", &req.MaxTokens)
	d.decode(fields, "stream", "stream", &req.Stream)

	var messages []map[string]json.RawMessage
	if d.decode(fields, "messages", "messages", &messages) == decoded {
		req.Messages = make([]Message, len(messages))
		for i, m := range messages {
			path := fmt.Sprintf("messages[%d]", i)
			d.decode(m, "role", path+".role", &req.Messages[i].Role)
			if d.decode(m, "content", path+".content", &req.Messages[i].Content) == absent {
				d.missing(path + ".content")
			}
		}
	}

	if len(d.typeErrs) > 0 {
		return nil, &ValidationError{Fields: d.typeErrs}
	}

	if err := req.Validate(); err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			return nil, err
		}
		verr.Fields = append(d.missingErrs, verr.Fields...)
		return nil, verr
	}
	if len(d.missingErrs) > 0 {
		return nil, &ValidationError{Fields: d.missingErrs}
	}

	return req, nil
}

type decodeResult int

const (
	absent decodeResult = iota
	decoded
	invalid
)

// bodyDecoder decodes request fields one key at a time, collecting type
// mismatches and missing required keys as it goes.
type bodyDecoder struct {
	typeErrs    []FieldError
	missingErrs []FieldError
}

// decode unmarshals obj[key] into dst. Absent and null keys leave dst as is.
func (d *bodyDecoder) decode(obj map[string]json.RawMessage, key, path string, dst any) decodeResult {
	raw, ok := obj[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return absent
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		fe := FieldError{Field: path, Constraint: "must be valid JSON: " + err.Error()}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			fe.Constraint = "must be of type " + jsonType(dst)
			fe.Value = typeErr.Value
		}
		d.typeErrs = append(d.typeErrs, fe)
		return invalid
	}
	return decoded
}

func (d *bodyDecoder) missing(path string) {
	d.missingErrs = append(d.missingErrs, FieldError{Field: path, Constraint: constraint("required", "")})
}

// jsonType names the JSON type expected by dst.
func jsonType(dst any) string {
	switch dst.(type) {
	case *string:
		return "string"
	case *bool:
		return "boolean"
	case *int:
		return "integer"
	case *float64:
		return "number"
	case *[]map[string]json.RawMessage:
		return "array of objects"
	default:
		return reflect.TypeOf(dst).Elem().String()
	}
}

// Validate checks the request against the schema constraints.
func (r *ChatCompletionRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating request: %w", err)
	}

	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:      fieldPath(fe.Namespace()),
			Constraint: constraint(fe.Tag(), fe.Param()),
			Value:      fe.Value(),
		})
	}
	return out
}

func decodeError(err error) *ValidationError {
	return &ValidationError{Fields: []FieldError{{
		Field:      "body",
		Constraint: "must be a valid JSON object: " + err.Error(),
	}}}
}

// fieldPath strips the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func constraint(tag, param string) string {
	switch tag {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + strings.Join(strings.Fields(param), ", ")
	case "min":
		return "must contain at least " + param + " item(s)"
	case "gt":
		return "must be greater than " + param
	case "gte":
		return "must be greater than or equal to " + param
	case "lte":
		return "must be less than or equal to " + param
	default:
		return "failed " + tag + " " + param
	}
}
