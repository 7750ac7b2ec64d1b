// Package parse extracts and validates the JSON object embedded in a model
// response.
package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Kind distinguishes why a response could not be used.
type Kind string

const (
	// KindNoJSON means no object could be located in the text.
	KindNoJSON Kind = "no_json"
	// KindInvalidJSON means an object was found but did not decode.
	KindInvalidJSON Kind = "invalid_json"
	// KindMissingFields means the object decoded but lacks required fields.
	KindMissingFields Kind = "missing_fields"
)

// ParseError reports a response that could not be turned into a typed result.
type ParseError struct {
	Kind   Kind
	Fields []string
	Err    error
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case KindNoJSON:
		return "parse: no JSON object in response"
	case KindMissingFields:
		return "parse: missing required fields: " + strings.Join(e.Fields, ", ")
	default:
		return fmt.Sprintf("parse: invalid JSON: %v", e.Err)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsKind reports whether err is a *ParseError of the given kind.
func IsKind(err error, kind Kind) bool {
	var pe *ParseError
	return errors.As(err, &pe) && pe.Kind == kind
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ExtractJSON returns the text between the first '{' and the last '}',
// preferring the body of a fenced code block when one is present.
func ExtractJSON(text string) (string, error) {
	if body, ok := fencedBody(text); ok {
		text = body
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", &ParseError{Kind: KindNoJSON}
	}
	return text[start : end+1], nil
}

// fencedBody returns the contents of the first ``` block that holds a '{'.
func fencedBody(text string) (string, bool) {
	rest := text
	for {
		open := strings.Index(rest, "```")
		if open < 0 {
			return "", false
		}
		rest = rest[open+3:]
		// Skip the info string ("json") up to the end of the line.
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		closing := strings.Index(rest, "```")
		if closing < 0 {
			return "", false
		}
		body := rest[:closing]
		if strings.Contains(body, "{") {
			return body, true
		}
		rest = rest[closing+3:]
	}
}

// decode extracts, unmarshals and validates text into out.
func decode(text string, out any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return &ParseError{Kind: KindInvalidJSON, Err: err}
	}
	return check(out)
}

// check runs struct validation and maps failures to KindMissingFields.
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ParseError{Kind: KindInvalidJSON, Err: err}
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fieldPath(fe.Namespace()))
	}
	return &ParseError{Kind: KindMissingFields, Fields: fields, Err: err}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// Date decodes "YYYY-MM-DD" or RFC 3339. Empty, null and unrecognised values
// decode to the zero time so one bad date doesn't discard a whole response.
type Date struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	d.Time, _ = ParseDate(s)
	return nil
}

// Ptr returns nil for the zero date.
func (d Date) Ptr() *time.Time {
	if d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

// ParseDate accepts the date formats the model is asked to use. Date-only
// values are UTC midnight.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return time.Time{}, false
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}
