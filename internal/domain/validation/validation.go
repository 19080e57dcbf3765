// Package validation accumulates field-level failures for entity drafts.
package validation

import (
	"strconv"
	"strings"

	"github.com/go-faster/errors"
)

// Base is the field name used for failures that do not belong to a single
// attribute.
const Base = "base"

// Common messages shared by entity validators.
const (
	MsgBlank       = "can't be blank"
	MsgMustExist   = "must exist"
	MsgTaken       = "has already been taken"
	MsgNotANumber  = "is not a number"
	MsgNotInList   = "is not included in the list"
	MsgPositive    = "must be greater than 0"
	MsgNonNegative = "must be greater than or equal to 0"
	MsgInactive    = "must be active"
)

// MsgTooLarge reports an upper bound.
func MsgTooLarge(limit int64) string {
	return "must be less than or equal to " + strconv.FormatInt(limit, 10)
}

// FieldError is a single failed constraint.
type FieldError struct {
	Field   string
	Message string
}

// FullMessage renders the failure the way it is shown to API clients:
// base messages verbatim, attribute messages prefixed by the humanized field.
func (f FieldError) FullMessage() string {
	if f.Field == Base {
		return f.Message
	}
	return humanize(f.Field) + " " + f.Message
}

// Error is returned when a draft fails one or more constraints. It never
// accompanies a partially applied mutation.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	return Sentence(e.FullMessages())
}

// FullMessages returns the rendered message of every failure, in the order
// they were recorded.
func (e *Error) FullMessages() []string {
	out := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		out[i] = f.FullMessage()
	}
	return out
}

// On returns the messages recorded for field.
func (e *Error) On(field string) []string {
	var out []string
	for _, f := range e.Fields {
		if f.Field == field {
			out = append(out, f.Message)
		}
	}
	return out
}

// Set collects failures without short-circuiting.
type Set struct {
	fields []FieldError
}

// Add records a failure on field.
func (s *Set) Add(field, msg string) {
	s.fields = append(s.fields, FieldError{Field: field, Message: msg})
}

// Merge appends the failures of err when it is an *Error. Other errors are
// ignored.
func (s *Set) Merge(err error) {
	var verr *Error
	if errors.As(err, &verr) {
		s.fields = append(s.fields, verr.Fields...)
	}
}

// Err returns a *Error when anything was recorded, nil otherwise.
func (s *Set) Err() error {
	if len(s.fields) == 0 {
		return nil
	}
	fields := make([]FieldError, len(s.fields))
	copy(fields, s.fields)
	return &Error{Fields: fields}
}

// Single is a shorthand for a one-failure *Error.
func Single(field, msg string) error {
	return &Error{Fields: []FieldError{{Field: field, Message: msg}}}
}

// Sentence joins parts as "a", "a and b", "a, b, and c".
func Sentence(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + ", and " + parts[len(parts)-1]
	}
}

func humanize(field string) string {
	s := strings.TrimSuffix(field, "_id")
	s = strings.ReplaceAll(s, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
