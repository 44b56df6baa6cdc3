// Package apperr provides the error taxonomy shared across the query engine.
// It offers consistent error wrapping and classification so the HTTP boundary
// can map an error to a status code without inspecting its text.
package apperr

import (
	"fmt"
	"log"
	"runtime"
	"strings"
)

// Op names the operation that failed, e.g. "manhattan.Bin" or "region.GetRegion".
type Op string

// Kind categorizes an error per the taxonomy in the error handling design.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindNotFound
	KindBadRequest
	KindInputOrderViolation
	KindUnknownChromosome
	KindMalformedRow
	KindFieldParseError
	KindMissingRequiredField
	KindRegionReadError
	KindIndexReadError
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	case KindInputOrderViolation:
		return "input_order_violation"
	case KindUnknownChromosome:
		return "unknown_chromosome"
	case KindMalformedRow:
		return "malformed_row"
	case KindFieldParseError:
		return "field_parse_error"
	case KindMissingRequiredField:
		return "missing_required_field"
	case KindRegionReadError:
		return "region_read_error"
	case KindIndexReadError:
		return "index_read_error"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Fatal reports whether errors of this kind abort the enclosing iterator or
// request rather than being treated as a lookup miss.
func (k Kind) Fatal() bool {
	switch k {
	case KindNotFound, KindBadRequest:
		return false
	default:
		return true
	}
}

// Error is an application error carrying operation, kind, and cause.
type Error struct {
	Op   Op
	Kind Kind
	Err  error
	Msg  string
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(string(e.Op))
		b.WriteString(": ")
	}
	if e.Msg != "" {
		b.WriteString(e.Msg)
		if e.Err != nil {
			b.WriteString(": ")
		}
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an Error from a mix of Op, Kind, error, and string arguments.
func E(args ...interface{}) *Error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = a
		case Kind:
			e.Kind = a
		case error:
			e.Err = a
		case string:
			e.Msg = a
		}
	}
	return e
}

// Wrap attaches an operation name to an error for context. Returns nil for a
// nil err so call sites can write `return apperr.Wrap(op, err)` unconditionally.
func Wrap(op Op, err error) error {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*Error); ok {
		return &Error{Op: op, Kind: ae.Kind, Err: ae}
	}
	return &Error{Op: op, Err: err}
}

// WrapMsg is Wrap plus an additional context message.
func WrapMsg(op Op, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Msg: msg, Err: err}
}

// IsKind reports whether err (or a wrapped *Error in its chain) has the given kind.
func IsKind(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// GetKind returns the Kind of err, unwrapping nested *Error values, or KindUnknown.
func GetKind(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind != KindUnknown {
				return e.Kind
			}
			err = e.Err
			continue
		}
		return KindUnknown
	}
	return KindUnknown
}

// Must panics if err is non-nil. Reserved for startup-only invariants that
// should never fail once the on-disk inputs have been validated once.
func Must[T any](v T, err error) T {
	if err != nil {
		panic(fmt.Sprintf("unexpected error: %v", err))
	}
	return v
}

// SkipCounter tracks rows skipped during a lenient scan so the skip is
// visible in logs instead of silently disappearing.
type SkipCounter struct {
	Op      string
	Count   int
	LastErr error
}

func NewSkipCounter(op string) *SkipCounter { return &SkipCounter{Op: op} }

func (s *SkipCounter) Skip(err error) {
	s.Count++
	s.LastErr = err
}

func (s *SkipCounter) Report() {
	if s.Count > 0 {
		log.Printf("warning: %s skipped %d rows (last error: %v)", s.Op, s.Count, s.LastErr)
	}
}

// LogAndContinue logs an error with the caller's file:line and returns,
// replacing a silent `continue` with a visible one.
func LogAndContinue(operation string, err error) {
	_, file, line, ok := runtime.Caller(1)
	if ok {
		if idx := strings.LastIndex(file, "/"); idx >= 0 {
			file = file[idx+1:]
		}
		log.Printf("warning [%s:%d]: %s failed: %v", file, line, operation, err)
	} else {
		log.Printf("warning: %s failed: %v", operation, err)
	}
}
