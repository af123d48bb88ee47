// Package errors normalises error values into short class names for metric tags.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"
)

// Well-known classes that take precedence over the concrete type name.
const (
	ClassCanceled         = "canceled"
	ClassDeadlineExceeded = "deadline_exceeded"
	ClassUnknown          = "unknown"
)

// Classify returns a normalized error class suitable for tagging metrics and logs.
// Context errors map to fixed classes; anything else is named after the innermost
// concrete type, e.g. "pgconn_pgerror" or "exec_exiterror".
func Classify(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case goerrors.Is(err, context.Canceled):
		return ClassCanceled
	case goerrors.Is(err, context.DeadlineExceeded):
		return ClassDeadlineExceeded
	}

	for {
		inner := goerrors.Unwrap(err)
		if inner == nil {
			break
		}
		err = inner
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ClassUnknown
	}
	name := strings.ToLower(strings.ReplaceAll(t.String(), ".", "_"))
	if name == "" {
		return ClassUnknown
	}
	return name
}
