package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			if result := test.class.String(); result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"connection lost", ErrConnectionLost, true},
		{"storage unavailable", ErrStorageUnavailable, true},
		{"wrapped storage unavailable", fmt.Errorf("set: %w", ErrStorageUnavailable), true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"dial refused", fmt.Errorf("dial tcp 127.0.0.1:6379: connect: connection refused"), true},
		{"invalid data", ErrInvalidData, false},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("timeout")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if result := IsTransient(test.err); result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"missing config", ErrMissingConfig, true},
		{"closed", ErrClosed, true},
		{"connection timeout", ErrConnectionTimeout, false},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if result := IsFatal(test.err); result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"invalid data", ErrInvalidData, true},
		{"parsing failed", ErrParsingFailed, true},
		{"invalid config", ErrInvalidConfig, true},
		{"connection timeout", ErrConnectionTimeout, false},
		{"classified invalid", &ClassifiedError{Class: ErrorInvalid, Err: fmt.Errorf("test")}, true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if result := IsInvalid(test.err); result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"nil error", nil, ErrorTransient},
		{"connection timeout", ErrConnectionTimeout, ErrorTransient},
		{"invalid config", ErrInvalidConfig, ErrorInvalid},
		{"missing config", ErrMissingConfig, ErrorFatal},
		{"unknown error", fmt.Errorf("unknown error"), ErrorTransient},
		{"classified error", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, ErrorFatal},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if result := Classify(test.err); result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestClassifiedError(t *testing.T) {
	baseErr := fmt.Errorf("base error")
	ce := newClassified(ErrorTransient, baseErr, "redisstore", "SetIfAbsent", "custom message")

	if ce.Class != ErrorTransient {
		t.Errorf("expected ErrorTransient, got %v", ce.Class)
	}
	if ce.Component != "redisstore" {
		t.Errorf("expected redisstore, got %s", ce.Component)
	}
	if ce.Operation != "SetIfAbsent" {
		t.Errorf("expected SetIfAbsent, got %s", ce.Operation)
	}
	if ce.Error() != "custom message" {
		t.Errorf("expected 'custom message', got %s", ce.Error())
	}
	if !errors.Is(ce, baseErr) {
		t.Error("classified error should unwrap to base error")
	}
}

func TestClassifiedError_NoMessage(t *testing.T) {
	ce := newClassified(ErrorTransient, fmt.Errorf("base error"), "c", "o", "")
	if ce.Error() != "base error" {
		t.Errorf("expected 'base error', got %s", ce.Error())
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "component", "method", "action") != nil {
		t.Error("wrapping nil should return nil")
	}

	result := Wrap(fmt.Errorf("original error"), "sqlstore", "SetIfAbsent", "insert claim")
	expected := "sqlstore.SetIfAbsent: insert claim failed: original error"
	if result == nil || result.Error() != expected {
		t.Errorf("expected '%s', got '%v'", expected, result)
	}
}

func TestWrapClassified(t *testing.T) {
	baseErr := fmt.Errorf("original error")

	tests := []struct {
		name     string
		wrapFunc func(error, string, string, string) error
		class    ErrorClass
	}{
		{"WrapTransient", WrapTransient, ErrorTransient},
		{"WrapFatal", WrapFatal, ErrorFatal},
		{"WrapInvalid", WrapInvalid, ErrorInvalid},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := test.wrapFunc(baseErr, "component", "method", "action")

			var ce *ClassifiedError
			if !errors.As(result, &ce) {
				t.Fatal("result should be a ClassifiedError")
			}
			if ce.Class != test.class {
				t.Errorf("expected %v, got %v", test.class, ce.Class)
			}
			if Component(result) != "component" {
				t.Errorf("expected 'component', got %s", Component(result))
			}
			if !strings.Contains(ce.Error(), "component.method: action failed") {
				t.Errorf("error should contain standard format, got: %s", ce.Error())
			}
			if !errors.Is(result, baseErr) {
				t.Error("wrapped error should unwrap to base error")
			}
			if test.wrapFunc(nil, "c", "m", "a") != nil {
				t.Error("wrapping nil should return nil")
			}
		})
	}
}

func TestWrapTransient_PreservesSentinel(t *testing.T) {
	err := WrapTransient(fmt.Errorf("dial: %w", ErrNoConnection), "natsclient", "Connect", "connect")
	if !errors.Is(err, ErrNoConnection) {
		t.Error("sentinel should survive wrapping")
	}
	if Classify(err) != ErrorTransient {
		t.Errorf("expected transient, got %v", Classify(err))
	}
}
