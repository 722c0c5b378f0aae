package errors

import (
	stderrors "errors"
	"os"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(CodeLayoutNotFound, "dataset root not found").WithContext("root", "/data/ds01")
	msg := err.Error()
	if !strings.Contains(msg, "E201") || !strings.Contains(msg, "/data/ds01") {
		t.Errorf("message = %q", msg)
	}
}

func TestWrapNilIsNil(t *testing.T) {
	if Wrap(nil, CodeCopyFailed, "never happened") != nil {
		t.Error("wrapping nil must yield nil")
	}
}

func TestWrapfCarriesCauseAndCode(t *testing.T) {
	err := Wrapf(os.ErrPermission, CodeOutputUnwritable, "cannot write %s", "/out/availability.tsv")
	if !IsCode(err, CodeOutputUnwritable) {
		t.Errorf("code = %v", GetCode(err))
	}
	if !stderrors.Is(err, os.ErrPermission) {
		t.Error("cause must survive wrapping")
	}
	if !strings.Contains(err.Error(), "/out/availability.tsv") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		code          Code
		configuration bool
		fatal         bool
		recoverable   bool
	}{
		{CodeFilterInvalid, true, false, false},
		{CodeNoSuffixGroups, true, false, false},
		{CodeLayoutNotFound, false, false, true},
		{CodeRetrievalFailure, false, false, true},
		{CodeDestinationConflict, false, false, false},
		{CodeDiskFull, false, true, false},
		{CodeOutputUnwritable, false, true, false},
	}
	for _, tt := range tests {
		err := New(tt.code, "x")
		if got := IsConfiguration(err); got != tt.configuration {
			t.Errorf("IsConfiguration(%s) = %v", tt.code, got)
		}
		if got := IsFatal(err); got != tt.fatal {
			t.Errorf("IsFatal(%s) = %v", tt.code, got)
		}
		if got := IsRecoverable(err); got != tt.recoverable {
			t.Errorf("IsRecoverable(%s) = %v", tt.code, got)
		}
	}
}

func TestFormatStack(t *testing.T) {
	err := New(CodeUnknown, "boom")
	stack := err.FormatStack()
	if !strings.Contains(stack, "TestFormatStack") {
		t.Errorf("stack should include the caller, got:\n%s", stack)
	}
}

func TestMultiError(t *testing.T) {
	var merr MultiError
	if merr.Combined() != nil {
		t.Error("empty collection must combine to nil")
	}

	single := New(CodeNoSuffixGroups, "first")
	merr.Add(single)
	merr.Add(nil) // ignored
	if merr.Combined() != single {
		t.Error("a single error must come back unwrapped")
	}

	merr.Add(New(CodeFilterInvalid, "second"))
	combined := merr.Combined()
	if combined == nil || !merr.HasErrors() {
		t.Fatal("combined error missing")
	}
	// both codes are reachable through the aggregate
	if !IsCode(combined, CodeNoSuffixGroups) {
		t.Error("first code lost in aggregation")
	}
	if !strings.Contains(combined.Error(), "2 errors") {
		t.Errorf("aggregate message = %q", combined.Error())
	}
}
