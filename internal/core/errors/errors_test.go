package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		err := New(CodeMalformedUnit, "bad magic")
		if err.Error() != "[MALFORMED_UNIT] bad magic" {
			t.Errorf("expected [MALFORMED_UNIT] bad magic, got %s", err.Error())
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		original := errors.New("zip: not a valid zip file")
		err := Wrap(original, CodeArchiveIO, "open archive")
		expected := "[ARCHIVE_IO] open archive: zip: not a valid zip file"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
		if !errors.Is(err, original) {
			t.Error("expected wrapped error to unwrap to the original")
		}
	})

	t.Run("IsCode", func(t *testing.T) {
		err := New(CodeValidationError, "invalid input")
		if !IsCode(err, CodeValidationError) {
			t.Error("expected IsCode to return true for CodeValidationError")
		}
		if IsCode(err, CodeNotFound) {
			t.Error("expected IsCode to return false for CodeNotFound")
		}
	})

	t.Run("IsCodeThroughFmtWrap", func(t *testing.T) {
		err := fmt.Errorf("resolve: %w", New(CodeArchiveIO, "gone"))
		if !IsCode(err, CodeArchiveIO) {
			t.Error("expected IsCode to see through fmt.Errorf wrapping")
		}
		if CodeOf(err) != CodeArchiveIO {
			t.Errorf("expected CodeOf ARCHIVE_IO, got %q", CodeOf(err))
		}
	})

	t.Run("AddContextPlainError", func(t *testing.T) {
		err := AddContext(errors.New("boom"), CtxClass, "com.lib.Widget")
		var de *DomainError
		if !errors.As(err, &de) {
			t.Fatal("expected DomainError")
		}
		if de.Code != CodeInternal || de.Context[CtxClass] != "com.lib.Widget" {
			t.Errorf("unexpected error %+v", de)
		}
	})

	t.Run("CodeOfPlain", func(t *testing.T) {
		if CodeOf(errors.New("x")) != "" {
			t.Error("expected empty code for plain error")
		}
	})
}
