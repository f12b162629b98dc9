package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("migrate item: %w", WithMetadata(CodeDocumentMalformed, "bad tags", map[string]string{"doc_id": "i1"}))

	if !stderrors.Is(err, New(CodeDocumentMalformed, "")) {
		t.Fatal("expected errors.Is to match by code")
	}
	if stderrors.Is(err, New(CodeNotFound, "")) {
		t.Fatal("expected different code not to match")
	}
	if got := CodeOf(err); got != CodeDocumentMalformed {
		t.Fatalf("CodeOf = %s, want %s", got, CodeDocumentMalformed)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != CodeUnknown {
		t.Fatalf("CodeOf(plain) = %s, want %s", got, CodeUnknown)
	}
}

func TestWrapIncludesCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(CodeReferenceRebuildFailed, "rebuild reference data", cause)

	if !stderrors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
	if got := err.Error(); got != "rebuild reference data: disk full" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeDocumentMalformed, 2},
		{CodeCompendiumLocked, 3},
		{CodeNotFound, 4},
		{CodeReferenceRebuildFailed, 5},
		{CodeUnknown, 1},
	}
	for _, tc := range tests {
		if got := tc.code.ExitCode(); got != tc.want {
			t.Fatalf("%s.ExitCode() = %d, want %d", tc.code, got, tc.want)
		}
	}
}

func TestLocalizedMessage(t *testing.T) {
	err := WithMetadata(CodeCompendiumLocked, "unlock", map[string]string{"Compendium": "world.frames"})

	if got := LocalizedMessage(err, "en-US"); got != "Compendium world.frames is locked and could not be unlocked." {
		t.Fatalf("LocalizedMessage = %q", got)
	}
	if got := LocalizedMessage(err, "xx-XX"); got != "Compendium world.frames is locked and could not be unlocked." {
		t.Fatalf("LocalizedMessage fallback = %q", got)
	}
	plain := stderrors.New("boom")
	if got := LocalizedMessage(plain, "en-US"); got != "boom" {
		t.Fatalf("LocalizedMessage(plain) = %q", got)
	}
	if got := LocalizedMessage(nil, "en-US"); got != "" {
		t.Fatalf("LocalizedMessage(nil) = %q", got)
	}
}
