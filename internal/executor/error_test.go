package executor

import (
	"errors"
	"testing"
)

func TestWrapPreservesUnderlyingError(t *testing.T) {
	underlying := errors.New("boom")
	err := Wrap(KindIo, underlying, "writing file")

	if !errors.Is(err, underlying) {
		t.Fatalf("expected errors.Is to find underlying error")
	}
	if !IsKind(err, KindIo) {
		t.Fatalf("expected KindIo")
	}
	if IsKind(err, KindConfig) {
		t.Fatalf("did not expect KindConfig")
	}
}

func TestNewfFormatsMessage(t *testing.T) {
	err := Newf(KindConfig, "missing %s", "host")
	if got, want := err.Message, "missing host"; got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
}

func TestIsKindRejectsNonExecutorError(t *testing.T) {
	if IsKind(errors.New("plain"), KindIo) {
		t.Fatalf("expected false for a non-*Error")
	}
}
