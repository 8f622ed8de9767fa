package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestErrorFormattingIncludesFieldsAndCause(t *testing.T) {
	err := New(
		"ndax/rest",
		CodeExchange,
		WithHTTP(502),
		WithMessage("GetOpenOrders failed"),
		WithRawMessage("bad gateway"),
		WithField("endpoint", "GetOpenOrders"),
		WithField("oms_id", "1"),
		WithCause(errors.New("upstream closed")),
	)

	out := err.Error()
	if !strings.Contains(out, "component=ndax/rest") {
		t.Fatalf("expected component marker in error string: %s", out)
	}
	if !strings.Contains(out, "code=exchange_error") {
		t.Fatalf("expected code in error string: %s", out)
	}
	if !strings.Contains(out, "http=502") {
		t.Fatalf("expected http status in error string: %s", out)
	}
	expectedFields := "fields=endpoint=\"GetOpenOrders\",oms_id=\"1\""
	if !strings.Contains(out, expectedFields) {
		t.Fatalf("expected fields %q in error string: %s", expectedFields, out)
	}
	if !strings.Contains(out, "cause=\"upstream closed\"") {
		t.Fatalf("expected wrapped cause in error string: %s", out)
	}
}

func TestWithFieldIgnoresBlankKeys(t *testing.T) {
	err := New("wire", CodeInvalid, WithField("  ", "x"))
	if len(err.Fields) != 0 {
		t.Fatalf("expected blank key to be ignored, got %v", err.Fields)
	}
}

func TestNilErrorString(t *testing.T) {
	var e *E
	if got := e.Error(); got != "<nil>" {
		t.Fatalf("expected <nil> string for nil error, got %q", got)
	}
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := errors.New("boom")
	err := New("auth", CodeSigning, WithCause(cause))
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find cause")
	}
}

func TestHasCodeWalksJoinedAndWrappedErrors(t *testing.T) {
	first := New("wire", CodeRecordDecode, WithMessage("tuple 0"))
	second := New("wire", CodeRecordDecode, WithMessage("tuple 3"))
	joined := errors.Join(first, second)
	if !HasCode(joined, CodeRecordDecode) {
		t.Fatalf("expected joined record failures to report record_decode")
	}
	if HasCode(joined, CodeMalformedPayload) {
		t.Fatalf("did not expect malformed_payload in joined record failures")
	}

	wrapped := fmt.Errorf("apply: %w", New("wire", CodeMalformedPayload))
	if !HasCode(wrapped, CodeMalformedPayload) {
		t.Fatalf("expected wrapped malformed payload to be found")
	}

	nested := New("session", CodeExchange, WithCause(New("wire", CodeMalformedEnvelope)))
	if !HasCode(nested, CodeMalformedEnvelope) {
		t.Fatalf("expected nested cause code to be found")
	}
	if HasCode(nil, CodeExchange) {
		t.Fatalf("nil error must not match")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 3); got != "abc..." {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := Truncate("abc", 10); got != "abc" {
		t.Fatalf("short input should be unchanged, got %q", got)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	// "é" is two bytes; a cut after byte 2 would split it.
	got := Truncate("aé€z", 2)
	if got != "a..." {
		t.Fatalf("unexpected truncation %q", got)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncation produced invalid UTF-8: %q", got)
	}
	if got := Truncate("aé€z", 3); got != "aé..." {
		t.Fatalf("unexpected truncation %q", got)
	}
}
