package apperr

import (
	"errors"
	"testing"
)

func TestWrapPreservesKind(t *testing.T) {
	base := E(Op("region.get"), KindRegionReadError, errors.New("boom"))
	wrapped := Wrap(Op("facade.GetRegion"), base)

	if !IsKind(wrapped, KindRegionReadError) {
		t.Fatalf("expected wrapped error to keep KindRegionReadError, got %v", GetKind(wrapped))
	}
	if wrapped.Error() == "" {
		t.Fatal("expected non-empty error message")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(Op("x"), nil) != nil {
		t.Fatal("Wrap(nil) must return nil")
	}
}

func TestKindFatal(t *testing.T) {
	if KindNotFound.Fatal() {
		t.Fatal("NotFound must not be fatal")
	}
	if KindBadRequest.Fatal() {
		t.Fatal("BadRequest must not be fatal")
	}
	if !KindMalformedRow.Fatal() {
		t.Fatal("MalformedRow must be fatal")
	}
	if !KindRegionReadError.Fatal() {
		t.Fatal("RegionReadError must be fatal")
	}
}

func TestGetKindUnwrapsChain(t *testing.T) {
	inner := E(Op("columns.parse"), KindFieldParseError, errors.New("bad float"))
	outer := E(Op("region.scan"), inner)
	if GetKind(outer) != KindFieldParseError {
		t.Fatalf("expected KindFieldParseError from chain, got %v", GetKind(outer))
	}
}

func TestSkipCounter(t *testing.T) {
	sc := NewSkipCounter("autocomplete.load")
	if sc.Count != 0 {
		t.Fatal("expected zero initial count")
	}
	sc.Skip(errors.New("malformed row"))
	sc.Skip(errors.New("malformed row"))
	if sc.Count != 2 {
		t.Fatalf("expected count 2, got %d", sc.Count)
	}
}
