package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{Conflict("dup"), http.StatusConflict},
		{Unauthorized(""), http.StatusUnauthorized},
		{Forbidden("no"), http.StatusForbidden},
		{NotFound("gone"), http.StatusNotFound},
		{Internal(errors.New("boom")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.err.Status(); got != tc.want {
			t.Fatalf("%s: status=%d, want %d", tc.err.Kind, got, tc.want)
		}
	}
}

func TestFromWrapsUnknownErrors(t *testing.T) {
	cause := errors.New("db down")
	got := From(fmt.Errorf("query: %w", cause))
	if got.Kind != KindInternal {
		t.Fatalf("unexpected kind: %s", got.Kind)
	}
	if !errors.Is(got, cause) {
		t.Fatalf("cause lost: %v", got)
	}
	if got.Message != "Internal server error" {
		t.Fatalf("internal message leaked: %q", got.Message)
	}
}

func TestFromKeepsWrappedAppError(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", Forbidden("not yours"))
	got := From(wrapped)
	if got.Kind != KindForbidden || got.Message != "not yours" {
		t.Fatalf("unexpected error: %+v", got)
	}
	if !Is(wrapped, KindForbidden) {
		t.Fatal("Is should see through wrapping")
	}
	if Is(wrapped, KindNotFound) {
		t.Fatal("Is matched wrong kind")
	}
}

func TestUnauthorizedDefaultMessage(t *testing.T) {
	if got := Unauthorized("").Message; got != "Unauthorized" {
		t.Fatalf("unexpected default message: %q", got)
	}
}
