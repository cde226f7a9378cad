package errx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusOf(t *testing.T) {
	sentinel := errors.New("boom")
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"plain error hides detail", sentinel, http.StatusInternalServerError, SystemErrorMessage},
		{"bad request", BadRequest(errors.New("query must not be empty")), http.StatusBadRequest, "query must not be empty"},
		{"not found", NotFound("Alert not found"), http.StatusNotFound, "Alert not found"},
		{"upstream", WrapUpstream(sentinel), http.StatusBadGateway, UpstreamErrorMessage},
		{"deadline", WrapUpstream(fmt.Errorf("get: %w", context.DeadlineExceeded)), http.StatusGatewayTimeout, TimeoutErrorMessage},
		{"wrapped app error", fmt.Errorf("handler: %w", NotFound("gone")), http.StatusNotFound, "gone"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, msg := StatusOf(tc.err)
			if status != tc.status || msg != tc.message {
				t.Fatalf("StatusOf = %d %q, want %d %q", status, msg, tc.status, tc.message)
			}
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	sentinel := errors.New("redis down")
	err := New(sentinel, http.StatusBadGateway, "cache failed")
	if !errors.Is(err, sentinel) {
		t.Fatal("AppError should unwrap to its cause")
	}
	if err.Error() != "cache failed: redis down" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if WrapUpstream(nil) != nil {
		t.Fatal("nil stays nil")
	}
}
