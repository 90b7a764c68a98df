package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"libbydl/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "libby", "export loans", "odmpy failed", base)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"libby", "export loans", "odmpy failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected default marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err)
	}
}

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, services.ExitOK},
		{"no sites", fmt.Errorf("backlog: %w", services.ErrNoRecognizedSites), services.ExitNoRecognizedSites},
		{"configuration", services.Wrap(services.ErrConfiguration, "config", "", "bad", nil), services.ExitFailure},
		{"plain", errors.New("boom"), services.ExitFailure},
	}
	for _, tc := range cases {
		if got := services.ExitCode(tc.err); got != tc.want {
			t.Errorf("%s: got %d want %d", tc.name, got, tc.want)
		}
	}
}

func TestIsCancellation(t *testing.T) {
	if !services.IsCancellation(fmt.Errorf("run: %w", context.Canceled)) {
		t.Fatal("expected wrapped context.Canceled to be detected")
	}
	if services.IsCancellation(context.DeadlineExceeded) {
		t.Fatal("deadline is not an operator cancellation")
	}
}
