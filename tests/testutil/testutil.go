package testutil

import (
	"os"
	"testing"
)

// RequireTestEnvironment fails the test unless GO_ENV=test. Tests below this
// guard assume they may freely mutate the config and service singletons.
func RequireTestEnvironment(t *testing.T) {
	t.Helper()

	if env := os.Getenv("GO_ENV"); env != "test" {
		t.Fatalf("refusing to run outside the test environment (GO_ENV=%q); run with GO_ENV=test", env)
	}
}

// MustSetTestEnvironment forces GO_ENV=test for suites that bootstrap their
// own environment in SetupSuite.
func MustSetTestEnvironment(t *testing.T) {
	t.Helper()

	if err := os.Setenv("GO_ENV", "test"); err != nil {
		t.Fatalf("could not set GO_ENV=test: %v", err)
	}
}
