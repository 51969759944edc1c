// Package testutil provides shared test helpers for the identity service.
//
// Helpers accept [testing.TB] and call t.Helper() so failures point at
// the caller.
package testutil

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// RequireErrorCode halts the test unless err is an *sserr.Error carrying
// code.
//
//	_, err := verifier.Verify(ctx, "")
//	testutil.RequireErrorCode(t, err, sserr.CodeAuthenticationMissing)
func RequireErrorCode(t testing.TB, err error, code sserr.Code, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	ssErr, ok := sserr.AsError(err)
	require.True(t, ok, "expected *sserr.Error, got %T: %v", err, err)
	require.Equal(t, code, ssErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		ssErr.Code, code, ssErr.Message)
}

// AssertErrorCode is the non-halting form of [RequireErrorCode], for
// table-driven tests.
func AssertErrorCode(t testing.TB, err error, code sserr.Code, msgAndArgs ...any) bool {
	t.Helper()
	if !assert.Error(t, err, msgAndArgs...) {
		return false
	}
	ssErr, ok := sserr.AsError(err)
	if !assert.True(t, ok, "expected *sserr.Error, got %T: %v", err, err) {
		return false
	}
	return assert.Equal(t, code, ssErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		ssErr.Code, code, ssErr.Message)
}

// TempConfigFile writes content to config<ext> inside t.TempDir() with
// mode 0600 and returns its path.
func TempConfigFile(t testing.TB, content, ext string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config"+ext)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600),
		"failed to write temp config file %s", path)
	return path
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// Context returns a context cancelled when the test ends.
func Context(t testing.TB) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
