package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrBootstrapCreatesCredentialsOnFirstRun(t *testing.T) {
	// GIVEN
	s := NewCredentialStore(filepath.Join(t.TempDir(), "passwd"))

	// WHEN
	creds, password, err := s.LoadOrBootstrap()

	// THEN
	require.NoError(t, err)
	assert.NotEmpty(t, password)
	ok, err := Verify(creds, password)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLoadOrBootstrapDoesNotReturnPasswordOnSubsequentLoad(t *testing.T) {
	// GIVEN
	path := filepath.Join(t.TempDir(), "passwd")
	s := NewCredentialStore(path)
	_, _, err := s.LoadOrBootstrap()
	require.NoError(t, err)

	// WHEN
	_, password, err := s.LoadOrBootstrap()

	// THEN
	require.NoError(t, err)
	assert.Empty(t, password)
}

func TestVerifyRejectsWrongPassword(t *testing.T) {
	// GIVEN
	s := NewCredentialStore(filepath.Join(t.TempDir(), "passwd"))
	creds, _, err := s.LoadOrBootstrap()
	require.NoError(t, err)

	// WHEN
	ok, err := Verify(creds, "definitely-not-the-password")

	// THEN
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetPasswordChangesWhichPasswordVerifies(t *testing.T) {
	// GIVEN
	s := NewCredentialStore(filepath.Join(t.TempDir(), "passwd"))
	creds, oldPassword, err := s.LoadOrBootstrap()
	require.NoError(t, err)

	// WHEN
	require.NoError(t, s.SetPassword(creds, "new-password-123"))

	// THEN
	oldOK, _ := Verify(creds, oldPassword)
	assert.False(t, oldOK)
	newOK, _ := Verify(creds, "new-password-123")
	assert.True(t, newOK)
}

func TestSignSessionIsVerifiable(t *testing.T) {
	// GIVEN
	s := NewCredentialStore(filepath.Join(t.TempDir(), "passwd"))
	creds, _, err := s.LoadOrBootstrap()
	require.NoError(t, err)
	payload := []byte("session-payload")

	// WHEN
	mac := SignSession(creds, payload)

	// THEN
	assert.True(t, VerifySession(creds, payload, mac))
	assert.False(t, VerifySession(creds, []byte("tampered"), mac))
}
