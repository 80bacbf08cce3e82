package main

import (
	"bytes"
	"encoding/base64"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestInitLogger(t *testing.T) {
	t.Run("default json logger", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "info")
		t.Setenv("LOG_FORMAT", "json")

		logger, err := initLogger()
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync()
	})

	t.Run("development console logger", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "debug")
		t.Setenv("LOG_FORMAT", "console")

		logger, err := initLogger()
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync()
	})

	t.Run("invalid log level", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "invalid")
		t.Setenv("LOG_FORMAT", "json")

		logger, err := initLogger()
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("defaults when not set", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "")
		t.Setenv("LOG_FORMAT", "")
		os.Unsetenv("LOG_LEVEL")
		os.Unsetenv("LOG_FORMAT")

		logger, err := initLogger()
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync()
	})
}

func TestGenSecretCommand(t *testing.T) {
	t.Run("prints a 32 byte secret by default", func(t *testing.T) {
		var out bytes.Buffer
		cmd := newRootCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"gen-secret"})
		require.NoError(t, cmd.Execute())

		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(out.String()))
		require.NoError(t, err)
		assert.Len(t, raw, 32)
	})

	t.Run("rejects short secrets", func(t *testing.T) {
		_, err := generateSecret(16)
		assert.Error(t, err)
	})

	t.Run("secrets differ", func(t *testing.T) {
		a, err := generateSecret(32)
		require.NoError(t, err)
		b, err := generateSecret(32)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}

func TestHashPasswordCommand(t *testing.T) {
	t.Run("prints a verifiable hash", func(t *testing.T) {
		var out bytes.Buffer
		cmd := newRootCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"hash-password", "--cost", "4", "s3cret-pass"})
		require.NoError(t, cmd.Execute())

		hash := strings.TrimSpace(out.String())
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret-pass")))
	})

	t.Run("rejects weak passwords", func(t *testing.T) {
		cmd := newRootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"hash-password", "short"})
		assert.Error(t, cmd.Execute())
	})

	t.Run("requires exactly one argument", func(t *testing.T) {
		cmd := newRootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"hash-password"})
		assert.Error(t, cmd.Execute())
	})
}
