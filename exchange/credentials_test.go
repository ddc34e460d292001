package exchange

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearCredentialEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"EXCHANGE_URL", "EXCHANGE_USERNAME", "EXCHANGE_PASSWORD"} {
		t.Setenv(key, "")
	}
}

func TestLoadCredentialsFromFile(t *testing.T) {
	clearCredentialEnv(t)
	path := filepath.Join(t.TempDir(), ".ioctrader")
	require.NoError(t, os.WriteFile(path, []byte("EXCHANGE_URL=http://localhost:8080\nEXCHANGE_USERNAME=trader\nEXCHANGE_PASSWORD=secret\n"), 0o600))

	creds, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, Credentials{URL: "http://localhost:8080", Username: "trader", Password: "secret"}, creds)
}

func TestLoadCredentialsEnvOverridesFile(t *testing.T) {
	clearCredentialEnv(t)
	path := filepath.Join(t.TempDir(), ".ioctrader")
	require.NoError(t, os.WriteFile(path, []byte("EXCHANGE_URL=http://localhost:8080\nEXCHANGE_USERNAME=trader\n"), 0o600))
	t.Setenv("EXCHANGE_USERNAME", "other")

	creds, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, "other", creds.Username)
	assert.Equal(t, "http://localhost:8080", creds.URL)
}

func TestLoadCredentialsMissingFile(t *testing.T) {
	clearCredentialEnv(t)
	path := filepath.Join(t.TempDir(), "missing")

	_, err := LoadCredentials(path)
	require.ErrorContains(t, err, "EXCHANGE_URL and EXCHANGE_USERNAME are required")

	t.Setenv("EXCHANGE_URL", "http://exchange:9000")
	t.Setenv("EXCHANGE_USERNAME", "trader")
	creds, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, "http://exchange:9000", creds.URL)
}
