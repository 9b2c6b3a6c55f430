package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/storm/internal/fleet"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv("HCLOUD_TOKEN", "")
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "aws", "credentials"),
		"[Credentials]\naws_access_key_id = AKIA123\naws_secret_access_key = secret\n")
	writeFile(t, filepath.Join(dir, "azure", "credentials"),
		"[Credentials]\nsubscription_id = sub\ntenant_id = tenant\nclient_id = client\nclient_secret = s3cr3t\n")
	writeFile(t, filepath.Join(dir, "digitalocean", "token"), "do-token\n")

	creds, err := LoadCredentials(dir)
	require.NoError(t, err)

	require.NotNil(t, creds.AWS)
	assert.Equal(t, "AKIA123", creds.AWS.AccessKeyID)
	assert.Equal(t, "secret", creds.AWS.SecretAccessKey)
	assert.Equal(t, "sub", creds.Azure.SubscriptionID)
	assert.Equal(t, "do-token", creds.DigitalOceanToken)
	assert.Empty(t, creds.HetznerToken)

	assert.True(t, creds.Has(fleet.AWS))
	assert.True(t, creds.Has(fleet.Azure))
	assert.True(t, creds.Has(fleet.DigitalOcean))
	assert.False(t, creds.Has(fleet.Hetzner))

	err = creds.Require([]fleet.Provider{fleet.AWS, fleet.Hetzner})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingCredentials))
	assert.Contains(t, err.Error(), "hetzner")
}

func TestLoadCredentials_HetznerEnvOverride(t *testing.T) {
	t.Setenv("HCLOUD_TOKEN", "from-env")
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hetzner", "token"), "from-file")

	creds, err := LoadCredentials(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-env", creds.HetznerToken)
}

func TestLoadCredentials_EmptyDir(t *testing.T) {
	t.Setenv("HCLOUD_TOKEN", "")

	creds, err := LoadCredentials(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, creds.AWS)
	assert.NoError(t, creds.Require(nil))
}
