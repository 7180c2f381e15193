package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunValidate_PrintsEffectiveConfigWithSecretRedacted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
otus-tap:
  general:
    leader_uri: https://leader.example.com
    leader_secret: s3cr3t
  log:
    level: info
    format: console
`), 0o644))

	var out bytes.Buffer
	require.NoError(t, runValidate(path, &out))

	rendered := out.String()
	assert.Contains(t, rendered, "Configuration OK")
	assert.Contains(t, rendered, "leader_uri: https://leader.example.com")
	assert.Contains(t, rendered, "<redacted>")
	assert.NotContains(t, rendered, "s3cr3t")
}

func TestRunValidate_RejectsBrokenConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
otus-tap:
  log:
    level: shouting
`), 0o644))

	var out bytes.Buffer
	assert.Error(t, runValidate(path, &out))
}
