package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	dir := t.TempDir()

	c1, err := ReadOrCreate(dir)
	require.NoError(t, err)
	require.NotNil(t, c1)
	assert.Equal(t, DefaultPort, c1.Port)
	assert.Equal(t, filepath.Join(dir, DefaultArtifactName), c1.Artifact)

	c1.Port = 9090
	c1.LogLevel = "debug"
	c1.Endpoint = "http://localhost:9090/v1/bulk_predict"

	err = Save(dir, c1)
	require.NoError(t, err)

	c2, err := ReadOrCreate(dir)
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
}

func TestConfig_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CHURN_ARTIFACT", "/models/churn.json")
	t.Setenv("CHURN_PORT", "7070")
	t.Setenv("CHURN_DB", "postgres://u:p@db/churn")

	c, err := ReadOrCreate(dir)
	require.NoError(t, err)
	assert.Equal(t, "/models/churn.json", c.Artifact)
	assert.Equal(t, 7070, c.Port)
	assert.Equal(t, "postgres://u:p@db/churn", c.DB)
	assert.Equal(t, "info", c.LogLevel)

	// the file keeps the defaults
	b, err := os.ReadFile(filepath.Join(dir, configFileName))
	require.NoError(t, err)
	assert.Contains(t, string(b), "port: 8080")
}

func TestConfig_BadEnv(t *testing.T) {
	t.Setenv("CHURN_PORT", "not-a-port")
	_, err := ReadOrCreate(t.TempDir())
	assert.Error(t, err)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("CHURN_ARTIFACT", "s3-mounted/model.json")

	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "s3-mounted/model.json", c.Artifact)
	assert.Equal(t, DefaultPort, c.Port)
	assert.Empty(t, c.DB)
}

func TestConfig_Errors(t *testing.T) {
	_, err := ReadOrCreate("")
	assert.Error(t, err)
	assert.Error(t, Save("", &Config{}))
	assert.Error(t, Save(t.TempDir(), nil))
	assert.Error(t, ApplyEnv(nil))
}

func TestConfig_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte("port: [1"), fileMode))
	_, err := ReadOrCreate(dir)
	assert.Error(t, err)
}

func TestGetOrCreateHomeDir(t *testing.T) {
	_, _, err := GetOrCreateHomeDir("")
	assert.Error(t, err)

	t.Setenv("HOME", t.TempDir())
	dir, created, err := GetOrCreateHomeDir("churn-test")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, ".churn-test", filepath.Base(dir))

	_, created, err = GetOrCreateHomeDir(".churn-test")
	require.NoError(t, err)
	assert.False(t, created)
}
