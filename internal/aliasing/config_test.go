package aliasing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "processor.yaml")

	content := `
shop_aliases:
  albert-heijn-be: ah
  hoogvliet: plus
`
	err := os.WriteFile(configPath, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(configPath)

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Len(t, cfg.ShopAliases, 2)
	assert.Equal(t, "ah", cfg.ShopAliases["albert-heijn-be"])
	assert.Equal(t, "plus", cfg.ShopAliases["hoogvliet"])
}

func TestLoadConfig_EmptyAliasSection(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "processor.yaml")

	err := os.WriteFile(configPath, []byte("shop_aliases:\n"), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(configPath)

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.ShopAliases)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/processor.yaml")

	// Missing file degrades to an empty config, not an error.
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.ShopAliases)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "processor.yaml")

	err := os.WriteFile(configPath, []byte("shop_aliases: [not: a: map"), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(configPath)

	// Invalid YAML degrades to an empty config, not an error.
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.ShopAliases)
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "processor.yaml")

	err := os.WriteFile(configPath, []byte(""), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(configPath)

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.ShopAliases)
}

func TestConfigPath(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "/etc/processor/aliases.yaml")
	assert.Equal(t, "/etc/processor/aliases.yaml", ConfigPath())

	t.Setenv(ConfigPathEnvVar, "")
	assert.Equal(t, DefaultConfigPath, ConfigPath())
}
