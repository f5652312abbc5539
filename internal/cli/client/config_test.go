package client

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useConfigPath points the global config at path for the duration of the test.
func useConfigPath(t *testing.T, path string) {
	t.Helper()
	oldGetConfigPath := getConfigPathFunc
	getConfigPathFunc = func() (string, error) {
		return path, nil
	}
	t.Cleanup(func() { getConfigPathFunc = oldGetConfigPath })
}

func writeConfig(t *testing.T, path string, cfg GlobalConfig) {
	t.Helper()
	data, err := json.MarshalIndent(cfg, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))
}

func TestGetConfigDir(t *testing.T) {
	dir, err := GetConfigDir()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(dir))
	assert.True(t, strings.HasSuffix(dir, "obsidian"))
}

func TestGetConfigPath(t *testing.T) {
	path, err := GetConfigPath()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))
	assert.True(t, strings.HasSuffix(path, "config.json"))
}

func TestLoadGlobalConfig_FileNotExists(t *testing.T) {
	useConfigPath(t, filepath.Join(t.TempDir(), "config.json"))

	config, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Nil(t, config)
}

func TestLoadGlobalConfig_ValidFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	writeConfig(t, configPath, GlobalConfig{APIURL: "http://archive.local:8080"})
	useConfigPath(t, configPath)

	config, err := LoadGlobalConfig()
	require.NoError(t, err)
	require.NotNil(t, config)
	assert.Equal(t, "http://archive.local:8080", config.APIURL)
}

func TestLoadGlobalConfig_InvalidJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte("{invalid json}"), 0600))
	useConfigPath(t, configPath)

	config, err := LoadGlobalConfig()
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestSaveGlobalConfig_CreatesDirectoryWithPrivateFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "obsidian", "config.json")
	useConfigPath(t, configPath)

	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIURL: "http://localhost:9090"}))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9090", loaded.APIURL)
}

func TestSaveGlobalConfig_NilConfig(t *testing.T) {
	err := SaveGlobalConfig(nil)
	assert.Error(t, err)
}

func TestDeleteGlobalConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	writeConfig(t, configPath, GlobalConfig{APIURL: "http://localhost:8080"})
	useConfigPath(t, configPath)

	require.NoError(t, DeleteGlobalConfig())
	_, err := os.Stat(configPath)
	assert.True(t, os.IsNotExist(err))

	// Deleting again is not an error.
	assert.NoError(t, DeleteGlobalConfig())
}

func TestIsValidAPIURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"http://localhost:8080", true},
		{"https://obsidian.internal", true},
		{"localhost:8080", false},
		{"ftp://localhost", false},
		{"http://", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidAPIURL(tt.url))
		})
	}
}

func TestResolveAPIURL_Cascade(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	useConfigPath(t, configPath)

	t.Run("default", func(t *testing.T) {
		t.Setenv(envAPIURL, "")
		url, source, err := ResolveAPIURL("")
		require.NoError(t, err)
		assert.Equal(t, SourceDefault, source)
		assert.Equal(t, defaultAPIURL, url)
	})

	writeConfig(t, configPath, GlobalConfig{APIURL: "http://global:8080"})

	t.Run("global config", func(t *testing.T) {
		t.Setenv(envAPIURL, "")
		url, source, err := ResolveAPIURL("")
		require.NoError(t, err)
		assert.Equal(t, SourceGlobalConfig, source)
		assert.Equal(t, "http://global:8080", url)
	})

	t.Run("env overrides global config", func(t *testing.T) {
		t.Setenv(envAPIURL, "http://env:8080")
		url, source, err := ResolveAPIURL("")
		require.NoError(t, err)
		assert.Equal(t, SourceEnv, source)
		assert.Equal(t, "http://env:8080", url)
	})

	t.Run("flag overrides env", func(t *testing.T) {
		t.Setenv(envAPIURL, "http://env:8080")
		url, source, err := ResolveAPIURL("http://flag:8080")
		require.NoError(t, err)
		assert.Equal(t, SourceFlag, source)
		assert.Equal(t, "http://flag:8080", url)
	})
}

func TestResolveAPIURL_BrokenGlobalConfig(t *testing.T) {
	t.Setenv(envAPIURL, "")
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte("not json"), 0600))
	useConfigPath(t, configPath)

	_, _, err := ResolveAPIURL("")
	assert.Error(t, err)
}
