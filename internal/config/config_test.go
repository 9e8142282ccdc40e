package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(DefaultStateDir, "catalog.db"), cfg.Catalog.DBPath)
	assert.Equal(t, "sqlite", cfg.Catalog.Backend)
	assert.Equal(t, "best", cfg.Fusion.Policy)
	assert.Equal(t, 200*time.Millisecond, cfg.Scan.DebounceDuration)
	assert.Equal(t, 1000, cfg.Remote.PageSize)
	assert.Equal(t, 60*time.Second, cfg.Remote.TimeoutDuration)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
catalog:
  backend: bleve
scan:
  roots: [/srv/photos, /srv/docs]
  state_dir: /var/lib/fcat
  exclude: ["*.tmp"]
  respect_ignore: true
  debounce: 1s
remote:
  base_url: https://files.example.test/v3
  folder_ids: [abc]
  page_size: 500
fusion:
  policy: all
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bleve", cfg.Catalog.Backend)
	assert.Equal(t, "/var/lib/fcat/catalog.db", filepath.ToSlash(cfg.Catalog.DBPath))
	assert.Equal(t, []string{"/srv/photos", "/srv/docs"}, cfg.Scan.Roots)
	assert.True(t, cfg.Scan.RespectIgnore)
	assert.Equal(t, time.Second, cfg.Scan.DebounceDuration)
	assert.Equal(t, []string{"abc"}, cfg.Remote.FolderIDs)
	assert.Equal(t, 500, cfg.Remote.PageSize)
	assert.Equal(t, "all", cfg.Fusion.Policy)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"policy":   "fusion:\n  policy: first\n",
		"backend":  "catalog:\n  backend: lucene\n",
		"pagesize": "remote:\n  page_size: 5000\n",
		"debounce": "scan:\n  debounce: soon\n",
		"yaml":     "scan: [\n",
		"level":    "log:\n  level: loud\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
