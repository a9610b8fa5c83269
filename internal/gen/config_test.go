package gen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	path := filepath.Join(dir, DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte("output: match_gen.go\nignore_paths:\n  - testdata\n"), 0o644))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "match_gen.go", cfg.Output)
	assert.Equal(t, "coercegen", cfg.BuildTag)
	assert.Equal(t, "_cg", cfg.TempPrefix)
	assert.Equal(t, []string{"testdata"}, cfg.IgnorePaths)

	require.NoError(t, os.WriteFile(path, []byte("output: sub/gen.go\n"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("output: [\n"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "test file output", mutate: func(c *Config) { c.Output = "gen_test.go" }, wantErr: true},
		{name: "not go", mutate: func(c *Config) { c.Output = "gen.txt" }, wantErr: true},
		{name: "bad tag", mutate: func(c *Config) { c.BuildTag = "no tag" }, wantErr: true},
		{name: "prefix without underscore", mutate: func(c *Config) { c.TempPrefix = "cg" }, wantErr: true},
		{name: "bad glob", mutate: func(c *Config) { c.IgnorePaths = []string{"["} }, wantErr: true},
		{name: "negative complexity", mutate: func(c *Config) { c.MaxComplexity = -1 }, wantErr: true},
		{name: "complexity disabled", mutate: func(c *Config) { c.MaxComplexity = 0 }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestConfigWriteRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	cfg := DefaultConfig()
	cfg.IgnorePaths = []string{"vendor"}
	require.NoError(t, cfg.Write(path))

	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestConfigIgnored(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.IgnorePaths = []string{"testdata", "internal/legacy", "gen*"}

	assert.True(t, cfg.Ignored("testdata"))
	assert.True(t, cfg.Ignored("pkg/testdata"))
	assert.True(t, cfg.Ignored("internal/legacy/old"))
	assert.True(t, cfg.Ignored("generated"))
	assert.False(t, cfg.Ignored("internal/api"))
	assert.False(t, cfg.Ignored("."))
}
