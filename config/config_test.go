package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptrus/mobile-pipeline/models"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GITHUB_OUTPUT", "/tmp/gh-output")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.ProjectDir)
	assert.Equal(t, "app-build.json", cfg.ConfigPath)
	assert.Equal(t, "/tmp/gh-output", cfg.OutputsFile)
	assert.True(t, cfg.Cache)
	assert.True(t, cfg.Fingerprint)
	assert.False(t, cfg.OTA)
	assert.Equal(t, CacheBackendLocal, cfg.CacheStore.Backend)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
}

func TestLoad_PrecedenceFileEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
platform: android
profile: preview
fingerprint: false
scheme: FromFile
cache_store:
  backend: s3
  bucket: from-file
`), 0o644))

	t.Setenv("INPUT_PROFILE", "production")
	t.Setenv("INPUT_OTA", "true")
	t.Setenv("INPUT_CACHE_STORE__BUCKET", "from-env")
	t.Setenv("INPUT_IOS_P12_BASE64", "cDEy")

	cfg, err := Load(path, map[string]any{"platform": "ios"})
	require.NoError(t, err)

	assert.Equal(t, "ios", cfg.Platform, "flag override wins")
	assert.Equal(t, "production", cfg.Profile, "env wins over file")
	assert.Equal(t, "FromFile", cfg.Scheme)
	assert.False(t, cfg.Fingerprint, "file wins over built-in default")
	assert.True(t, cfg.OTA)
	assert.Equal(t, "s3", cfg.CacheStore.Backend)
	assert.Equal(t, "from-env", cfg.CacheStore.Bucket)
	assert.Equal(t, "cDEy", cfg.IOSP12Base64)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad platform", func(c *Config) { c.Platform = "web" }, "platform must be"},
		{"bad aab", func(c *Config) { c.AAB = "maybe" }, "aab must be true or false"},
		{"bad version bump", func(c *Config) { c.VersionBump = "yes please" }, "version_bump must be true or false"},
		{"bad strategy", func(c *Config) { c.VersionStrategy = "semver" }, "version_strategy must be one of"},
		{"bad backend", func(c *Config) { c.CacheStore.Backend = "ftp" }, "cache_store.backend must be one of"},
		{"http without url", func(c *Config) { c.CacheStore.Backend = CacheBackendHTTP }, "cache_store.url"},
		{"s3 without bucket", func(c *Config) { c.CacheStore.Backend = CacheBackendS3 }, "cache_store.bucket"},
		{"redis without addr", func(c *Config) { c.CacheStore.Backend = CacheBackendRedis }, "cache_store.redis_addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Platform: "ios"}
			c.applyDefaults()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestActionInputs(t *testing.T) {
	c := &Config{
		Platform:              "android",
		AAB:                   "false",
		BuildType:             "debug",
		AndroidKeystoreBase64: "a2V5",
		ExpoToken:             "expo",
		Fingerprint:           true,
	}
	in := c.ActionInputs()

	assert.Equal(t, models.PlatformAndroid, in.Platform)
	require.NotNil(t, in.AAB)
	assert.False(t, *in.AAB)
	assert.Equal(t, "debug", in.BuildType)
	assert.Equal(t, "a2V5", in.Credentials.Android.KeystoreBase64)
	assert.Equal(t, "expo", in.Credentials.ExpoToken)
	assert.True(t, in.Fingerprint)

	c.AAB = ""
	assert.Nil(t, c.ActionInputs().AAB)
	assert.Nil(t, c.ActionInputs().VersionBump)

	c.VersionBump = "false"
	require.NotNil(t, c.ActionInputs().VersionBump)
	assert.False(t, *c.ActionInputs().VersionBump)
}

func TestRequirePlatform(t *testing.T) {
	assert.Error(t, (&Config{}).RequirePlatform())
	assert.NoError(t, (&Config{Platform: "ios"}).RequirePlatform())
}
