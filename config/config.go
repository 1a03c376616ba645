// Package config provides runner settings and per-invocation action inputs.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ptrus/mobile-pipeline/buildconfig"
	"github.com/ptrus/mobile-pipeline/models"
)

// EnvPrefix is the prefix of environment inputs, following the GitHub Actions convention.
const EnvPrefix = "INPUT_"

// DefaultSettingsFile is the optional YAML settings file.
const DefaultSettingsFile = ".mobile-pipeline.yaml"

// Cache backends.
const (
	CacheBackendNone  = "none"
	CacheBackendLocal = "local"
	CacheBackendHTTP  = "http"
	CacheBackendS3    = "s3"
	CacheBackendGCS   = "gcs"
	CacheBackendRedis = "redis"
)

var cacheBackends = []string{CacheBackendNone, CacheBackendLocal, CacheBackendHTTP, CacheBackendS3, CacheBackendGCS, CacheBackendRedis}

// Config holds the runner settings and action inputs.
type Config struct {
	Platform    string `koanf:"platform"`
	Profile     string `koanf:"profile"`
	ProjectDir  string `koanf:"project_dir"`
	ConfigPath  string `koanf:"config_path"` // Build config file, relative to project_dir.
	AppConfig   string `koanf:"app_config"`  // Declarative app config (app.json), relative to project_dir.
	OutputsFile string `koanf:"outputs_file"`
	MarkerDir   string `koanf:"marker_dir"` // Fingerprint marker files, relative to project_dir.

	Submit        bool   `koanf:"submit"`
	OTA           bool   `koanf:"ota"`
	VersionBump   string `koanf:"version_bump"` // "true", "false" or empty when not supplied.
	Cache         bool   `koanf:"cache"`
	Fingerprint   bool   `koanf:"fingerprint"`
	SkipPrebuild  bool   `koanf:"skip_prebuild"`
	PrebuildClean bool   `koanf:"prebuild_clean"`

	NodeVersion     string `koanf:"node_version"`
	FastlaneVersion string `koanf:"fastlane_version"`
	RubyVersion     string `koanf:"ruby_version"`

	Scheme             string `koanf:"scheme"`
	BuildConfiguration string `koanf:"build_configuration"`
	ExportMethod       string `koanf:"export_method"`
	BuildType          string `koanf:"build_type"`
	AAB                string `koanf:"aab"` // "true", "false" or empty when not supplied.

	VersionStrategy string `koanf:"version_strategy"`
	GitTagPattern   string `koanf:"git_tag_pattern"`

	OTAChannel string `koanf:"ota_channel"`
	OTAMessage string `koanf:"ota_message"`

	FingerprintCommand string `koanf:"fingerprint_command"` // Overrides the fingerprint tool invocation.

	IOSP12Base64                 string `koanf:"ios_p12_base64"`
	IOSP12Password               string `koanf:"ios_p12_password"`
	IOSProvisioningProfileBase64 string `koanf:"ios_provisioning_profile_base64"`
	IOSKeychainPassword          string `koanf:"ios_keychain_password"`
	ASCKeyID                     string `koanf:"asc_key_id"`
	ASCIssuerID                  string `koanf:"asc_issuer_id"`
	ASCKeyBase64                 string `koanf:"asc_key_base64"`
	MatchPassword                string `koanf:"match_password"`
	AndroidKeystoreBase64        string `koanf:"android_keystore_base64"`
	AndroidKeystorePassword      string `koanf:"android_keystore_password"`
	AndroidKeyAlias              string `koanf:"android_key_alias"`
	AndroidKeyPassword           string `koanf:"android_key_password"`
	PlayServiceAccountBase64     string `koanf:"play_service_account_base64"`
	ExpoToken                    string `koanf:"expo_token"`

	CacheStore CacheConfig  `koanf:"cache_store"`
	DB         DBConfig     `koanf:"db"`
	Server     ServerConfig `koanf:"server"`
}

// CacheConfig selects and configures the cache store backend.
type CacheConfig struct {
	Backend       string `koanf:"backend"`
	Dir           string `koanf:"dir"`      // Local backend archive directory.
	URL           string `koanf:"url"`      // HTTP backend base URL.
	Token         string `koanf:"token"`    // HTTP backend bearer token.
	Bucket        string `koanf:"bucket"`   // S3 and GCS.
	Region        string `koanf:"region"`   // S3.
	Endpoint      string `koanf:"endpoint"` // S3 custom endpoint (MinIO, LocalStack).
	Prefix        string `koanf:"prefix"`   // S3, GCS and Redis key prefix.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
}

// DBConfig holds run history database configuration.
type DBConfig struct {
	Path string `koanf:"path"`
}

// ServerConfig holds cache server configuration.
type ServerConfig struct {
	ListenAddr     string   `koanf:"listen_addr"`
	AllowedOrigins []string `koanf:"allowed_origins"` // CORS allowed origins (empty = same-origin only)
	Token          string   `koanf:"token"`           // Bearer token required for writes (empty = open).
}

// Load loads settings from the optional YAML file, INPUT_* environment variables and flag overrides,
// in increasing order of precedence.
func Load(settingsPath string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	// Boolean inputs that default to enabled.
	for key, val := range map[string]any{"cache": true, "fingerprint": true} {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("failed to set default %s: %w", key, err)
		}
	}

	if settingsPath != "" {
		if _, err := os.Stat(settingsPath); err == nil {
			if err := k.Load(file.Provider(settingsPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load settings file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat settings file: %w", err)
		}
	}

	// INPUT_CACHE_STORE__BACKEND -> cache_store.backend
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	for key, val := range overrides {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("failed to apply override %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ProjectDir == "" {
		c.ProjectDir = "."
	}
	if c.ConfigPath == "" {
		c.ConfigPath = buildconfig.DefaultConfigFile
	}
	if c.MarkerDir == "" {
		c.MarkerDir = ".mobile-pipeline"
	}
	if c.OutputsFile == "" {
		c.OutputsFile = os.Getenv("GITHUB_OUTPUT")
	}
	if c.CacheStore.Backend == "" {
		c.CacheStore.Backend = CacheBackendLocal
	}
	if c.CacheStore.Dir == "" {
		c.CacheStore.Dir = ".mobile-pipeline/cache"
	}
	if c.CacheStore.Region == "" {
		c.CacheStore.Region = os.Getenv("AWS_REGION")
	}
	if c.CacheStore.Region == "" {
		c.CacheStore.Region = "us-east-1"
	}
	if c.DB.Path == "" {
		c.DB.Path = ".mobile-pipeline/history.db"
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Platform != "" && !models.Platform(c.Platform).Valid() {
		return fmt.Errorf("platform must be %q or %q (got %q)", models.PlatformIOS, models.PlatformAndroid, c.Platform)
	}
	if c.AAB != "" {
		if _, err := strconv.ParseBool(c.AAB); err != nil {
			return fmt.Errorf("aab must be true or false (got %q)", c.AAB)
		}
	}
	if c.VersionBump != "" {
		if _, err := strconv.ParseBool(c.VersionBump); err != nil {
			return fmt.Errorf("version_bump must be true or false (got %q)", c.VersionBump)
		}
	}
	if c.VersionStrategy != "" && !slices.Contains(buildconfig.Strategies, c.VersionStrategy) {
		return fmt.Errorf("version_strategy must be one of %s (got %q)", strings.Join(buildconfig.Strategies, ", "), c.VersionStrategy)
	}
	if !slices.Contains(cacheBackends, c.CacheStore.Backend) {
		return fmt.Errorf("cache_store.backend must be one of %s (got %q)", strings.Join(cacheBackends, ", "), c.CacheStore.Backend)
	}

	switch c.CacheStore.Backend {
	case CacheBackendHTTP:
		if c.CacheStore.URL == "" {
			return fmt.Errorf("cache_store.url cannot be empty when backend is %s", c.CacheStore.Backend)
		}
	case CacheBackendS3, CacheBackendGCS:
		if c.CacheStore.Bucket == "" {
			return fmt.Errorf("cache_store.bucket cannot be empty when backend is %s", c.CacheStore.Backend)
		}
	case CacheBackendRedis:
		if c.CacheStore.RedisAddr == "" {
			return fmt.Errorf("cache_store.redis_addr cannot be empty when backend is %s", c.CacheStore.Backend)
		}
	}

	return nil
}

// RequirePlatform reports an error when no platform was supplied.
func (c *Config) RequirePlatform() error {
	if c.Platform == "" {
		return fmt.Errorf("platform is required (set --platform or %sPLATFORM)", EnvPrefix)
	}
	return nil
}

// ActionInputs converts the settings into the read-only per-invocation inputs record.
func (c *Config) ActionInputs() *models.ActionInputs {
	in := &models.ActionInputs{
		Platform:    models.Platform(c.Platform),
		Profile:     c.Profile,
		ProjectDir:  c.ProjectDir,
		ConfigPath:  c.ConfigPath,
		AppConfig:   c.AppConfig,
		OutputsFile: c.OutputsFile,

		Submit:        c.Submit,
		OTA:           c.OTA,
		Cache:         c.Cache,
		Fingerprint:   c.Fingerprint,
		SkipPrebuild:  c.SkipPrebuild,
		PrebuildClean: c.PrebuildClean,

		NodeVersion:     c.NodeVersion,
		FastlaneVersion: c.FastlaneVersion,
		RubyVersion:     c.RubyVersion,

		Scheme:             c.Scheme,
		BuildConfiguration: c.BuildConfiguration,
		ExportMethod:       c.ExportMethod,
		BuildType:          c.BuildType,

		VersionStrategy: c.VersionStrategy,
		GitTagPattern:   c.GitTagPattern,

		OTAChannel: c.OTAChannel,
		OTAMessage: c.OTAMessage,

		Credentials: models.Credentials{
			IOS: models.IOSCredentials{
				P12Base64:                 c.IOSP12Base64,
				P12Password:               c.IOSP12Password,
				ProvisioningProfileBase64: c.IOSProvisioningProfileBase64,
				KeychainPassword:          c.IOSKeychainPassword,
				ASCKeyID:                  c.ASCKeyID,
				ASCIssuerID:               c.ASCIssuerID,
				ASCKeyBase64:              c.ASCKeyBase64,
				MatchPassword:             c.MatchPassword,
			},
			Android: models.AndroidCredentials{
				KeystoreBase64:           c.AndroidKeystoreBase64,
				KeystorePassword:         c.AndroidKeystorePassword,
				KeyAlias:                 c.AndroidKeyAlias,
				KeyPassword:              c.AndroidKeyPassword,
				PlayServiceAccountBase64: c.PlayServiceAccountBase64,
			},
			ExpoToken: c.ExpoToken,
		},
	}
	if c.AAB != "" {
		// Validate guarantees this parses.
		aab, _ := strconv.ParseBool(c.AAB)
		in.AAB = &aab
	}
	if c.VersionBump != "" {
		bump, _ := strconv.ParseBool(c.VersionBump)
		in.VersionBump = &bump
	}
	return in
}
