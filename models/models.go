// Package models defines the data models for the mobile build pipeline.
package models

import (
	"database/sql"
	"time"
)

// Platform is a native mobile platform.
type Platform string

// Supported platforms.
const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	return p == PlatformIOS || p == PlatformAndroid
}

// BuildMode is the build-mode output surfaced to the CI environment.
type BuildMode string

// Build modes.
const (
	BuildModeNative BuildMode = "native" // Fingerprint changed, full native build ran.
	BuildModeOTA    BuildMode = "ota"    // Native unchanged or OTA requested, JS-only update published.
	BuildModeFull   BuildMode = "full"   // Fingerprinting disabled, native build ran unconditionally.
)

// RunStatus represents the terminal state of a pipeline run.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// AppBuildConfig is the user-authored declarative build config file.
type AppBuildConfig struct {
	Build   map[string]BuildProfile `json:"build,omitempty" yaml:"build,omitempty"`
	Submit  *SubmitConfig           `json:"submit,omitempty" yaml:"submit,omitempty"`
	Signing *SigningConfig          `json:"signing,omitempty" yaml:"signing,omitempty"`
	Updates *UpdatesConfig          `json:"updates,omitempty" yaml:"updates,omitempty"`
	Version *VersionConfig          `json:"version,omitempty" yaml:"version,omitempty"`
}

// BuildProfile holds per-platform build settings for a named profile.
type BuildProfile struct {
	IOS     *IOSBuildConfig     `json:"ios,omitempty" yaml:"ios,omitempty"`
	Android *AndroidBuildConfig `json:"android,omitempty" yaml:"android,omitempty"`
}

// IOSBuildConfig holds iOS build settings.
type IOSBuildConfig struct {
	Scheme             string `json:"scheme,omitempty" yaml:"scheme,omitempty"`
	BuildConfiguration string `json:"buildConfiguration,omitempty" yaml:"buildConfiguration,omitempty"` // Debug or Release.
	ExportMethod       string `json:"exportMethod,omitempty" yaml:"exportMethod,omitempty"`             // development, ad-hoc, app-store, enterprise.
}

// AndroidBuildConfig holds Android build settings.
type AndroidBuildConfig struct {
	BuildType string `json:"buildType,omitempty" yaml:"buildType,omitempty"` // debug or release.
	AAB       *bool  `json:"aab,omitempty" yaml:"aab,omitempty"`             // Produce an app bundle instead of an APK.
}

// SubmitConfig holds store submission identifiers.
type SubmitConfig struct {
	IOS     *IOSSubmitConfig     `json:"ios,omitempty" yaml:"ios,omitempty"`
	Android *AndroidSubmitConfig `json:"android,omitempty" yaml:"android,omitempty"`
}

// IOSSubmitConfig holds App Store Connect identifiers.
type IOSSubmitConfig struct {
	AppleID  string `json:"appleId,omitempty" yaml:"appleId,omitempty"`
	ASCAppID string `json:"ascAppId,omitempty" yaml:"ascAppId,omitempty"`
	TeamID   string `json:"teamId,omitempty" yaml:"teamId,omitempty"`
}

// AndroidSubmitConfig holds Google Play identifiers.
type AndroidSubmitConfig struct {
	PackageName   string `json:"packageName,omitempty" yaml:"packageName,omitempty"`
	Track         string `json:"track,omitempty" yaml:"track,omitempty"`
	ReleaseStatus string `json:"releaseStatus,omitempty" yaml:"releaseStatus,omitempty"`
}

// SigningConfig holds per-platform code signing settings.
type SigningConfig struct {
	IOS     *IOSSigningConfig     `json:"ios,omitempty" yaml:"ios,omitempty"`
	Android *AndroidSigningConfig `json:"android,omitempty" yaml:"android,omitempty"`
}

// IOSSigningConfig selects manual signing or fastlane match.
type IOSSigningConfig struct {
	Method string       `json:"method,omitempty" yaml:"method,omitempty"` // manual or match.
	Match  *MatchConfig `json:"match,omitempty" yaml:"match,omitempty"`
}

// MatchConfig configures fastlane match.
type MatchConfig struct {
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	Storage  string `json:"storage,omitempty" yaml:"storage,omitempty"`
	GitURL   string `json:"gitUrl,omitempty" yaml:"gitUrl,omitempty"`
	Readonly *bool  `json:"readonly,omitempty" yaml:"readonly,omitempty"`
}

// AndroidSigningConfig holds Android signing settings.
type AndroidSigningConfig struct {
	Method string `json:"method,omitempty" yaml:"method,omitempty"`
}

// UpdatesConfig holds OTA update settings.
type UpdatesConfig struct {
	Enabled bool           `json:"enabled" yaml:"enabled"`
	URL     string         `json:"url,omitempty" yaml:"url,omitempty"`
	Channel string         `json:"channel,omitempty" yaml:"channel,omitempty"`
	Storage *UpdateStorage `json:"storage,omitempty" yaml:"storage,omitempty"`
}

// UpdateStorage describes where OTA bundles are published.
type UpdateStorage struct {
	Type    string   `json:"type" yaml:"type"` // expo, s3, gcs or custom.
	Bucket  string   `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix  string   `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Command []string `json:"command,omitempty" yaml:"command,omitempty"` // Upload command for the custom type.
}

// VersionConfig holds version bump settings.
type VersionConfig struct {
	AutoIncrement bool   `json:"autoIncrement" yaml:"autoIncrement"`
	Source        string `json:"source,omitempty" yaml:"source,omitempty"`
	Strategy      string `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	GitTagPattern string `json:"gitTagPattern,omitempty" yaml:"gitTagPattern,omitempty"`
}

// Credentials carries secret payloads supplied by the CI environment.
type Credentials struct {
	IOS     IOSCredentials     `json:"ios" yaml:"ios"`
	Android AndroidCredentials `json:"android" yaml:"android"`
	// ExpoToken authenticates the Expo CLI for OTA publishes.
	ExpoToken string `json:"expoToken,omitempty" yaml:"expoToken,omitempty"`
}

// IOSCredentials holds iOS signing and App Store Connect secrets.
type IOSCredentials struct {
	P12Base64                 string `json:"p12Base64,omitempty" yaml:"p12Base64,omitempty"`
	P12Password               string `json:"p12Password,omitempty" yaml:"p12Password,omitempty"`
	ProvisioningProfileBase64 string `json:"provisioningProfileBase64,omitempty" yaml:"provisioningProfileBase64,omitempty"`
	KeychainPassword          string `json:"keychainPassword,omitempty" yaml:"keychainPassword,omitempty"`
	ASCKeyID                  string `json:"ascKeyId,omitempty" yaml:"ascKeyId,omitempty"`
	ASCIssuerID               string `json:"ascIssuerId,omitempty" yaml:"ascIssuerId,omitempty"`
	ASCKeyBase64              string `json:"ascKeyBase64,omitempty" yaml:"ascKeyBase64,omitempty"`
	MatchPassword             string `json:"matchPassword,omitempty" yaml:"matchPassword,omitempty"`
}

// AndroidCredentials holds Android signing and Google Play secrets.
type AndroidCredentials struct {
	KeystoreBase64           string `json:"keystoreBase64,omitempty" yaml:"keystoreBase64,omitempty"`
	KeystorePassword         string `json:"keystorePassword,omitempty" yaml:"keystorePassword,omitempty"`
	KeyAlias                 string `json:"keyAlias,omitempty" yaml:"keyAlias,omitempty"`
	KeyPassword              string `json:"keyPassword,omitempty" yaml:"keyPassword,omitempty"`
	PlayServiceAccountBase64 string `json:"playServiceAccountBase64,omitempty" yaml:"playServiceAccountBase64,omitempty"`
}

// Redacted returns a copy with every non-empty secret replaced by a placeholder.
func (c Credentials) Redacted() Credentials {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	return Credentials{
		IOS: IOSCredentials{
			P12Base64:                 mask(c.IOS.P12Base64),
			P12Password:               mask(c.IOS.P12Password),
			ProvisioningProfileBase64: mask(c.IOS.ProvisioningProfileBase64),
			KeychainPassword:          mask(c.IOS.KeychainPassword),
			ASCKeyID:                  c.IOS.ASCKeyID,
			ASCIssuerID:               c.IOS.ASCIssuerID,
			ASCKeyBase64:              mask(c.IOS.ASCKeyBase64),
			MatchPassword:             mask(c.IOS.MatchPassword),
		},
		Android: AndroidCredentials{
			KeystoreBase64:           mask(c.Android.KeystoreBase64),
			KeystorePassword:         mask(c.Android.KeystorePassword),
			KeyAlias:                 c.Android.KeyAlias,
			KeyPassword:              mask(c.Android.KeyPassword),
			PlayServiceAccountBase64: mask(c.Android.PlayServiceAccountBase64),
		},
		ExpoToken: mask(c.ExpoToken),
	}
}

// ActionInputs is the flat record of per-invocation CI inputs.
type ActionInputs struct {
	Platform    Platform
	Profile     string
	ProjectDir  string
	ConfigPath  string // Declarative build config file, relative to ProjectDir.
	AppConfig   string // Declarative app config (app.json), relative to ProjectDir.
	OutputsFile string

	Submit        bool
	OTA           bool
	VersionBump   *bool // nil defers to the build config's version.autoIncrement.
	Cache         bool
	Fingerprint   bool
	SkipPrebuild  bool
	PrebuildClean bool

	NodeVersion     string
	FastlaneVersion string
	RubyVersion     string

	// Scalar overrides; empty means "not supplied".
	Scheme             string
	BuildConfiguration string
	ExportMethod       string
	BuildType          string
	AAB                *bool

	VersionStrategy string
	GitTagPattern   string

	OTAChannel string
	OTAMessage string

	Credentials Credentials
}

// ResolvedConfig is the single source of truth for a pipeline run.
// Exactly one of IOS and Android is set, matching Platform.
type ResolvedConfig struct {
	Platform    Platform            `json:"platform" yaml:"platform"`
	Profile     string              `json:"profile" yaml:"profile"`
	ProjectDir  string              `json:"projectDir" yaml:"projectDir"`
	IOS         *IOSBuildConfig     `json:"ios,omitempty" yaml:"ios,omitempty"`
	Android     *AndroidBuildConfig `json:"android,omitempty" yaml:"android,omitempty"`
	Submit      *SubmitConfig       `json:"submit,omitempty" yaml:"submit,omitempty"`
	Signing     *SigningConfig      `json:"signing,omitempty" yaml:"signing,omitempty"`
	Updates     *UpdatesConfig      `json:"updates,omitempty" yaml:"updates,omitempty"`
	Version     *VersionConfig      `json:"version,omitempty" yaml:"version,omitempty"`
	Credentials Credentials         `json:"credentials" yaml:"credentials"`
}

// FingerprintResult is the content-derived fingerprint of everything that affects the native binary.
type FingerprintResult struct {
	Hash        string `json:"hash"`
	SourceCount int    `json:"sourceCount"` // Informational only.
}

// FingerprintMarker is written after a successful native build.
type FingerprintMarker struct {
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
	Platform  Platform  `json:"platform"`
}

// BumpResult describes a computed build identifier.
type BumpResult struct {
	PreviousValue int64  `json:"previousValue"`
	NewValue      int64  `json:"newValue"`
	Field         string `json:"field"`             // Dotted path into the app config, e.g. expo.ios.buildNumber.
	Version       string `json:"version,omitempty"` // Set only by strategies that derive a semantic version.
}

// Run represents one pipeline invocation in the run history.
type Run struct {
	ID              string         `json:"id"`
	Platform        Platform       `json:"platform"`
	Profile         string         `json:"profile"`
	Mode            sql.NullString `json:"mode"`
	FingerprintHash sql.NullString `json:"fingerprint_hash"`
	BuildNumber     sql.NullString `json:"build_number"`
	Status          RunStatus      `json:"status"`
	Message         sql.NullString `json:"message"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      sql.NullTime   `json:"finished_at"`
}

// CacheEntry is a stored cache archive in the local cache index.
type CacheEntry struct {
	Key       string    `json:"key"`
	Path      string    `json:"path"` // Archive location on disk.
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}
